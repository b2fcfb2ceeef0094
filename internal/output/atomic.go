// Package output writes the playlist and guide files. Each file is written to
// a temporary file in the target directory and renamed into place, so readers
// see either the previous file or the complete new one.
package output

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/snapetech/iptvextract/internal/catalog"
)

// FileMode is applied to published files. They are served as-is by a static
// file server, so they are world-readable.
const FileMode = 0o644

// WriteError is a filesystem failure while producing path.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// Pending is a fully written temporary file waiting to replace Path.
type Pending struct {
	Path string
	tmp  string
	size int64
	done bool
}

// Size is the number of bytes written.
func (p *Pending) Size() int64 { return p.size }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

// Prepare runs encode against a new temporary file next to path and syncs it
// to disk. Nothing at path changes until Commit.
func Prepare(path string, encode func(io.Writer) error) (*Pending, error) {
	dir := filepath.Dir(filepath.Clean(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &WriteError{Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return nil, &WriteError{Path: path, Err: fmt.Errorf("create temp: %w", err)}
	}
	tmpName := tmp.Name()
	cw := &countingWriter{w: tmp}
	writeErr := encode(cw)
	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return nil, &WriteError{Path: path, Err: writeErr}
		}
		return nil, &WriteError{Path: path, Err: fmt.Errorf("close: %w", closeErr)}
	}
	if err := os.Chmod(tmpName, FileMode); err != nil {
		os.Remove(tmpName)
		return nil, &WriteError{Path: path, Err: fmt.Errorf("chmod: %w", err)}
	}
	return &Pending{Path: path, tmp: tmpName, size: cw.n}, nil
}

// Commit renames the temporary file over Path.
func (p *Pending) Commit() error {
	if p.done {
		return &WriteError{Path: p.Path, Err: errors.New("already finished")}
	}
	p.done = true
	if err := os.Rename(p.tmp, p.Path); err != nil {
		os.Remove(p.tmp)
		return &WriteError{Path: p.Path, Err: fmt.Errorf("rename: %w", err)}
	}
	return nil
}

// Discard removes the temporary file. It is a no-op after Commit.
func (p *Pending) Discard() {
	if p == nil || p.done {
		return
	}
	p.done = true
	os.Remove(p.tmp)
}

// Snapshot holds on to the file at Path so a later step can put it back.
type Snapshot struct {
	Path  string
	saved string // empty when there was no file at Path
}

// Save records the current file at path as a hard link beside it, or a copy
// where the filesystem has no links. A missing file is not an error; Restore
// then removes whatever was published.
func Save(path string) (*Snapshot, error) {
	s := &Snapshot{Path: path}
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return s, nil
	} else if err != nil {
		return nil, &WriteError{Path: path, Err: err}
	}
	f, err := os.CreateTemp(filepath.Dir(filepath.Clean(path)), "."+filepath.Base(path)+"-*.prev")
	if err != nil {
		return nil, &WriteError{Path: path, Err: fmt.Errorf("create backup: %w", err)}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	if err := os.Link(path, name); err != nil {
		if err := copyFile(path, name); err != nil {
			os.Remove(name)
			return nil, &WriteError{Path: path, Err: fmt.Errorf("backup: %w", err)}
		}
	}
	s.saved = name
	return s, nil
}

// Restore puts the saved file back at Path.
func (s *Snapshot) Restore() error {
	if s.saved == "" {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &WriteError{Path: s.Path, Err: fmt.Errorf("restore: %w", err)}
		}
		return nil
	}
	if err := os.Rename(s.saved, s.Path); err != nil {
		return &WriteError{Path: s.Path, Err: fmt.Errorf("restore: %w", err)}
	}
	s.saved = ""
	return nil
}

// Drop deletes the saved copy.
func (s *Snapshot) Drop() {
	if s == nil || s.saved == "" {
		return
	}
	os.Remove(s.saved)
	s.saved = ""
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FileMode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WritePlaylist atomically writes chans as an M3U playlist to path.
func WritePlaylist(path string, chans []catalog.Channel) (int64, error) {
	return write(path, func(w io.Writer) error { return EncodePlaylist(w, chans) })
}

// WriteGuide atomically writes run as an XMLTV guide to path.
func WriteGuide(path string, run catalog.Run) (int64, error) {
	return write(path, func(w io.Writer) error { return EncodeGuide(w, run) })
}

func write(path string, encode func(io.Writer) error) (int64, error) {
	p, err := Prepare(path, encode)
	if err != nil {
		return 0, err
	}
	if err := p.Commit(); err != nil {
		return 0, err
	}
	return p.Size(), nil
}

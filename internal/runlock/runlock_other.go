//go:build !unix

package runlock

import "os"

// Without flock the lock is advisory only within this process.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }

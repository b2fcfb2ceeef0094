package output

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/snapetech/iptvextract/internal/catalog"
)

// EncodePlaylist writes chans as extended M3U in the order given, which the
// caller keeps equal to ordinal order.
func EncodePlaylist(w io.Writer, chans []catalog.Channel) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("#EXTM3U\n")
	for _, ch := range chans {
		bw.WriteString(`#EXTINF:-1 tvg-id="`)
		bw.WriteString(attr(ch.ID))
		bw.WriteString(`" tvg-chno="`)
		bw.WriteString(strconv.Itoa(ch.Ordinal))
		bw.WriteString(`" tvg-name="`)
		bw.WriteString(attr(ch.Name))
		bw.WriteByte('"')
		if ch.Logo != "" {
			bw.WriteString(` tvg-logo="`)
			bw.WriteString(attr(ch.Logo))
			bw.WriteByte('"')
		}
		if g := ch.GroupTitle(); g != "" {
			bw.WriteString(` group-title="`)
			bw.WriteString(attr(g))
			bw.WriteByte('"')
		}
		bw.WriteByte(',')
		bw.WriteString(line(ch.Name))
		bw.WriteByte('\n')
		bw.WriteString(line(ch.StreamURL))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

var (
	attrReplacer = strings.NewReplacer(`"`, "'", "\r", " ", "\n", " ")
	lineReplacer = strings.NewReplacer("\r", " ", "\n", " ")
)

// attr makes s safe inside a quoted M3U attribute, which has no escaping.
func attr(s string) string { return attrReplacer.Replace(strings.TrimSpace(s)) }

func line(s string) string { return lineReplacer.Replace(strings.TrimSpace(s)) }

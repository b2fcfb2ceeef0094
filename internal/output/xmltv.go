package output

import (
	"bufio"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/snapetech/iptvextract/internal/catalog"
)

// TimeLayout is the XMLTV timestamp layout.
const TimeLayout = "20060102150405 -0700"

const (
	generatorName = "iptv-extract"
	doctype       = `<!DOCTYPE tv SYSTEM "xmltv.dtd">` + "\n"
)

type xmlTV struct {
	XMLName    xml.Name       `xml:"tv"`
	Generator  string         `xml:"generator-info-name,attr,omitempty"`
	Channels   []xmlChannel   `xml:"channel"`
	Programmes []xmlProgramme `xml:"programme"`
}

type xmlChannel struct {
	ID           string   `xml:"id,attr"`
	DisplayNames []string `xml:"display-name"`
	Icon         *xmlIcon `xml:"icon,omitempty"`
	Language     string   `xml:"language,omitempty"`
	Country      string   `xml:"country,omitempty"`
}

type xmlIcon struct {
	Src string `xml:"src,attr"`
}

type xmlProgramme struct {
	Start   string  `xml:"start,attr"`
	Stop    string  `xml:"stop,attr"`
	Channel string  `xml:"channel,attr"`
	Title   xmlText `xml:"title"`
	Desc    *string `xml:"desc,omitempty"`
}

type xmlText struct {
	Lang string `xml:"lang,attr,omitempty"`
	Text string `xml:",chardata"`
}

// EncodeGuide writes run as an XMLTV document: one <channel> per channel
// followed by the programmes in the order given. A channel's display names
// are its name, "N. Name" and its ordinal N; language and country (upper
// case) are emitted when known.
func EncodeGuide(w io.Writer, run catalog.Run) error {
	tv := xmlTV{
		Generator:  generatorName,
		Channels:   make([]xmlChannel, 0, len(run.Channels)),
		Programmes: make([]xmlProgramme, 0, len(run.Programmes)),
	}
	for _, ch := range run.Channels {
		n := strconv.Itoa(ch.Ordinal)
		c := xmlChannel{
			ID:           ch.ID,
			DisplayNames: []string{ch.Name, n + ". " + ch.Name, n},
			Language:     strings.TrimSpace(catalog.Value(ch.Language)),
			Country:      strings.ToUpper(strings.TrimSpace(catalog.Value(ch.Country))),
		}
		if ch.Logo != "" {
			c.Icon = &xmlIcon{Src: ch.Logo}
		}
		tv.Channels = append(tv.Channels, c)
	}
	for _, p := range run.Programmes {
		tv.Programmes = append(tv.Programmes, xmlProgramme{
			Start:   p.Start.Format(TimeLayout),
			Stop:    p.Stop.Format(TimeLayout),
			Channel: p.ChannelID,
			Title:   xmlText{Text: p.Title},
			Desc:    p.Description,
		})
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(xml.Header)
	bw.WriteString(doctype)
	enc := xml.NewEncoder(bw)
	enc.Indent("", "  ")
	if err := enc.Encode(tv); err != nil {
		return err
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

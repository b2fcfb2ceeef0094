package guide

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/snapetech/iptvextract/internal/catalog"
	"github.com/snapetech/iptvextract/internal/normalize"
)

// EPG is a parsed XMLTV document. Programmes keep document order and are
// keyed by the declared <channel id>, compared case-insensitively; ids with
// no <channel> element keep the spelling first seen.
type EPG struct {
	Channels   []EPGChannel
	Programmes map[string][]catalog.Programme
	Skipped    int // programmes dropped for missing channel or bad times
}

// EPGChannel is a <channel> element.
type EPGChannel struct {
	ID           string
	DisplayNames []string
}

// ProgrammeCount is the number of parsed programmes.
func (e *EPG) ProgrammeCount() int {
	n := 0
	for _, ps := range e.Programmes {
		n += len(ps)
	}
	return n
}

type xmlText struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type xmlChannelNode struct {
	ID           string    `xml:"id,attr"`
	DisplayNames []xmlText `xml:"display-name"`
}

type xmlProgrammeNode struct {
	Start   string    `xml:"start,attr"`
	Stop    string    `xml:"stop,attr"`
	Channel string    `xml:"channel,attr"`
	Titles  []xmlText `xml:"title"`
	Descs   []xmlText `xml:"desc"`
}

// xmltvLayouts are tried in order. Offsets are optional in the wild; a
// missing offset means UTC.
var xmltvLayouts = []string{
	"20060102150405 -0700",
	"20060102150405 MST",
	"20060102150405",
	"200601021504 -0700",
	"200601021504",
}

// ParseTime parses an XMLTV timestamp such as "20240101060000 +0000".
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range xmltvLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// ParseXMLTV decodes channels and programmes from r one element at a time.
// Documents in encodings other than UTF-8 are converted using their XML
// declaration. A structurally broken document returns a *normalize.ParseError;
// individual bad programmes are skipped and counted.
func ParseXMLTV(r io.Reader) (*EPG, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	epg := &EPG{}
	var progs []catalog.Programme
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &normalize.ParseError{Reason: "malformed XMLTV: " + err.Error(), Offset: dec.InputOffset()}
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "tv":
			sawRoot = true
		case "channel":
			var node xmlChannelNode
			if err := dec.DecodeElement(&node, &se); err != nil {
				return nil, &normalize.ParseError{Reason: "malformed <channel>: " + err.Error(), Offset: dec.InputOffset()}
			}
			id := strings.TrimSpace(node.ID)
			if id == "" {
				continue
			}
			ch := EPGChannel{ID: id}
			for _, dn := range node.DisplayNames {
				if name := strings.TrimSpace(dn.Value); name != "" {
					ch.DisplayNames = append(ch.DisplayNames, name)
				}
			}
			epg.Channels = append(epg.Channels, ch)
		case "programme":
			var node xmlProgrammeNode
			if err := dec.DecodeElement(&node, &se); err != nil {
				return nil, &normalize.ParseError{Reason: "malformed <programme>: " + err.Error(), Offset: dec.InputOffset()}
			}
			p, ok := programmeFromNode(node)
			if !ok {
				epg.Skipped++
				continue
			}
			progs = append(progs, p)
		}
	}
	if !sawRoot {
		return nil, &normalize.ParseError{Reason: "missing <tv> root element"}
	}
	epg.Programmes = groupProgrammes(epg.Channels, progs)
	return epg, nil
}

func groupProgrammes(chans []EPGChannel, progs []catalog.Programme) map[string][]catalog.Programme {
	canon := make(map[string]string, len(chans))
	for _, ch := range chans {
		k := strings.ToLower(ch.ID)
		if _, ok := canon[k]; !ok {
			canon[k] = ch.ID
		}
	}
	out := make(map[string][]catalog.Programme)
	for _, p := range progs {
		k := strings.ToLower(p.ChannelID)
		id, ok := canon[k]
		if !ok {
			id = p.ChannelID
			canon[k] = id
		}
		p.ChannelID = id
		out[id] = append(out[id], p)
	}
	return out
}

// programmeFromNode converts a node. Stop may be zero when the source
// omitted it; Build fills it from the next programme.
func programmeFromNode(n xmlProgrammeNode) (catalog.Programme, bool) {
	channel := strings.TrimSpace(n.Channel)
	if channel == "" {
		return catalog.Programme{}, false
	}
	start, err := ParseTime(n.Start)
	if err != nil {
		return catalog.Programme{}, false
	}
	var stop time.Time
	if strings.TrimSpace(n.Stop) != "" {
		if stop, err = ParseTime(n.Stop); err != nil || !stop.After(start) {
			return catalog.Programme{}, false
		}
	}
	p := catalog.Programme{
		ChannelID: channel,
		Start:     start,
		Stop:      stop,
		Title:     firstText(n.Titles),
	}
	if d := firstText(n.Descs); d != "" {
		p.Description = catalog.Str(d)
	}
	return p, true
}

func firstText(vals []xmlText) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v.Value); s != "" {
			return s
		}
	}
	return ""
}

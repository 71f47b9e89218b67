package parser

import (
	"encoding/xml"
	"html"
	"strings"
)

// richText captures an element's content as markup. Escaped and CDATA
// text comes through decoded, and inline child elements are written back
// out as tags, so all three encodings of the same HTML yield one string.
type richText string

var voidElements = map[string]bool{
	"br": true, "hr": true, "img": true, "input": true, "meta": true,
	"link": true, "source": true, "wbr": true, "area": true, "col": true,
}

func (r *richText) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	var open []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			b.WriteString("<" + name)
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				b.WriteString(" " + a.Name.Local + `="` + html.EscapeString(a.Value) + `"`)
			}
			if voidElements[name] {
				b.WriteString("/>")
			} else {
				b.WriteString(">")
			}
			open = append(open, name)
		case xml.EndElement:
			if len(open) == 0 {
				*r = richText(b.String())
				return nil
			}
			name := open[len(open)-1]
			open = open[:len(open)-1]
			if !voidElements[name] {
				b.WriteString("</" + name + ">")
			}
		case xml.CharData:
			if len(open) == 0 {
				b.Write(t)
			} else {
				b.WriteString(html.EscapeString(string(t)))
			}
		}
	}
}

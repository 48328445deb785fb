package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed reports a manifest the XML decoder could not make sense of.
var ErrMalformed = errors.New("malformed manifest")

// Parse decodes an XML manifest into an arena document. Comments, processing
// instructions and directives are discarded; only elements, attributes and
// character data survive.
func Parse(r io.Reader) (*Document, error) {
	d := &Document{root: None}
	decoder := xml.NewDecoder(r)

	current := None
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			id := d.CreateElement(t.Name.Local)
			d.nodes[id].attrs = append(d.nodes[id].attrs, t.Attr...)
			if current == None {
				if d.root != None {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformed)
				}
				d.root = id
			} else {
				d.AppendChild(current, id)
			}
			current = id
		case xml.EndElement:
			if current == None {
				return nil, fmt.Errorf("%w: unbalanced end element %q", ErrMalformed, t.Name.Local)
			}
			current = d.nodes[current].parent
		case xml.CharData:
			if current != None {
				if text := strings.TrimSpace(string(t)); text != "" {
					d.nodes[current].text += text
				}
			}
		}
	}

	if d.root == None {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	return d, nil
}

// WriteTo serializes the document back to XML. Nodes without children or
// character data render as self-closing elements.
func (d *Document) WriteTo(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return d.writeNode(w, d.root)
}

// String renders the document as an XML string through the same path as WriteTo,
// so staged and streamed manifests are byte-identical.
func (d *Document) String() string {
	var b strings.Builder
	_ = d.WriteTo(&b)
	return b.String()
}

func (d *Document) writeNode(w io.Writer, id int) error {
	n := d.nodes[id]

	if _, err := fmt.Fprintf(w, "<%s", n.name); err != nil {
		return err
	}
	for _, a := range n.attrs {
		if _, err := fmt.Fprintf(w, ` %s="`, a.Name.Local); err != nil {
			return err
		}
		if err := xml.EscapeText(w, []byte(a.Value)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `"`); err != nil {
			return err
		}
	}

	if n.text == "" && len(n.children) == 0 {
		_, err := io.WriteString(w, "/>")
		return err
	}

	if _, err := io.WriteString(w, ">"); err != nil {
		return err
	}
	if n.text != "" {
		if err := xml.EscapeText(w, []byte(n.text)); err != nil {
			return err
		}
	}
	for _, c := range n.children {
		if err := d.writeNode(w, c); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "</%s>", n.name)
	return err
}

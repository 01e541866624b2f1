package structparse

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// readXML maps the document element to the root node. Attributes and child
// elements become children in document order; a text only element is a
// scalar, or a vector when its text is several numbers.
func readXML(r io.Reader) (*value, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("xml: no root element")
		}
		if err != nil {
			return nil, fmt.Errorf("xml: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			v, err := xmlElement(dec, start, 0)
			if err != nil {
				return nil, fmt.Errorf("xml: %w", err)
			}
			return v, nil
		}
	}
}

func xmlElement(dec *xml.Decoder, start xml.StartElement, depth int) (*value, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	v := &value{kind: kindObject, name: start.Name.Local}
	for _, a := range start.Attr {
		item := scalar(a.Value, false)
		item.name = a.Name.Local
		v.items = append(v.items, item)
	}
	var text strings.Builder
loop:
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := xmlElement(dec, t, depth+1)
			if err != nil {
				return nil, err
			}
			v.items = append(v.items, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			break loop
		}
	}
	if len(v.items) > 0 {
		return v, nil
	}
	body := strings.TrimSpace(text.String())
	fields := strings.Fields(body)
	switch {
	case len(fields) == 0:
		v.kind = kindNull
	case len(fields) > 1 && allNumbers(fields):
		v.kind = kindList
		for _, f := range fields {
			v.items = append(v.items, scalar(f, false))
		}
	default:
		v.kind = kindScalar
		v.text = body
	}
	return v, nil
}

func allNumbers(fields []string) bool {
	for _, f := range fields {
		switch classify(scalar(f, false)) {
		case classInteger, classFloat:
		default:
			return false
		}
	}
	return true
}

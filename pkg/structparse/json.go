package structparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

func readJSON(r io.Reader) (*value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := jsonValue(dec, 0)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("json: data after the top level value")
	}
	return v, nil
}

func jsonValue(dec *json.Decoder, depth int) (*value, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		v := &value{kind: kindList}
		if t == '{' {
			v.kind = kindObject
		} else if t != '[' {
			return nil, fmt.Errorf("unexpected %q", rune(t))
		}
		for dec.More() {
			var key string
			if v.kind == kindObject {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ = kt.(string)
			}
			item, err := jsonValue(dec, depth+1)
			if err != nil {
				return nil, err
			}
			item.name = key
			v.items = append(v.items, item)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return v, nil
	case json.Number:
		return scalar(t.String(), false), nil
	case string:
		return scalar(t, true), nil
	case bool:
		return scalar(strconv.FormatBool(t), false), nil
	case nil:
		return &value{kind: kindNull}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

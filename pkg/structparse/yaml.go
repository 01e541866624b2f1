package structparse

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

func readYAML(r io.Reader) (*value, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &value{kind: kindNull}, nil
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	v, err := yamlValue(&doc, 0)
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return v, nil
}

func yamlValue(n *yaml.Node, depth int) (*value, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return &value{kind: kindNull}, nil
		}
		return yamlValue(n.Content[0], depth)
	case yaml.AliasNode:
		return yamlValue(n.Alias, depth+1)
	case yaml.MappingNode:
		v := &value{kind: kindObject}
		for i := 0; i+1 < len(n.Content); i += 2 {
			item, err := yamlValue(n.Content[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			item.name = n.Content[i].Value
			v.items = append(v.items, item)
		}
		return v, nil
	case yaml.SequenceNode:
		v := &value{kind: kindList}
		for _, c := range n.Content {
			item, err := yamlValue(c, depth+1)
			if err != nil {
				return nil, err
			}
			v.items = append(v.items, item)
		}
		return v, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return &value{kind: kindNull}, nil
		case "!!str", "!!binary", "!!timestamp":
			return scalar(n.Value, true), nil
		}
		return scalar(n.Value, false), nil
	}
	return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
}

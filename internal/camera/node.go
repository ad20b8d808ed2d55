package camera

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type nodeKind int

const (
	nodeNull nodeKind = iota
	nodeNumber
	nodeBool
	nodeString
	nodeArray
	nodeObject
)

// node is a decoded JSON value that keeps object keys in document order.
type node struct {
	kind  nodeKind
	num   float64
	str   string
	items []node
	keys  []string
}

func (n node) get(key string) (node, bool) {
	for i, k := range n.keys {
		if k == key {
			return n.items[i], true
		}
	}
	return node{}, false
}

// float coerces scalars the way a lenient numeric cast would; ok is false when it cannot.
func (n node) float() (float64, bool) {
	switch n.kind {
	case nodeNumber:
		return n.num, true
	case nodeBool:
		return n.num, true
	case nodeString:
		v, err := strconv.ParseFloat(strings.TrimSpace(n.str), 64)
		return v, err == nil
	}
	return 0, false
}

func decodeNode(data []byte) (node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := readNode(dec)
	if err != nil {
		return node{}, err
	}
	if dec.More() {
		return node{}, fmt.Errorf("unexpected trailing data")
	}
	return n, nil
}

func readNode(dec *json.Decoder) (node, error) {
	tok, err := dec.Token()
	if err != nil {
		return node{}, err
	}

	switch v := tok.(type) {
	case nil:
		return node{kind: nodeNull}, nil
	case bool:
		n := node{kind: nodeBool}
		if v {
			n.num = 1
		}
		return n, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return node{}, fmt.Errorf("bad number %q: %w", v, err)
		}
		return node{kind: nodeNumber, num: f}, nil
	case string:
		return node{kind: nodeString, str: v}, nil
	case json.Delim:
		switch v {
		case '[':
			n := node{kind: nodeArray}
			for dec.More() {
				item, err := readNode(dec)
				if err != nil {
					return node{}, err
				}
				n.items = append(n.items, item)
			}
			_, err := dec.Token()
			return n, err
		case '{':
			n := node{kind: nodeObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return node{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return node{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := readNode(dec)
				if err != nil {
					return node{}, err
				}
				n.keys = append(n.keys, key)
				n.items = append(n.items, val)
			}
			_, err := dec.Token()
			return n, err
		}
	}
	return node{}, fmt.Errorf("unexpected token %v", tok)
}

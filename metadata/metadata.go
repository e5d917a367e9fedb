// Package metadata tokenizes the `<KEY:VALUE>` repetitions that make up
// every metadata block in a supernote file, per spec §4.2 (C2).
package metadata

import (
	"bytes"
	"encoding/json"

	"github.com/snotelib/supernote/snerr"
)

// Block is a parsed metadata block: an ordered mapping from key to either
// a single value or, when the key repeated, an ordered list of values.
// Duplicate-key policy (spec §3/§4.2): the first duplicate promotes the
// stored value from scalar to list; later duplicates append.
type Block struct {
	order  []string
	values map[string][]string
}

// NewBlock returns an empty Block.
func NewBlock() *Block {
	return &Block{values: make(map[string][]string)}
}

func (b *Block) set(key, value string) {
	if _, ok := b.values[key]; !ok {
		b.order = append(b.order, key)
	}
	b.values[key] = append(b.values[key], value)
}

// Has reports whether key occurred at least once.
func (b *Block) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

// Get returns the first (or only) value for key.
func (b *Block) Get(key string) (string, bool) {
	vs, ok := b.values[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// GetAll returns every value recorded for key, in encounter order.
func (b *Block) GetAll(key string) []string {
	return b.values[key]
}

// IsList reports whether key occurred more than once.
func (b *Block) IsList(key string) bool {
	return len(b.values[key]) > 1
}

// Keys returns every key in first-occurrence order.
func (b *Block) Keys() []string {
	return b.order
}

// KeysWithPrefix returns every key with the given prefix, in
// first-occurrence order.
func (b *Block) KeysWithPrefix(prefix string) []string {
	var out []string
	for _, k := range b.order {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out
}

// Len returns the number of distinct keys.
func (b *Block) Len() int {
	return len(b.order)
}

// MarshalJSON serializes a Block as a JSON object in first-occurrence key
// order, matching spec §6's "insertion-ordered keys" metadata export
// contract (encoding/json's map handling alone would sort keys
// alphabetically). A key that occurred once marshals as a plain string;
// one that repeated marshals as a string array.
func (b *Block) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range b.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vs := b.values[k]
		var vb []byte
		if len(vs) == 1 {
			vb, err = json.Marshal(vs[0])
		} else {
			vb, err = json.Marshal(vs)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse tokenizes payload as a repetition of `<KEY:VALUE>` tokens. KEY
// contains no `<`, `>`, or `:`; VALUE is matched non-greedily up to the
// next `>`, so VALUE itself may contain `<` or `:` but never `>`.
//
// Fails with a MalformedMetadata error when payload is non-empty but no
// token matches.
func Parse(payload []byte) (*Block, error) {
	b := NewBlock()
	if len(payload) == 0 {
		return b, nil
	}

	matched := false
	i := 0
	for i < len(payload) {
		if payload[i] != '<' {
			i++
			continue
		}
		keyStart := i + 1
		j := keyStart
		for j < len(payload) && payload[j] != ':' && payload[j] != '<' && payload[j] != '>' {
			j++
		}
		if j >= len(payload) || payload[j] != ':' {
			// Not a well-formed "<KEY:" opener; keep scanning from the next byte.
			i++
			continue
		}
		key := string(payload[keyStart:j])

		valueStart := j + 1
		closeIdx := -1
		for k := valueStart; k < len(payload); k++ {
			if payload[k] == '>' {
				closeIdx = k
				break
			}
		}
		if closeIdx < 0 {
			break
		}
		value := string(payload[valueStart:closeIdx])
		b.set(key, value)
		matched = true
		i = closeIdx + 1
	}

	if !matched {
		return nil, snerr.NewMalformedMetadata("no <KEY:VALUE> tokens found in non-empty block")
	}
	return b, nil
}

package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Keywords is an insertion-ordered map of keyword name to an optional value.
// A nil value records a bare keyword such as "hazard" with no ": value" part.
// Keywords are not safe for concurrent mutation.
type Keywords struct {
	order  []string
	values map[string]*string
}

func NewKeywords() *Keywords {
	return &Keywords{values: map[string]*string{}}
}

// KeywordsFrom builds keywords from alternating key/value pairs.
func KeywordsFrom(pairs ...string) *Keywords {
	kw := NewKeywords()
	for i := 0; i+1 < len(pairs); i += 2 {
		kw.Set(pairs[i], pairs[i+1])
	}
	return kw
}

func (k *Keywords) Set(key, value string) {
	v := value
	k.put(key, &v)
}

// SetBare records key without a value.
func (k *Keywords) SetBare(key string) { k.put(key, nil) }

func (k *Keywords) put(key string, v *string) {
	if k.values == nil {
		k.values = map[string]*string{}
	}
	if _, ok := k.values[key]; !ok {
		k.order = append(k.order, key)
	}
	k.values[key] = v
}

// Get returns the value for key. ok is false when the key is absent or bare.
func (k *Keywords) Get(key string) (string, bool) {
	if k == nil {
		return "", false
	}
	v, ok := k.values[key]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

func (k *Keywords) Has(key string) bool {
	if k == nil {
		return false
	}
	_, ok := k.values[key]
	return ok
}

func (k *Keywords) Keys() []string {
	if k == nil {
		return nil
	}
	return append([]string(nil), k.order...)
}

func (k *Keywords) Len() int {
	if k == nil {
		return 0
	}
	return len(k.order)
}

func (k *Keywords) Clone() *Keywords {
	out := NewKeywords()
	if k == nil {
		return out
	}
	for _, key := range k.order {
		if v := k.values[key]; v != nil {
			out.Set(key, *v)
		} else {
			out.SetBare(key)
		}
	}
	return out
}

// Merge copies every entry of o into k, overwriting existing values.
func (k *Keywords) Merge(o *Keywords) {
	if o == nil {
		return
	}
	for _, key := range o.order {
		k.put(key, o.values[key])
	}
}

// ParseKeywordList parses "key:value,key,key:value" as used in map server
// keyword lists. Items without a colon become bare keywords.
func ParseKeywordList(s string) (*Keywords, error) {
	kw := NewKeywords()
	for item := range strings.SplitSeq(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, val, found := strings.Cut(item, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty keyword name in %q", item)
		}
		if !found {
			kw.SetBare(key)
			continue
		}
		kw.Set(key, strings.TrimSpace(val))
	}
	return kw, nil
}

type keywordPair struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// MarshalJSON encodes keywords as an ordered list of pairs.
func (k *Keywords) MarshalJSON() ([]byte, error) {
	pairs := make([]keywordPair, 0, k.Len())
	if k != nil {
		for _, key := range k.order {
			pairs = append(pairs, keywordPair{Key: key, Value: k.values[key]})
		}
	}
	return json.Marshal(pairs)
}

func (k *Keywords) UnmarshalJSON(b []byte) error {
	var pairs []keywordPair
	if err := json.Unmarshal(b, &pairs); err != nil {
		return fmt.Errorf("decode keywords: %w", err)
	}
	k.order = nil
	k.values = map[string]*string{}
	for _, p := range pairs {
		k.put(p.Key, p.Value)
	}
	return nil
}

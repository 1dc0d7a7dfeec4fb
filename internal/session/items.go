package session

import (
	"sort"

	"github.com/goccy/go-json"
)

// Items is the collection of values stored in one session. Values are kept
// in their encoded form so unknown types survive a load/save cycle.
// Items is not safe for concurrent use.
type Items struct {
	values map[string]json.RawMessage
	dirty  bool
}

func NewItems() *Items {
	return &Items{values: make(map[string]json.RawMessage)}
}

// Set stores v under key
func (it *Items) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if it.values == nil {
		it.values = make(map[string]json.RawMessage)
	}
	it.values[key] = raw
	it.dirty = true
	return nil
}

// Get decodes the value under key into out and reports whether it existed
func (it *Items) Get(key string, out any) (bool, error) {
	raw, ok := it.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

// Raw returns the encoded value under key
func (it *Items) Raw(key string) ([]byte, bool) {
	raw, ok := it.values[key]
	return raw, ok
}

func (it *Items) Remove(key string) {
	if _, ok := it.values[key]; ok {
		delete(it.values, key)
		it.dirty = true
	}
}

func (it *Items) Clear() {
	if len(it.values) > 0 {
		it.values = make(map[string]json.RawMessage)
		it.dirty = true
	}
}

// Keys returns the item keys in sorted order
func (it *Items) Keys() []string {
	keys := make([]string, 0, len(it.values))
	for k := range it.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (it *Items) Len() int {
	return len(it.values)
}

// Dirty reports whether the collection changed since it was created or loaded
func (it *Items) Dirty() bool {
	return it.dirty
}

func (it *Items) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.values)
}

func (it *Items) UnmarshalJSON(data []byte) error {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	// a null payload is an empty collection
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	it.values = values
	it.dirty = false
	return nil
}

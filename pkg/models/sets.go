package models

import (
	"encoding/json"
	"sort"
)

// IntSet marshals as a sorted JSON array.
type IntSet map[int]struct{}

func (s IntSet) Add(v int) { s[v] = struct{}{} }

func (s IntSet) Has(v int) bool {
	_, ok := s[v]
	return ok
}

func (s IntSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func (s IntSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IntSet) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = make(IntSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return nil
}

// KeySet holds "{type}-{id}" content keys and marshals as a sorted JSON array.
type KeySet map[string]struct{}

func (s KeySet) Add(v string) { s[v] = struct{}{} }

func (s KeySet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s KeySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s KeySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *KeySet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = make(KeySet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return nil
}

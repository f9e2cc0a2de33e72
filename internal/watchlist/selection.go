package watchlist

import "strings"

// Selection is the set of chosen coins. It remembers insertion order but
// requests use Ordered, which follows the available-coins list.
type Selection struct {
	items []string
	keys  map[string]struct{}
}

// NewSelection returns a selection holding coins in the given order.
func NewSelection(coins ...string) *Selection {
	s := &Selection{keys: make(map[string]struct{})}
	for _, c := range coins {
		s.Add(c)
	}
	return s
}

// Add inserts coin. It reports false for empties and duplicates.
func (s *Selection) Add(coin string) bool {
	coin = strings.TrimSpace(coin)
	k := coinKey(coin)
	if k == "" {
		return false
	}
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	s.items = append(s.items, coin)
	return true
}

// Remove deletes coin, matching case-insensitively.
func (s *Selection) Remove(coin string) bool {
	k := coinKey(coin)
	if _, ok := s.keys[k]; !ok {
		return false
	}
	delete(s.keys, k)
	for i, c := range s.items {
		if coinKey(c) == k {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return true
}

// Toggle adds coin if absent, removes it otherwise, and reports whether it
// is selected afterwards.
func (s *Selection) Toggle(coin string) bool {
	if s.Remove(coin) {
		return false
	}
	return s.Add(coin)
}

func (s *Selection) Has(coin string) bool {
	_, ok := s.keys[coinKey(coin)]
	return ok
}

func (s *Selection) Len() int { return len(s.items) }

// Items returns the coins in insertion order.
func (s *Selection) Items() []string {
	return append([]string(nil), s.items...)
}

// Clone returns an independent copy.
func (s *Selection) Clone() *Selection {
	return NewSelection(s.items...)
}

// Ordered serializes the selection for a request: selected coins in the
// order of available (using the available spelling), followed by any
// selected coin not in available, in insertion order.
func (s *Selection) Ordered(available []string) []string {
	out := make([]string, 0, len(s.items))
	placed := make(map[string]struct{}, len(s.items))
	for _, c := range NormalizeCoins(available) {
		k := coinKey(c)
		if _, ok := s.keys[k]; ok {
			out = append(out, c)
			placed[k] = struct{}{}
		}
	}
	for _, c := range s.items {
		if _, ok := placed[coinKey(c)]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Filter returns the coins of list that are selected, in list order.
func (s *Selection) Filter(list []string) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

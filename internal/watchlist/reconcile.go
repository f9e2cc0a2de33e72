// Package watchlist derives and persists the per-asset list of preferred
// coins from the coins observed in report previews.
package watchlist

import "strings"

// AutoLimit is how many available coins are taken when neither the previous
// watchlist nor the universe overlap yields anything.
const AutoLimit = 12

func coinKey(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// NormalizeCoins trims, drops empties and removes case-insensitive
// duplicates. The first-seen spelling and order are kept.
func NormalizeCoins(coins []string) []string {
	out := make([]string, 0, len(coins))
	seen := make(map[string]struct{}, len(coins))
	for _, c := range coins {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		k := coinKey(c)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

func keySet(coins []string) map[string]struct{} {
	set := make(map[string]struct{}, len(coins))
	for _, c := range coins {
		if k := coinKey(c); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// Reconcile computes the next watchlist for one asset using AutoLimit.
func Reconcile(prev, available, usd, thb []string) []string {
	return ReconcileN(prev, available, usd, thb, AutoLimit)
}

// ReconcileN computes the next watchlist:
//
//   - no available coins gives an empty list;
//   - previous entries still available are kept in their previous order;
//   - otherwise the coins present in both universes, in available order;
//   - otherwise the first n available coins.
//
// The inputs are not modified.
func ReconcileN(prev, available, usd, thb []string, n int) []string {
	avail := NormalizeCoins(available)
	if len(avail) == 0 {
		return []string{}
	}
	availKeys := keySet(avail)

	kept := make([]string, 0, len(prev))
	for _, c := range NormalizeCoins(prev) {
		if _, ok := availKeys[coinKey(c)]; ok {
			kept = append(kept, c)
		}
	}
	if len(kept) > 0 {
		return kept
	}

	usdKeys, thbKeys := keySet(usd), keySet(thb)
	overlap := make([]string, 0, len(avail))
	for _, c := range avail {
		k := coinKey(c)
		_, inUSD := usdKeys[k]
		_, inTHB := thbKeys[k]
		if inUSD && inTHB {
			overlap = append(overlap, c)
		}
	}
	if len(overlap) > 0 {
		return overlap
	}

	if n <= 0 || n > len(avail) {
		n = len(avail)
	}
	return append([]string(nil), avail[:n]...)
}

// Equal reports element-wise equality.
func Equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

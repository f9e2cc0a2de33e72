package watchlist

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/dgnsrekt/eglc_companion/internal/kvstore"
)

const (
	keyPrefix = "eglc.watchlist."
	// OnlyKey holds the "show only watchlist coins" flag.
	OnlyKey = "eglc.watchlist.only"

	storageTimeout = 2 * time.Second
)

// Assets with a persisted watchlist.
var Assets = []string{cleanapi.AssetUSD, cleanapi.AssetTHB}

// Key is the storage key for an asset's watchlist.
func Key(asset string) string { return keyPrefix + asset }

// Snapshot is the persisted watchlist state.
type Snapshot struct {
	Lists map[string][]string `json:"lists"`
	Only  bool                `json:"only"`
}

// Store holds the per-asset watchlists.
type Store struct {
	storage kvstore.Storage
	pub     broadcast.Publisher
	limit   int

	mu    sync.Mutex
	lists map[string][]string
	only  bool
}

// NewStore loads persisted watchlists. Unreadable or malformed entries load
// as empty.
func NewStore(storage kvstore.Storage, pub broadcast.Publisher, limit int) *Store {
	if pub == nil {
		pub = broadcast.Discard{}
	}
	if limit <= 0 {
		limit = AutoLimit
	}
	s := &Store{storage: storage, pub: pub, limit: limit, lists: make(map[string][]string)}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	for _, asset := range Assets {
		v, ok, err := storage.Get(ctx, Key(asset))
		if err != nil {
			slog.Debug("watchlist read failed", "asset", asset, "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.lists[asset] = decodeList(v)
	}
	if v, ok, err := storage.Get(ctx, OnlyKey); err != nil {
		slog.Debug("watchlist flag read failed", "error", err)
	} else if ok {
		s.only, _ = strconv.ParseBool(v)
	}
	return s
}

func decodeList(v string) []string {
	var coins []string
	if err := json.Unmarshal([]byte(v), &coins); err != nil {
		slog.Debug("watchlist value malformed", "error", err)
		return []string{}
	}
	return NormalizeCoins(coins)
}

func (s *Store) assetKnown(asset string) bool {
	for _, a := range Assets {
		if a == asset {
			return true
		}
	}
	return false
}

// Get returns a copy of the asset's watchlist.
func (s *Store) Get(asset string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.lists[asset]...)
}

// Snapshot returns every list and the flag.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{Lists: make(map[string][]string, len(Assets)), Only: s.only}
	for _, a := range Assets {
		out.Lists[a] = append([]string{}, s.lists[a]...)
	}
	return out
}

// Update reconciles the asset's watchlist against the coins observed in a
// preview response. It reports whether the stored list changed.
func (s *Store) Update(ctx context.Context, asset string, available, usd, thb []string) ([]string, bool) {
	s.mu.Lock()
	prev := s.lists[asset]
	s.mu.Unlock()

	next := ReconcileN(prev, available, usd, thb, s.limit)
	return next, s.store(ctx, asset, next, "reconcile")
}

// Set replaces the asset's watchlist with a user edit.
func (s *Store) Set(ctx context.Context, asset string, coins []string) ([]string, bool) {
	next := NormalizeCoins(coins)
	return next, s.store(ctx, asset, next, "edit")
}

func (s *Store) store(ctx context.Context, asset string, next []string, source string) bool {
	if !s.assetKnown(asset) {
		slog.Debug("watchlist asset ignored", "asset", asset)
		return false
	}
	s.mu.Lock()
	if Equal(s.lists[asset], next) {
		s.mu.Unlock()
		return false
	}
	s.lists[asset] = append([]string{}, next...)
	s.mu.Unlock()

	raw, _ := json.Marshal(next)
	if err := s.storage.Set(ctx, Key(asset), string(raw)); err != nil {
		slog.Warn("watchlist write failed", "asset", asset, "error", err)
	}
	s.pub.Publish(broadcast.NewEvent(broadcast.TopicWatchlist, map[string]any{
		"asset":  asset,
		"coins":  next,
		"source": source,
	}))
	return true
}

// WatchlistOnly reports whether the coin picker is limited to the watchlist.
func (s *Store) WatchlistOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.only
}

func (s *Store) SetWatchlistOnly(ctx context.Context, on bool) {
	s.mu.Lock()
	if s.only == on {
		s.mu.Unlock()
		return
	}
	s.only = on
	s.mu.Unlock()

	if err := s.storage.Set(ctx, OnlyKey, strconv.FormatBool(on)); err != nil {
		slog.Warn("watchlist flag write failed", "error", err)
	}
	s.pub.Publish(broadcast.NewEvent(broadcast.TopicWatchlist, map[string]any{"only": on, "source": "edit"}))
}

// ApplyExternal adopts a watchlist change made by another process.
func (s *Store) ApplyExternal(c kvstore.Change) {
	switch {
	case c.Key == OnlyKey:
		on := false
		if !c.Deleted {
			on, _ = strconv.ParseBool(c.Value)
		}
		s.mu.Lock()
		changed := s.only != on
		s.only = on
		s.mu.Unlock()
		if changed {
			s.pub.Publish(broadcast.NewEvent(broadcast.TopicWatchlist, map[string]any{"only": on, "source": "storage"}))
		}

	case strings.HasPrefix(c.Key, keyPrefix):
		asset := strings.TrimPrefix(c.Key, keyPrefix)
		if !s.assetKnown(asset) {
			return
		}
		next := []string{}
		if !c.Deleted {
			next = decodeList(c.Value)
		}
		s.mu.Lock()
		if Equal(s.lists[asset], next) {
			s.mu.Unlock()
			return
		}
		s.lists[asset] = next
		s.mu.Unlock()
		s.pub.Publish(broadcast.NewEvent(broadcast.TopicWatchlist, map[string]any{
			"asset":  asset,
			"coins":  next,
			"source": "storage",
		}))
	}
}

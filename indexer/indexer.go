// Package indexer maintains secondary indexes over committed blocks so
// frontends can query lottery history and per-player records without
// scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/events"
	"github.com/ddlab/luckchain/storage"
)

const (
	keyHistory          = "idx:history"
	prefixPlayerSession = "idx:player:session:"
	prefixPlayerWins    = "idx:player:wins:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventBetPlaced, idx.onBetPlaced)
	emitter.Subscribe(events.EventLotterySettled, idx.onLotterySettled)
	return idx
}

// GetHistory returns the IDs of settled sessions, most recent last.
// limit caps the result from the tail; limit <= 0 returns everything.
func (idx *Indexer) GetHistory(limit int) ([]string, error) {
	ids, err := idx.getList(keyHistory)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	return ids, nil
}

// GetSessionsByPlayer returns all session IDs a player placed a bet in.
func (idx *Indexer) GetSessionsByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerSession + player)
}

// GetWinsByPlayer returns the IDs of sessions the player won in.
func (idx *Indexer) GetWinsByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerWins + player)
}

// ---- event handlers ----

func (idx *Indexer) onBetPlaced(ev events.Event) {
	sessionID, _ := ev.Data["session_id"].(string)
	player, _ := ev.Data["participant"].(string)
	if sessionID == "" || player == "" {
		return
	}
	_ = idx.addToList(prefixPlayerSession+player, sessionID)
}

func (idx *Indexer) onLotterySettled(ev events.Event) {
	sessionID, _ := ev.Data["session_id"].(string)
	if sessionID == "" {
		return
	}
	_ = idx.addToList(keyHistory, sessionID)

	// One list entry per winning address, no matter how many tickets hit.
	seen := make(map[string]bool)
	switch winners := ev.Data["winners"].(type) {
	case []core.Winner:
		for _, w := range winners {
			if !seen[w.Address] {
				seen[w.Address] = true
				_ = idx.addToList(prefixPlayerWins+w.Address, sessionID)
			}
		}
	case []any:
		// Events that round-tripped through JSON arrive as generic maps.
		for _, raw := range winners {
			m, _ := raw.(map[string]any)
			addr, _ := m["address"].(string)
			if addr != "" && !seen[addr] {
				seen[addr] = true
				_ = idx.addToList(prefixPlayerWins+addr, sessionID)
			}
		}
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, _ := idx.getList(key)
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

// Package decisions persists gate decisions in a write-ahead log so the
// dashboard can stream them and operators can audit why signals were
// accepted or rejected.
package decisions

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

const (
	segmentLimit = 1000
	maxSegments  = 100

	decisionKeyPrefix = "decision_"
)

// Record is a decision with its WAL index, for incremental streaming.
type Record struct {
	Index    uint64
	Decision domain.TradeDecision
}

// WALStore persists trade decisions in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed decision store in dir.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init decision WAL")
	}

	return &WALStore{wal: wal}, nil
}

// SaveDecision appends the decision to the WAL.
func (s *WALStore) SaveDecision(decision domain.TradeDecision) error {
	if s == nil || s.wal == nil {
		return errors.New("decision store is not initialized")
	}
	if decision.Pair == "" {
		return errors.New("decision pair is required")
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		return errors.Wrap(err, "marshal trade decision")
	}

	key := fmt.Sprintf("%s%s", decisionKeyPrefix, decision.Pair)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// DecisionsAfter returns all decisions written after the provided WAL index.
func (s *WALStore) DecisionsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("decision store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, decisionKeyPrefix) {
			continue
		}

		var decision domain.TradeDecision
		if err := json.Unmarshal(payload, &decision); err != nil {
			return nil, errors.Wrap(err, "decode trade decision")
		}
		records = append(records, Record{Index: idx, Decision: decision})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("decision store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

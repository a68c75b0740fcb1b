package engine

import (
	"sync"
	"time"

	"github.com/goran-ethernal/ChainIndexor/internal/graphqlapi"
)

// networkStatus tracks each configured network's historical-sync progress so
// the GraphQL resolver's getNetworkHistoricalSync query (spec.md §6) has
// something to answer without depending on a concrete Syncer — the same role
// graphqlapi.NetworkStatusProvider was defined against. It also tracks each
// chain's last-advanced wall-clock time, so Engine's health check can flip
// unhealthy when options.maxHealthcheckDuration is exceeded.
type networkStatus struct {
	mu           sync.RWMutex
	byID         map[uint64]graphqlapi.NetworkHistoricalSync
	lastAdvanced map[uint64]time.Time
}

var _ graphqlapi.NetworkStatusProvider = (*networkStatus)(nil)

func newNetworkStatus() *networkStatus {
	return &networkStatus{
		byID:         make(map[uint64]graphqlapi.NetworkHistoricalSync),
		lastAdvanced: make(map[uint64]time.Time),
	}
}

func (s *networkStatus) setCheckpoint(chainID, timestamp uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.byID[chainID]
	st.ChainID = chainID
	st.Checkpoint = timestamp
	s.byID[chainID] = st
	s.lastAdvanced[chainID] = time.Now()
}

// touch records progress for chainID without changing its stored
// checkpoint, for realtime sync's checkpoints, which networkStatus doesn't
// otherwise track.
func (s *networkStatus) touch(chainID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAdvanced[chainID] = time.Now()
}

// Healthy reports whether chainID's historical or realtime sync has
// advanced within maxStale. A chain not yet seen is healthy: it is still
// starting up, not stalled.
func (s *networkStatus) Healthy(chainID uint64, maxStale time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.lastAdvanced[chainID]
	if !ok {
		return true
	}
	return time.Since(last) <= maxStale
}

// AllHealthy reports whether every chain in chainIDs is Healthy.
func (s *networkStatus) AllHealthy(chainIDs []uint64, maxStale time.Duration) bool {
	for _, chainID := range chainIDs {
		if !s.Healthy(chainID, maxStale) {
			return false
		}
	}
	return true
}

func (s *networkStatus) setComplete(chainID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.byID[chainID]
	st.ChainID = chainID
	st.IsComplete = true
	s.byID[chainID] = st
}

// NetworkHistoricalSync implements graphqlapi.NetworkStatusProvider.
func (s *networkStatus) NetworkHistoricalSync(chainID uint64) (graphqlapi.NetworkHistoricalSync, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byID[chainID]
	return st, ok
}

package threshold

import (
	"math"
	"sync"

	"go-pneumonet-api/internal/apperrors"
)

// Store owns the process-wide classification threshold. Every access goes
// through the RWMutex; a float assignment may be atomic on a given platform,
// but the store enforces the synchronization discipline rather than relying
// on that.
type Store struct {
	mu    sync.RWMutex
	value float64
}

// New creates a store seeded with the initial threshold.
func New(initial float64) (*Store, error) {
	if !valid(initial) {
		return nil, apperrors.NewInvalidThreshold(initial)
	}
	return &Store{value: initial}, nil
}

// Get returns the current threshold.
func (s *Store) Get() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set updates the threshold. Values outside [0,1] fail with
// InvalidThreshold and leave the current value untouched. A successful
// set is visible to the next Get with no propagation delay.
func (s *Store) Set(v float64) error {
	if !valid(v) {
		return apperrors.NewInvalidThreshold(v)
	}

	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
	return nil
}

func valid(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

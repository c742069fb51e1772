package usecase

import (
	"strconv"
	"sync"

	drepo "MidgardPull/internal/domain/repository"
)

// HistoryGenerations counts committed writes per series. The writer bumps a
// series after its rows are durable; the query service folds the generation
// into cache keys and drops a result whose series moved on while it was read.
type HistoryGenerations struct {
	mu sync.RWMutex
	m  map[drepo.Series]uint64
}

func NewHistoryGenerations() *HistoryGenerations {
	return &HistoryGenerations{m: make(map[drepo.Series]uint64)}
}

// Current returns the generation of series.
func (g *HistoryGenerations) Current(series drepo.Series) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.m[series]
}

// Bump advances series and returns the new generation.
func (g *HistoryGenerations) Bump(series drepo.Series) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.m[series]++
	return g.m[series]
}

func historyCacheGenKey(series drepo.Series, gen uint64) string {
	return historyCachePrefix(series) + strconv.FormatUint(gen, 10) + ":"
}

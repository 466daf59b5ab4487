package relay

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry holds dispatchers ordered by priority and resolves the
// first one that supports a request. Registration order breaks
// priority ties, so re-registering the same priority appends after
// earlier entries.
type Registry struct {
	mu          sync.RWMutex
	dispatchers []Dispatcher
	logger      *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger is replaced with
// a no-op logger.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger.With(zap.String("component", "registry"))}
}

// Register adds a dispatcher and re-sorts by descending priority.
// The sort is stable, preserving registration order within a priority.
func (r *Registry) Register(d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchers = append(r.dispatchers, d)
	sort.SliceStable(r.dispatchers, func(i, j int) bool {
		return r.dispatchers[i].Priority() > r.dispatchers[j].Priority()
	})
	r.logger.Debug("dispatcher registered",
		zap.String("name", d.Name()),
		zap.Int("priority", d.Priority()),
		zap.Int("total", len(r.dispatchers)))
}

// Resolve returns the highest-priority dispatcher that supports the
// request. No silent default: a request nothing supports is a
// configuration mistake and surfaces as NOT_FOUND.
func (r *Registry) Resolve(platform, model string, hasAudio bool) (Dispatcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.dispatchers {
		if d.Supports(platform, model, hasAudio) {
			return d, nil
		}
	}
	return nil, NewError(ErrNotFound,
		fmt.Sprintf("no dispatcher for platform=%s model=%s audio=%v", platform, model, hasAudio))
}

// Dispatchers returns a snapshot of the registered dispatchers in
// resolution order.
func (r *Registry) Dispatchers() []Dispatcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Dispatcher, len(r.dispatchers))
	copy(out, r.dispatchers)
	return out
}

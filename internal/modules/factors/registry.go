package factors

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aristath/factorlab/internal/modules/panel"
)

// Registry maps factor names to configured instances. Registering a factor
// under an existing name replaces the previous instance (last write wins).
// The zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	factors map[string]Factor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factors: make(map[string]Factor)}
}

// Register adds a factor under its own name. Last write wins.
func (r *Registry) Register(f Factor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factors[f.Name()]; exists {
		log.Debug().Str("factor", f.Name()).Msg("replacing registered factor")
	}
	r.factors[f.Name()] = f
}

// Get returns the factor registered under name.
func (r *Registry) Get(name string) (Factor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", panel.ErrUnknownFactor, name)
	}
	return f, nil
}

// Names returns the registered factor names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factors))
	for name := range r.factors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Panel runs every registered factor over the given dates and assembles the
// style-score panel (one column per factor). A (factor, date) pair whose
// history is insufficient is skipped; any other factor error aborts.
func (r *Registry) Panel(data *panel.Panel, dates []time.Time) (*panel.Panel, error) {
	names := r.Names()
	out := panel.New(names...)
	for _, name := range names {
		f, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		for _, date := range dates {
			cs, err := f.Scores(data, date)
			if errors.Is(err, panel.ErrInsufficientData) {
				log.Debug().Str("factor", name).Time("date", date).Msg("skipping factor date, insufficient history")
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("factor %q on %s: %w", name, date.Format("2006-01-02"), err)
			}
			for i, sym := range cs.Symbols {
				if err := out.Set(date, sym, name, cs.Values[i]); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

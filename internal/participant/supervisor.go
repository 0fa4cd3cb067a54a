package participant

import (
	"context"
	"sync"

	"syncd/internal/config"
	"syncd/internal/logging"
)

// Supervisor spawns one Reconciler per enabled directory entry and runs
// them independently: a failure in one does not pause the others
// (spec.md §4.7).
type Supervisor struct {
	participantID string
	client        *Client

	wg          sync.WaitGroup
	mu          sync.Mutex
	reconcilers map[string]*Reconciler
}

// NewSupervisor returns a Supervisor for a participant talking to client.
func NewSupervisor(participantID string, client *Client) *Supervisor {
	return &Supervisor{
		participantID: participantID,
		client:        client,
		reconcilers:   make(map[string]*Reconciler),
	}
}

// Start launches one reconciler goroutine per enabled directory. It returns
// immediately; call Wait or cancel ctx to stop.
func (s *Supervisor) Start(ctx context.Context, dirs []config.ResolvedDirectory) {
	for _, d := range dirs {
		if !d.Enabled {
			logging.Info("%s: disabled, skipping", d.Name)
			continue
		}

		r := NewReconciler(d, s.participantID, s.client)

		s.mu.Lock()
		s.reconcilers[d.Name] = r
		s.mu.Unlock()

		s.wg.Add(1)
		go func(r *Reconciler, name string) {
			defer s.wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					logging.Error("%s: reconciler panicked: %v", name, rec)
				}
			}()
			r.Run(ctx)
		}(r, d.Name)
	}
}

// Wait blocks until every reconciler has returned, i.e. until ctx passed to
// Start is cancelled and each reconciler finishes its current batch and
// persists (graceful shutdown, spec.md §4.7).
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Status returns each tracked directory's current phase, for introspection.
func (s *Supervisor) Status() map[string]Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Phase, len(s.reconcilers))
	for name, r := range s.reconcilers {
		out[name] = r.Phase()
	}
	return out
}

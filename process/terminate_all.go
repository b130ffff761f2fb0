package process

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// TerminateAll terminates every managed process concurrently using an
// all-settled strategy: one failure never prevents the others from
// shutting down, and every error (nil or not) is collected rather than
// discarded (§4.9, §5 concurrency expansion).
func (m *Manager) TerminateAll() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(8)

	var mu sync.Mutex
	var result *multierror.Error

	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := m.Terminate(id)
			mu.Lock()
			result = multierror.Append(result, err)
			mu.Unlock()
			return nil // never short-circuit the fan-out
		})
	}
	_ = g.Wait()

	return result.ErrorOrNil()
}

func (m *Manager) terminateAllAndExit() {
	_ = m.TerminateAll()
}

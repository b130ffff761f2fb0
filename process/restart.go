package process

import (
	"time"

	"github.com/sebastianwebdev/procwire/internal/nlog"
)

// handleProcessExit implements the restart-decision algorithm of §4.9.
func (m *Manager) handleProcessExit(id string, code int, signal string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	for _, fn := range m.onExit {
		fn(ExitEvent{ID: id, Code: code, Signal: signal})
	}

	e.mu.Lock()
	manualStop := e.manualStop
	policy := e.options.RestartPolicy
	attempt := e.restartAttempt
	e.mu.Unlock()

	unclean := code != 0 || signal != ""
	shouldRestart := !manualStop && policy.Enabled && attempt < policy.MaxRestarts && unclean

	if !shouldRestart {
		e.mu.Lock()
		if manualStop || code == 0 {
			e.state = StateStopped
		} else {
			e.state = StateCrashed
		}
		e.mu.Unlock()

		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()

		if !manualStop && unclean {
			m.metrics.Crashes.Inc()
			for _, fn := range m.onCrash {
				fn(CrashEvent{ID: id})
			}
		}
		return
	}

	delay := backoffDelay(policy, attempt)

	e.mu.Lock()
	e.restartAttempt++
	e.state = StateCrashed
	newAttempt := e.restartAttempt
	e.mu.Unlock()

	m.metrics.Restarts.Inc()
	for _, fn := range m.onRestart {
		fn(RestartEvent{ID: id, Attempt: newAttempt, Delay: delay})
	}

	go func() {
		time.Sleep(delay)
		if err := m.bringUp(e); err != nil {
			nlog.Errorf("process(%s): restart attempt %d failed: %v", id, newAttempt, err)
			m.metrics.Crashes.Inc()
			e.mu.Lock()
			e.state = StateError
			e.mu.Unlock()
			for _, fn := range m.onCrash {
				fn(CrashEvent{ID: id})
			}
			m.mu.Lock()
			delete(m.entries, id)
			m.mu.Unlock()
			return
		}

		e.mu.Lock()
		pid := e.transport.Pid()
		e.state = StateRunning
		e.mu.Unlock()

		for _, fn := range m.onSpawn {
			fn(SpawnEvent{ID: id, Pid: pid})
		}
		for _, fn := range m.onReady {
			fn(ReadyEvent{ID: id})
		}
	}()
}

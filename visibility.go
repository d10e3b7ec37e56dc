package sessionkeeper

import "context"

// HandleForeground checks credential freshness after the host regains the
// foreground. Host environments may throttle or suspend timers while in the
// background, so a purely timer-driven schedule can drift; this check
// refreshes out of band when the token is inside the foreground window.
//
// An unknown expiry leaves proactive management alone (reactive recovery
// will handle it), matching the scheduling-context rule for undecodable
// tokens.
func (m *Manager) HandleForeground(ctx context.Context) {
	if m.terminated.Load() {
		return
	}

	cred, err := m.store.Load()
	if err != nil || cred == nil || cred.AccessToken == "" {
		return
	}

	exp := DecodeExpiry(cred.AccessToken)
	if !exp.Known() {
		return
	}

	if exp.Remaining(m.clock.Now()) < m.foregroundThreshold {
		m.logger.Debug("foreground freshness check triggering refresh")
		m.proactiveRefresh()
	}
}

// WatchForeground consumes foreground events from the host (one per
// hidden-to-visible transition) until ctx is done or the channel closes.
func (m *Manager) WatchForeground(ctx context.Context, events <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			m.HandleForeground(ctx)
		}
	}
}

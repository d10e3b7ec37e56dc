package sessionkeeper

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Proactive scheduling thresholds. The refresh timer fires well ahead of
// expiry so the user never sees an interruption; the warning timer only
// fires when it would precede the refresh (a warning after a silent refresh
// would be nonsense).
const (
	RefreshLead  = 5 * time.Minute
	RefreshFloor = 30 * time.Second
	WarningLead  = 2 * time.Minute
	WarningFloor = 10 * time.Second
)

// Scheduler owns the proactive timer pair. At most one pair is ever
// pending: Arm cancels any previous pair before scheduling a new one.
type Scheduler struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	logger *slog.Logger

	onRefresh func()
	onWarning func(remaining time.Duration)

	refreshTimer clockwork.Timer
	warningTimer clockwork.Timer
}

func newScheduler(clock clockwork.Clock, logger *slog.Logger, onRefresh func(), onWarning func(time.Duration)) *Scheduler {
	return &Scheduler{
		clock:     clock,
		logger:    logger,
		onRefresh: onRefresh,
		onWarning: onWarning,
	}
}

// Arm schedules the refresh timer at max(remaining−RefreshLead, RefreshFloor)
// and, when it would fire earlier than that, a warning timer at
// max(remaining−WarningLead, WarningFloor).
//
// An unknown or already-passed expiry skips scheduling entirely; such a
// session relies on reactive recovery.
func (s *Scheduler) Arm(exp ExpiryInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()

	if !exp.Known() {
		s.logger.Debug("skipping proactive scheduling: token expiry unknown")
		return
	}
	remaining := exp.Remaining(s.clock.Now())
	if remaining <= 0 {
		s.logger.Debug("skipping proactive scheduling: token already expired",
			"remaining", remaining)
		return
	}

	refreshIn := remaining - RefreshLead
	refreshClamped := refreshIn < RefreshFloor
	if refreshClamped {
		refreshIn = RefreshFloor
	}
	warnIn := remaining - WarningLead
	if warnIn < WarningFloor {
		warnIn = WarningFloor
	}
	// The warning must precede the refresh: a "session expiring" notice
	// after a silent refresh would be wrong. For short-lived tokens (the
	// clamped-refresh regime) the warning drops to its floor so the user
	// still gets a heads-up before the last-chance refresh.
	if warnIn >= refreshIn && refreshClamped {
		warnIn = WarningFloor
	}

	// Fired timers clear their own handle so pending() only ever reports
	// timers that are actually outstanding.
	var rt clockwork.Timer
	rt = s.clock.AfterFunc(refreshIn, func() {
		s.clearFired(&s.refreshTimer, rt)
		s.onRefresh()
	})
	s.refreshTimer = rt

	if warnIn < refreshIn {
		remainingAtWarn := remaining - warnIn
		var wt clockwork.Timer
		wt = s.clock.AfterFunc(warnIn, func() {
			s.clearFired(&s.warningTimer, wt)
			s.onWarning(remainingAtWarn)
		})
		s.warningTimer = wt
	}

	s.logger.Debug("armed proactive refresh",
		"refresh_in", refreshIn,
		"warning_scheduled", warnIn < refreshIn,
		"remaining", remaining)
}

// Disarm cancels both timers.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

func (s *Scheduler) disarmLocked() {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	if s.warningTimer != nil {
		s.warningTimer.Stop()
		s.warningTimer = nil
	}
}

// clearFired drops a timer handle, but only if it still refers to the
// timer that fired (a re-arm may have replaced it in the meantime).
func (s *Scheduler) clearFired(slot *clockwork.Timer, fired clockwork.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *slot == fired {
		*slot = nil
	}
}

// pending reports which timers are currently armed.
func (s *Scheduler) pending() (refresh, warning bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshTimer != nil, s.warningTimer != nil
}

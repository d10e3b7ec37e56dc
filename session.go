package sessionkeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// RefreshReason distinguishes a timer-driven refresh from one triggered by
// an observed authorization failure. The two differ only in how failures
// are handled at the call site.
type RefreshReason string

const (
	RefreshProactive RefreshReason = "proactive"
	RefreshReactive  RefreshReason = "reactive"
)

// ForegroundThreshold is the freshness window checked when the host regains
// the foreground. It is wider than RefreshLead so drift accumulated while
// the host suspended timers is caught.
const ForegroundThreshold = 10 * time.Minute

// Manager keeps an access token valid for the life of a session. It
// coordinates refreshes (single-flight across all triggers), arms proactive
// timers ahead of expiry, recovers from 401s on wrapped requests, and tears
// the session down on terminal failures.
type Manager struct {
	serverURL string
	store     CredentialStore
	api       *AuthAPI
	sched     *Scheduler
	clock     clockwork.Clock
	logger    *slog.Logger

	group      singleflight.Group
	terminated atomic.Bool

	onTerminate func()
	onWarning   func(remaining time.Duration)

	foregroundThreshold time.Duration
	baseTransport       http.RoundTripper
	httpClient          *http.Client
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config,
// etc.). Its transport is wrapped with the session gateway.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			m.baseTransport = client.Transport
		}
		m.httpClient.Timeout = client.Timeout
		m.httpClient.CheckRedirect = client.CheckRedirect
		m.httpClient.Jar = client.Jar
	}
}

// WithTransport sets a custom base transport (for connection pooling,
// proxies, etc.).
func WithTransport(transport http.RoundTripper) Option {
	return func(m *Manager) {
		m.baseTransport = transport
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock injects the clock used for scheduling. Tests pass a
// clockwork.FakeClock to simulate time without real delays.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithOnTerminate sets the callback invoked exactly once when the session
// ends (explicit logout or terminal failure). Hosts typically redirect to
// their login surface here.
func WithOnTerminate(fn func()) Option {
	return func(m *Manager) {
		m.onTerminate = fn
	}
}

// WithOnWarning sets the callback for the pre-expiry user warning. It
// receives the time remaining until the token expires.
func WithOnWarning(fn func(remaining time.Duration)) Option {
	return func(m *Manager) {
		m.onWarning = fn
	}
}

// WithAuthPaths overrides the auth endpoint paths. Empty values keep the
// defaults.
func WithAuthPaths(refresh, logout, validate string) Option {
	return func(m *Manager) {
		if refresh != "" {
			m.api.refreshPath = refresh
		}
		if logout != "" {
			m.api.logoutPath = logout
		}
		if validate != "" {
			m.api.validatePath = validate
		}
	}
}

// WithForegroundThreshold overrides the foreground freshness window.
func WithForegroundThreshold(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.foregroundThreshold = d
		}
	}
}

// NewManager creates a session manager for a server. The store is the
// authoritative credential holder; login flows (external to this library)
// write the initial credential into it.
func NewManager(serverURL string, store CredentialStore, opts ...Option) *Manager {
	// Normalize server URL
	if u, err := url.Parse(serverURL); err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	m := &Manager{
		serverURL: serverURL,
		store:     store,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		api: &AuthAPI{
			baseURL:      serverURL,
			refreshPath:  DefaultRefreshPath,
			logoutPath:   DefaultLogoutPath,
			validatePath: DefaultValidatePath,
		},
		foregroundThreshold: ForegroundThreshold,
		baseTransport:       http.DefaultTransport,
		httpClient:          &http.Client{},
	}

	for _, opt := range opts {
		opt(m)
	}

	// The auth endpoints use the bare base transport so the refresh
	// exchange never loops through the gateway.
	m.api.httpClient = &http.Client{Transport: m.baseTransport, Timeout: m.httpClient.Timeout}
	m.httpClient.Transport = &sessionTransport{Base: m.baseTransport, mgr: m}

	m.sched = newScheduler(m.clock, m.logger, m.proactiveRefresh, m.warn)

	return m
}

// ServerURL returns the server this manager is configured for.
func (m *Manager) ServerURL() string {
	return m.serverURL
}

// Client returns an *http.Client whose transport injects the bearer token
// and transparently recovers from credential expiry.
func (m *Manager) Client() *http.Client {
	return m.httpClient
}

// Terminated reports whether the session has ended.
func (m *Manager) Terminated() bool {
	return m.terminated.Load()
}

// Subject returns the stored session identity, or "" when no session exists.
func (m *Manager) Subject() string {
	cred, err := m.store.Load()
	if err != nil || cred == nil {
		return ""
	}
	return cred.Subject
}

// Start checks for an existing session and arms proactive scheduling for
// it. With no stored credential the session terminates immediately (the
// host is redirected to login) and ErrNoSession is returned.
func (m *Manager) Start(ctx context.Context) error {
	cred, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil {
		m.Terminate()
		return ErrNoSession
	}

	m.sched.Arm(DecodeExpiry(cred.AccessToken))
	return nil
}

// Refresh exchanges the refresh token for a new access token and returns
// it. Concurrent callers share a single in-flight exchange and observe the
// same outcome; exactly one network call happens per cycle no matter how
// many triggers fire at once.
//
// Terminal failures (ErrNoRefreshToken, ErrRefreshRejected) tear the
// session down before returning. Transport failures leave the session
// intact for the next natural trigger.
func (m *Manager) Refresh(ctx context.Context, reason RefreshReason) (string, error) {
	if m.terminated.Load() {
		return "", ErrSessionExpired
	}

	v, err, shared := m.group.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx, reason)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("joined in-flight refresh", "reason", reason)
	}
	return v.(string), nil
}

// doRefresh runs one coordinated refresh cycle. Only ever invoked through
// the single-flight group.
func (m *Manager) doRefresh(ctx context.Context, reason RefreshReason) (string, error) {
	cred, err := m.store.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil || cred.RefreshToken == "" {
		m.logger.Warn("refresh attempted without refresh token", "reason", reason)
		m.Terminate()
		return "", ErrNoRefreshToken
	}

	cycle := uuid.NewString()
	m.logger.Debug("refreshing access token", "reason", reason, "cycle", cycle)

	resp, err := m.api.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			m.logger.Warn("refresh exchange unreachable", "reason", reason, "cycle", cycle, "error", err)
			return "", err
		}
		m.logger.Warn("refresh token rejected, ending session", "reason", reason, "cycle", cycle, "error", err)
		m.Terminate()
		return "", err
	}

	// A session terminated while the exchange was in flight discards the
	// result rather than resurrecting itself.
	if m.terminated.Load() {
		return "", ErrSessionExpired
	}

	cred.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		cred.RefreshToken = resp.RefreshToken
	}
	if err := m.store.Store(cred); err != nil {
		return "", fmt.Errorf("failed to store refreshed credential: %w", err)
	}
	if err := m.store.Save(); err != nil {
		return "", fmt.Errorf("failed to save credentials: %w", err)
	}

	m.sched.Arm(DecodeExpiry(cred.AccessToken))
	m.logger.Debug("access token refreshed", "cycle", cycle, "rotated_refresh_token", resp.RefreshToken != "")

	return cred.AccessToken, nil
}

// proactiveRefresh is the timer and foreground entry point. Failures are
// logged and left for the next trigger; scheduling is only re-armed by a
// successful cycle.
func (m *Manager) proactiveRefresh() {
	if _, err := m.Refresh(context.Background(), RefreshProactive); err != nil {
		if IsTerminal(err) || errors.Is(err, ErrSessionExpired) {
			return
		}
		m.logger.Warn("proactive refresh failed, coasting until next trigger", "error", err)
	}
}

func (m *Manager) warn(remaining time.Duration) {
	if m.terminated.Load() {
		return
	}
	if m.onWarning != nil {
		m.onWarning(remaining)
		return
	}
	m.logger.Info("session expiring soon", "remaining", remaining)
}

// FreshAccessToken returns an access token that is not about to expire,
// refreshing first when the current one is inside the proactive window. If
// a refresh fails over the network but the current token is still valid,
// the stale-but-usable token is returned.
func (m *Manager) FreshAccessToken(ctx context.Context) (string, error) {
	if m.terminated.Load() {
		return "", ErrSessionExpired
	}

	cred, err := m.store.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil {
		return "", ErrNoSession
	}

	exp := DecodeExpiry(cred.AccessToken)
	if !exp.Known() || exp.Remaining(m.clock.Now()) > RefreshLead {
		return cred.AccessToken, nil
	}

	token, err := m.Refresh(ctx, RefreshProactive)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && exp.Remaining(m.clock.Now()) > 0 {
			return cred.AccessToken, nil
		}
		return "", err
	}
	return token, nil
}

// Validate checks the current access token against the server through the
// gateway, so an expired token takes the normal refresh-and-retry path.
func (m *Manager) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.serverURL+m.api.validatePath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: validate returned HTTP %d", ErrSessionExpired, resp.StatusCode)
	}
	return nil
}

// Logout invalidates the refresh token server-side (best effort, failures
// only logged) and terminates the local session.
func (m *Manager) Logout(ctx context.Context) error {
	cred, err := m.store.Load()
	if err == nil && cred != nil && cred.RefreshToken != "" {
		if err := m.api.Logout(ctx, cred.RefreshToken); err != nil {
			m.logger.Warn("server logout failed, clearing local session anyway", "error", err)
		}
	}
	m.Terminate()
	return nil
}

// Terminate ends the session: cancels all pending timers, clears the
// credential store, and notifies the host's login-redirect callback.
// Idempotent; a refresh already in flight completes and its result is
// discarded.
func (m *Manager) Terminate() {
	if !m.terminated.CompareAndSwap(false, true) {
		return
	}

	m.sched.Disarm()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("failed to clear credential store", "error", err)
	} else if err := m.store.Save(); err != nil {
		m.logger.Warn("failed to persist cleared store", "error", err)
	}

	m.logger.Info("session terminated")

	if m.onTerminate != nil {
		m.onTerminate()
	}
}

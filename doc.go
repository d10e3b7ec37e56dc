// Package sessionkeeper manages a token-authenticated client session: it
// holds a short-lived access token and a longer-lived refresh token, keeps
// the access token valid for the life of the session without interrupting
// the user, and transparently recovers from credential expiry on any
// wrapped request.
//
// # Architecture
//
// CredentialStore: the single authoritative holder of the access token,
// refresh token, and subject. Backends: MemoryStore, stores/fs (JSON file),
// stores/gorm (database row). Absence of any field means "no session".
//
// Manager: coordinates everything else. Refreshes are single-flight: no
// matter how many triggers fire concurrently (proactive timer, a 401 retry,
// a foreground check), one network exchange happens and every caller
// observes the same outcome. Terminal failures (missing or server-rejected
// refresh token) tear the session down exactly once and notify the host's
// login-redirect callback.
//
// Scheduler: arms a refresh timer five minutes ahead of expiry and a
// user-facing warning timer two minutes ahead, the warning only when it
// would precede the silent refresh. Timers are rebuilt after every
// successful refresh, forming a self-renewing cycle.
//
// Transport: an http.RoundTripper that injects the bearer header, retries
// exactly once after a 401-triggered reactive refresh, and propagates
// network errors unchanged.
//
// # Basic Usage
//
// Set up a store and a manager, then route API calls through the managed
// client:
//
//	store, err := fs.NewStore("", "myapp")
//	if err != nil { ... }
//
//	mgr := sessionkeeper.NewManager("https://api.example.com", store,
//	    sessionkeeper.WithOnTerminate(redirectToLogin),
//	    sessionkeeper.WithOnWarning(func(remaining time.Duration) {
//	        showToast(fmt.Sprintf("Session expires in %d minutes", int(remaining.Minutes())))
//	    }),
//	)
//	if err := mgr.Start(ctx); err != nil {
//	    // no stored session; host shows the login surface
//	}
//
//	resp, err := mgr.Client().Get("https://api.example.com/api/history")
//
// Hosts that can observe visibility transitions should forward them:
//
//	go mgr.WatchForeground(ctx, foregroundEvents)
//
// gRPC clients get the same semantics from the grpc subpackage, and
// Manager.TokenSource adapts the session to an oauth2.TokenSource.
//
// # Testing
//
// The scheduler runs on a clockwork.Clock; pass a fake clock via WithClock
// to simulate time without real delays. The auth endpoints are plain HTTP,
// so httptest servers stand in for the real backend.
package sessionkeeper

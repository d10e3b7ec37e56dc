// Command sessiondemo exercises a managed session against a live server:
// it loads the persisted credential, validates it, keeps it fresh for the
// life of the process, and logs out on interrupt.
//
// A session file is expected to exist already (written by whatever login
// flow the host application uses):
//
//	sessiondemo -server https://api.example.com -session ~/.config/myapp/session.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/panyam/sessionkeeper"
	fsstore "github.com/panyam/sessionkeeper/stores/fs"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Server base URL")
	sessionPath := flag.String("session", "", "Session file path (default: user config dir)")
	appName := flag.String("app", "sessiondemo", "App name used for the default session file location")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := fsstore.NewStore(*sessionPath, *appName)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	logger.Info("using session file", "path", store.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mgr := sessionkeeper.NewManager(*serverURL, store,
		sessionkeeper.WithLogger(logger),
		sessionkeeper.WithOnTerminate(func() {
			logger.Info("session ended, log in again to continue")
		}),
		sessionkeeper.WithOnWarning(func(remaining time.Duration) {
			fmt.Fprintf(os.Stderr, "session expires in %v\n", remaining.Round(time.Second))
		}),
	)

	if err := mgr.Start(ctx); err != nil {
		if errors.Is(err, sessionkeeper.ErrNoSession) {
			logger.Error("no stored session", "path", store.Path())
		} else {
			logger.Error("failed to start session", "error", err)
		}
		os.Exit(1)
	}

	if err := mgr.Validate(ctx); err != nil {
		logger.Error("session validation failed", "error", err)
		os.Exit(1)
	}
	logger.Info("session valid", "subject", mgr.Subject())

	// Keep the session fresh until interrupted, then invalidate it.
	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Logout(shutdownCtx); err != nil {
		logger.Error("logout failed", "error", err)
		os.Exit(1)
	}
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/stacklok/deskauth/pkg/errors"
	"github.com/stacklok/deskauth/pkg/logger"
	"github.com/stacklok/deskauth/pkg/networking"
)

// CallbackServer is a single-use HTTP acceptor on localhost that captures
// the OAuth redirect. Exactly one redirect is consumed; later requests
// receive a page but never overwrite the captured outcome.
type CallbackServer struct {
	server   *http.Server
	listener net.Listener
	port     int

	captureOnce sync.Once
	stopOnce    sync.Once
	result      chan RedirectOutcome
	done        chan struct{}

	// onCapture is invoked best-effort after a redirect is captured,
	// e.g. to bring the application window back to the foreground.
	onCapture func()
}

// NewCallbackServer creates an unstarted callback server. port 0 means
// an OS-assigned ephemeral port.
func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{
		port:   port,
		result: make(chan RedirectOutcome, 1),
		done:   make(chan struct{}),
	}
}

// SetOnCapture registers a best-effort hook run after a redirect is
// captured. Panics and failures in the hook never fail the flow.
func (s *CallbackServer) SetOnCapture(fn func()) {
	s.onCapture = fn
}

// Start binds the loopback listener and begins serving. The browser must
// only be launched after Start returns, so the redirect cannot arrive
// before anything is listening. Starting an already-started server is a
// caller error.
func (s *CallbackServer) Start() error {
	if s.listener != nil {
		return errors.NewConfigurationError("callback server already started", nil)
	}

	port, err := networking.FindOrUsePort(s.port)
	if err != nil {
		return errors.NewNetworkError("failed to find a port for the callback server", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return errors.NewNetworkError(fmt.Sprintf("failed to bind callback server on port %d", port), err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Debugf("Callback server listening on %s", s.RedirectURI())
		if err := s.server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Warnf("Callback server stopped unexpectedly: %v", err)
		}
	}()

	return nil
}

// Port returns the bound port. Only valid after Start.
func (s *CallbackServer) Port() int {
	return s.port
}

// RedirectURI returns the redirect URI registered with the provider.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

// AwaitRedirect blocks until one redirect has been captured or the
// context is done. A context deadline becomes a timeout error so the
// caller can surface it like a denied authorization.
func (s *CallbackServer) AwaitRedirect(ctx context.Context) (RedirectOutcome, error) {
	select {
	case outcome := <-s.result:
		return outcome, nil
	case <-s.done:
		// Stopped before a redirect arrived, e.g. superseded by a newer
		// sign-in attempt.
		select {
		case outcome := <-s.result:
			return outcome, nil
		default:
		}
		return RedirectOutcome{}, errors.NewMalformedRedirectError("callback server stopped before a redirect arrived", nil)
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return RedirectOutcome{}, errors.NewTimeoutError("timed out waiting for the sign-in redirect", ctx.Err())
		}
		return RedirectOutcome{}, fmt.Errorf("redirect wait cancelled: %w", ctx.Err())
	}
}

// Stop shuts the server down and releases the port. Idempotent; stopping
// an already-stopped server is a no-op.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.server == nil {
			// Never started; nothing is bound.
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Failed to shut down callback server: %v", err)
		}
		// Shutdown only closes listeners the serve goroutine has already
		// registered; close ours directly so the port is unbound when
		// Stop returns.
		if err := s.listener.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
			logger.Warnf("Failed to close callback listener: %v", err)
		}
	})
}

// handleCallback serves the single redirect. The response is written
// before the server shuts down because some browsers treat a reset
// connection as a failed navigation.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	outcome := ParseRedirect(r.URL.Query())

	captured := false
	s.captureOnce.Do(func() {
		captured = true
	})
	if !captured {
		// A second request after capture; serve the page without
		// touching the already-consumed outcome.
		s.writePage(w, outcome)
		return
	}

	s.writePage(w, outcome)
	s.result <- outcome
	s.fireOnCapture()
}

// fireOnCapture runs the foreground hook, swallowing any failure.
func (s *CallbackServer) fireOnCapture() {
	if s.onCapture == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("Post-capture hook panicked: %v", r)
		}
	}()
	s.onCapture()
}

// setSecurityHeaders sets common security headers for all responses.
func (*CallbackServer) setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'; script-src 'none'; object-src 'none';")
}

func (s *CallbackServer) writePage(w http.ResponseWriter, outcome RedirectOutcome) {
	s.setSecurityHeaders(w)

	heading := "Sign-in complete"
	body := "You have signed in successfully. You can close this window and return to the application."
	if outcome.Kind != OutcomeGranted {
		heading = "Sign-in not completed"
		body = "The sign-in did not complete. You can close this window and try again from the application."
	}

	htmlContent := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>%s</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; text-align: center; }
        .container { max-width: 600px; margin: 0 auto; }
        .message { padding: 20px; border-radius: 5px; margin: 20px 0; background-color: #e7f3ff; border: 1px solid #b3d9ff; color: #0066cc; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <div class="message">
            <p>%s</p>
        </div>
    </div>
</body>
</html>`, heading, heading, body)

	if _, err := w.Write([]byte(htmlContent)); err != nil {
		logger.Warnf("Failed to write callback page: %v", err)
	}
}

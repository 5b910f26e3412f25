// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/deskauth/pkg/errors"
	"github.com/stacklok/deskauth/pkg/logger"
)

// DefaultRedirectWait bounds how long a flow waits for the browser
// redirect. An abandoned browser tab becomes a timeout surfaced like a
// denied authorization instead of an indefinite hang.
const DefaultRedirectWait = 5 * time.Minute

// FlowState identifies where a sign-in attempt is in its lifecycle.
type FlowState int

// Flow states, in the order a successful attempt moves through them.
const (
	StateIdle FlowState = iota
	StateListenerStarted
	StateAwaitingRedirect
	StateRedirectCaptured
	StateExchanging
	StateSucceeded
	StateFailed
	StateDisposed
)

// String returns the state name for logging.
func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListenerStarted:
		return "listener_started"
	case StateAwaitingRedirect:
		return "awaiting_redirect"
	case StateRedirectCaptured:
		return "redirect_captured"
	case StateExchanging:
		return "exchanging"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Config contains configuration for the sign-in flow.
type Config struct {
	// ClientID is the OAuth client ID (direct strategy).
	ClientID string

	// ClientSecret is the OAuth client secret (direct strategy; optional
	// for pure PKCE providers).
	ClientSecret string

	// AuthURL is the provider authorization endpoint.
	AuthURL string

	// TokenURL is the provider token endpoint.
	TokenURL string

	// RevokeURL is the provider revocation endpoint, used best-effort on
	// sign-out.
	RevokeURL string

	// Scopes are the OAuth scopes to request.
	Scopes []string

	// CallbackPort is the port for the callback server (0 = auto-select).
	CallbackPort int

	// SkipBrowser prints the authorization URL instead of launching a
	// browser.
	SkipBrowser bool

	// RedirectWait bounds the wait for the browser redirect
	// (0 = DefaultRedirectWait).
	RedirectWait time.Duration

	// AllowedAuthHosts is the identity provider host allow-list enforced
	// before subprocess-spawning browser fallbacks.
	AllowedAuthHosts []string

	// OAuthParams are extra authorization URL parameters, e.g.
	// access_type=offline or prompt=consent.
	OAuthParams map[string]string
}

// session is the live state of one authorization attempt. It is owned by
// the flow and mutated only through the flow's own transitions.
type session struct {
	id        string
	state     FlowState
	server    *CallbackServer
	request   *AuthorizationRequest
	startedAt time.Time
}

// Flow orchestrates one sign-in attempt at a time: generate security
// parameters, bind the loopback listener, launch the browser, validate
// the redirect, and exchange the code through the configured strategy.
//
// Flows are single-flight: starting a new attempt disposes any prior
// session (its listener closed, its secrets wiped) before the new
// listener binds. Last writer wins; attempts are never queued.
type Flow struct {
	mu       sync.Mutex
	cfg      *Config
	strategy Strategy
	launcher *Launcher

	session *session
}

// NewFlow creates a flow around the given strategy.
func NewFlow(cfg *Config, strategy Strategy) (*Flow, error) {
	if cfg == nil {
		return nil, errors.NewConfigurationError("flow config cannot be nil", nil)
	}
	if strategy == nil {
		return nil, errors.NewConfigurationError("a token exchange strategy is required", nil)
	}

	return &Flow{
		cfg:      cfg,
		strategy: strategy,
		launcher: NewLauncher(cfg.AllowedAuthHosts),
	}, nil
}

// Start runs one complete sign-in attempt and returns the credential.
// All listener and session resources are released before any error
// propagates, on success and failure alike.
func (f *Flow) Start(ctx context.Context) (*Credential, error) {
	sess := f.beginSession()
	defer f.releaseSession(sess)

	server := NewCallbackServer(f.cfg.CallbackPort)
	sess.server = server
	if err := server.Start(); err != nil {
		return nil, f.fail(sess, err)
	}
	f.transition(sess, StateListenerStarted)

	request, err := f.strategy.Begin(ctx, server.RedirectURI())
	if err != nil {
		return nil, f.fail(sess, err)
	}
	sess.request = request

	if f.cfg.SkipBrowser {
		logger.Infof("Open this URL in your browser to sign in: %s", request.URL)
	} else {
		logger.Infof("Opening browser for sign-in")
		if err := f.launcher.Open(request.URL); err != nil {
			return nil, f.fail(sess, err)
		}
	}
	f.transition(sess, StateAwaitingRedirect)

	wait := f.cfg.RedirectWait
	if wait <= 0 {
		wait = DefaultRedirectWait
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	outcome, err := server.AwaitRedirect(waitCtx)
	if err != nil {
		return nil, f.fail(sess, err)
	}
	f.transition(sess, StateRedirectCaptured)

	code, err := ValidateRedirect(outcome, request.State)
	if err != nil {
		return nil, f.fail(sess, err)
	}

	f.transition(sess, StateExchanging)
	credential, err := f.strategy.Exchange(ctx, code, outcome.State, request)
	if err != nil {
		return nil, f.fail(sess, err)
	}

	f.transition(sess, StateSucceeded)
	logger.Info("Sign-in flow completed successfully")
	return credential, nil
}

// State reports the current session's state, or StateIdle when no
// attempt has been started.
func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return StateIdle
	}
	return f.session.state
}

// Dispose tears down the active session from any state: the listener
// socket closes immediately (unblocking a pending wait) and in-memory
// secrets are dropped. Safe to call multiple times.
func (f *Flow) Dispose() {
	f.mu.Lock()
	sess := f.session
	f.mu.Unlock()
	if sess == nil {
		return
	}
	f.disposeSession(sess)
}

// beginSession creates a fresh session, forcibly disposing any prior one
// first so its port is unbound before the new listener binds.
func (f *Flow) beginSession() *session {
	f.mu.Lock()
	prior := f.session
	sess := &session{
		id:        uuid.NewString(),
		state:     StateIdle,
		startedAt: time.Now(),
	}
	f.session = sess
	f.mu.Unlock()

	if prior != nil {
		logger.Debugf("Superseding sign-in session %s", prior.id)
		f.disposeSession(prior)
	}
	return sess
}

// transition records a state change for a session.
func (f *Flow) transition(sess *session, state FlowState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logger.Debugw("Sign-in flow state change", "session", sess.id, "from", sess.state.String(), "to", state.String())
	sess.state = state
}

// fail marks the session failed and returns the error unchanged. The
// deferred release in Start closes the listener before the error reaches
// the caller.
func (f *Flow) fail(sess *session, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess.state != StateDisposed {
		sess.state = StateFailed
	}
	return err
}

// releaseSession closes the session's listener and wipes its secrets
// without touching a terminal Succeeded/Failed state.
func (f *Flow) releaseSession(sess *session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupLocked(sess)
}

// disposeSession releases the session and marks it Disposed.
func (f *Flow) disposeSession(sess *session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupLocked(sess)
	sess.state = StateDisposed
}

// cleanupLocked releases session resources. Callers hold f.mu.
func (*Flow) cleanupLocked(sess *session) {
	if sess.server != nil {
		sess.server.Stop()
	}
	if sess.request != nil {
		// Drop the PKCE verifier and CSRF state; nothing outside the
		// session may ever read them.
		sess.request.CodeVerifier = ""
		sess.request.State = ""
		sess.request = nil
	}
}

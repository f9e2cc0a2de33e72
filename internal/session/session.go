// Package session resolves the user behind the stored auth token.
//
// The resolver follows the token store: every non-empty token triggers a
// "who am I" check, a failed check clears the token, and a check whose token
// is no longer current when it finishes is ignored.
package session

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/golang-jwt/jwt/v5"
)

// State of the resolver.
type State string

const (
	StateAnonymous     State = "ANONYMOUS"
	StateChecking      State = "CHECKING"
	StateAuthenticated State = "AUTHENTICATED"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{3,32}$`)

// Validation errors for credentials, checked before any request is sent.
var (
	ErrInvalidUsername  = errors.New("Username must be 3-32 chars and use only letters, numbers, '.', '_' or '-'.")
	ErrPasswordTooShort = errors.New("Password must be at least 8 characters.")
	ErrPasswordTooLong  = errors.New("Password is too long.")
)

// Tokens is the token store the resolver follows.
type Tokens interface {
	Read() string
	Write(token string)
	Subscribe(fn func(token string)) func()
}

// API is the subset of the cleaning service used for auth.
type API interface {
	Me(ctx context.Context, token string) (cleanapi.User, error)
	Login(ctx context.Context, creds cleanapi.Credentials) (cleanapi.AuthResponse, error)
	Signup(ctx context.Context, creds cleanapi.Credentials) (cleanapi.AuthResponse, error)
}

// Snapshot is the externally visible session.
type Snapshot struct {
	State     State          `json:"state"`
	User      *cleanapi.User `json:"user"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// Resolver owns the session state machine.
type Resolver struct {
	tokens       Tokens
	api          API
	pub          broadcast.Publisher
	checkTimeout time.Duration

	mu          sync.Mutex
	closed      bool
	state       State
	user        *cleanapi.User
	token       string
	cancelCheck context.CancelFunc
	checks      sync.WaitGroup
	unsubscribe func()
}

// NewResolver creates a resolver and starts following tokens. If a token
// is already stored, a check starts immediately.
func NewResolver(tokens Tokens, api API, pub broadcast.Publisher) *Resolver {
	if pub == nil {
		pub = broadcast.Discard{}
	}
	r := &Resolver{
		tokens:       tokens,
		api:          api,
		pub:          pub,
		checkTimeout: 15 * time.Second,
		state:        StateAnonymous,
	}
	r.unsubscribe = tokens.Subscribe(r.onToken)
	r.onToken(tokens.Read())
	return r
}

// Close stops following the token store and cancels any in-flight check.
func (r *Resolver) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.mu.Lock()
	r.closed = true
	if r.cancelCheck != nil {
		r.cancelCheck()
		r.cancelCheck = nil
	}
	r.mu.Unlock()
	r.checks.Wait()
}

// Wait blocks until no check is in flight. Used by tests and shutdown.
func (r *Resolver) Wait() { r.checks.Wait() }

// Snapshot returns the current session.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{State: r.state, User: r.user}
	if r.token != "" {
		if exp, ok := expiry(r.token); ok {
			snap.ExpiresAt = &exp
		}
	}
	return snap
}

func (r *Resolver) onToken(token string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if token == r.token && r.state != StateAnonymous {
		r.mu.Unlock()
		return
	}
	if r.cancelCheck != nil {
		r.cancelCheck()
		r.cancelCheck = nil
	}
	r.token = token
	r.user = nil

	if token == "" {
		r.state = StateAnonymous
		r.mu.Unlock()
		r.publish()
		return
	}

	r.state = StateChecking
	ctx, cancel := context.WithTimeout(context.Background(), r.checkTimeout)
	r.cancelCheck = cancel
	r.checks.Add(1)
	r.mu.Unlock()
	r.publish()

	go r.check(ctx, cancel, token)
}

func (r *Resolver) check(ctx context.Context, cancel context.CancelFunc, token string) {
	defer r.checks.Done()
	defer cancel()

	user, err := r.api.Me(ctx, token)

	r.mu.Lock()
	if r.token != token {
		r.mu.Unlock()
		slog.Debug("session check result ignored, token changed")
		return
	}
	r.cancelCheck = nil
	if r.closed || errors.Is(err, context.Canceled) {
		// Aborted, not failed: the stored token stays.
		r.mu.Unlock()
		slog.Debug("session check aborted", "error", err)
		return
	}
	if err != nil {
		r.mu.Unlock()
		slog.Info("session check failed, clearing token", "error", err)
		// Clearing re-enters onToken with "", which moves to ANONYMOUS.
		r.tokens.Write("")
		r.mu.Lock()
		if r.token == token {
			// The store already held "" or refused the write; settle here.
			r.token = ""
			r.state = StateAnonymous
			r.user = nil
		}
		r.mu.Unlock()
		r.publish()
		return
	}
	r.user = &user
	r.state = StateAuthenticated
	r.mu.Unlock()

	slog.Info("session authenticated", "username", user.Username)
	r.publish()
}

func (r *Resolver) publish() {
	r.pub.Publish(broadcast.NewEvent(broadcast.TopicSession, r.Snapshot()))
}

// ValidateCredentials applies the same rules as the service.
func ValidateCredentials(creds cleanapi.Credentials) error {
	if !usernameRe.MatchString(strings.TrimSpace(creds.Username)) {
		return ErrInvalidUsername
	}
	if len(creds.Password) < 8 {
		return ErrPasswordTooShort
	}
	if len(creds.Password) > 128 {
		return ErrPasswordTooLong
	}
	return nil
}

// Login authenticates and stores the returned token.
func (r *Resolver) Login(ctx context.Context, creds cleanapi.Credentials) (cleanapi.User, error) {
	return r.authenticate(ctx, creds, r.api.Login)
}

// Signup creates an account and stores the returned token.
func (r *Resolver) Signup(ctx context.Context, creds cleanapi.Credentials) (cleanapi.User, error) {
	return r.authenticate(ctx, creds, r.api.Signup)
}

func (r *Resolver) authenticate(ctx context.Context, creds cleanapi.Credentials, call func(context.Context, cleanapi.Credentials) (cleanapi.AuthResponse, error)) (cleanapi.User, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := ValidateCredentials(creds); err != nil {
		return cleanapi.User{}, err
	}
	resp, err := call(ctx, creds)
	if err != nil {
		return cleanapi.User{}, err
	}
	r.tokens.Write(resp.Token)
	return resp.User, nil
}

// Logout clears the stored token.
func (r *Resolver) Logout() {
	r.tokens.Write("")
}

// expiry reads the exp claim without verifying the signature. It is only
// used for display; the service remains the authority.
func expiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

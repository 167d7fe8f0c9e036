package authgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/masabinhok/authgate/broadcast"
	"github.com/masabinhok/authgate/password"
	"github.com/masabinhok/authgate/session"
)

// Store is the single source of truth for "who is logged in". It owns one
// mutable session cell behind a mutex; every other component only reads it
// through the synchronous getters or invokes its operations. Mutation never
// happens anywhere else.
//
// State machine per session: anonymous → authenticating → authenticated →
// (password-change-required | anonymous). authenticated → anonymous is also
// reachable directly via logout or a failure broadcast.
type Store struct {
	client    *Client
	snapshots session.SnapshotStore
	bus       *broadcast.Bus
	log       *slog.Logger
	metrics   *Metrics
	cfg       Config

	mu          sync.Mutex
	user        *User
	loading     bool
	errMsg      string
	requires    bool
	provisional bool

	unsubscribe func()
}

func newStore(cfg Config, client *Client, snapshots session.SnapshotStore, bus *broadcast.Bus, logger *slog.Logger, metrics *Metrics) *Store {
	s := &Store{
		client:    client,
		snapshots: snapshots,
		bus:       bus,
		log:       logger,
		metrics:   metrics,
		cfg:       cfg,
	}
	s.unsubscribe = bus.Subscribe(s.onEvent)
	return s
}

// onEvent converges the store on broadcasts from the transport and from
// other processes of the same logical session.
func (s *Store) onEvent(ev broadcast.Event) {
	switch ev.Kind {
	case broadcast.KindAuthFailure:
		// Terminal 401: the session is dead no matter who noticed.
		s.log.Warn("authgate: clearing session on failure broadcast", slog.String("reason", ev.Reason))
		s.clearLocal(true)
	case broadcast.KindLoggedOut:
		if ev.Origin == s.bus.Origin() {
			// Our own logout already cleared everything.
			return
		}
		s.log.Info("authgate: external logout", slog.String("origin", ev.Origin))
		s.clearLocal(false)
	}
}

// User returns a copy of the authenticated user, or nil when anonymous.
func (s *Store) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether a user is present. By construction it is
// true exactly when User() is non-nil; there is no separate flag to drift.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

// Loading reports whether a login or profile fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last recorded operation error message, if any.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// RequiresPasswordChange reports whether the mandatory password-change flow
// must interpose before any protected content.
func (s *Store) RequiresPasswordChange() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requires
}

// Provisional reports whether the current authenticated state came from a
// rehydrated snapshot and has not yet been confirmed by a profile fetch.
// Provisional state must never be granted access on its own.
func (s *Store) Provisional() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provisional
}

// ClearError clears only the error field. No other state changes.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// Login authenticates with the given credentials and role. On success the
// full profile is fetched immediately and the mandatory password-change flag
// is recomputed from the server-declared flag and the change count; the
// login response's count wins the merge when present, being fresher than the
// profile's. On any failure the store stays anonymous, records the error,
// and returns it — the login UI must observe the failure.
func (s *Store) Login(ctx context.Context, creds Credentials, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	s.beginOperation()

	raw, err := s.client.Post(ctx, s.cfg.LoginPath, loginRequest{
		Username: creds.Username,
		Password: creds.Password,
		Role:     role,
	})
	if err != nil {
		s.metrics.Inc(MetricLoginFailure)
		return s.failOperation(err)
	}

	var result LoginResult
	if raw != nil {
		if err := json.Unmarshal(raw, &result); err != nil {
			s.metrics.Inc(MetricLoginFailure)
			return s.failOperation(fmt.Errorf("decode login response: %w", err))
		}
	}

	user, err := s.fetchProfile(ctx)
	if err != nil {
		s.metrics.Inc(MetricLoginFailure)
		return s.failOperation(err)
	}
	if result.PasswordChangeCount != nil {
		user.PasswordChangeCount = *result.PasswordChangeCount
	}
	requires := result.RequiresPasswordChange || user.PasswordChangeCount == 0

	s.setAuthenticated(user, requires)
	s.metrics.Inc(MetricLoginSuccess)
	s.log.Info("authgate: login",
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
		slog.Bool("requiresPasswordChange", requires))
	return nil
}

// FetchUser re-derives the full session from the profile endpoint alone. It
// is the revalidation step for cold loads and rehydrated snapshots. On
// failure the session is cleared and the error recorded; callers that poll
// state may ignore the returned error.
func (s *Store) FetchUser(ctx context.Context) error {
	s.beginOperation()

	user, err := s.fetchProfile(ctx)
	if err != nil {
		s.metrics.Inc(MetricFetchFailure)
		return s.failOperation(err)
	}

	s.setAuthenticated(user, user.PasswordChangeCount == 0)
	return nil
}

// Logout notifies the server best-effort, then unconditionally clears local
// state, the persisted snapshot including legacy keys, and broadcasts
// logged-out so other mounted components and other processes converge.
func (s *Store) Logout(ctx context.Context) error {
	if _, err := s.client.Post(ctx, s.cfg.LogoutPath, nil); err != nil {
		// Server-side teardown failing must not keep the client logged in.
		s.log.Warn("authgate: server logout failed", slog.String("error", err.Error()))
	}

	s.clearLocal(true)
	s.metrics.Inc(MetricLogoutBroadcast)
	s.bus.Publish(broadcast.KindLoggedOut, "logout")
	return nil
}

// ChangePassword validates the password policy locally, submits the change,
// clears the mandatory flag, and then forces a full logout so the user
// re-authenticates with the new credentials. Validation failures never reach
// the network.
func (s *Store) ChangePassword(ctx context.Context, current, proposed, confirm string) error {
	if err := password.Validate(current, proposed, confirm); err != nil {
		return err
	}
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if _, err := s.client.Post(ctx, s.cfg.ChangePasswordPath, changePasswordRequest{
		OldPassword: current,
		NewPassword: proposed,
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.requires = false
	s.mu.Unlock()

	// Never silently continue the old session on rotated credentials.
	return s.Logout(ctx)
}

// Restore rehydrates the durable subset from the snapshot store. Restored
// authentication is provisional: the route guard must confirm it with
// FetchUser before relying on it for role checks. Restore returns nil when
// no snapshot exists.
func (s *Store) Restore(ctx context.Context) error {
	snap, err := s.snapshots.Load(ctx)
	if errors.Is(err, session.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	if snap.User == nil || !snap.IsAuthenticated {
		// The invariant is recomputed, never trusted from storage.
		return nil
	}

	user := fromRecord(snap.User)
	s.mu.Lock()
	s.user = user
	s.requires = snap.RequiresPasswordChange || user.PasswordChangeCount == 0
	s.provisional = true
	s.mu.Unlock()

	s.metrics.Inc(MetricSnapshotRestore)
	s.log.Info("authgate: session restored from snapshot", slog.String("username", user.Username))
	return nil
}

// Close detaches the store from the broadcast bus.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Store) fetchProfile(ctx context.Context) (*User, error) {
	raw, err := s.client.Do(ctx, http.MethodGet, s.cfg.ProfilePath, nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("profile endpoint returned no payload")
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if user.ID == "" {
		return nil, errors.New("profile payload missing user id")
	}
	return &user, nil
}

func (s *Store) beginOperation() {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
}

// failOperation records err, clears the session, and returns err.
func (s *Store) failOperation(err error) error {
	s.mu.Lock()
	s.user = nil
	s.loading = false
	s.requires = false
	s.provisional = false
	s.errMsg = err.Error()
	s.mu.Unlock()
	s.persistClear()
	return err
}

func (s *Store) setAuthenticated(user *User, requires bool) {
	s.mu.Lock()
	s.user = user
	s.loading = false
	s.requires = requires
	s.provisional = false
	s.mu.Unlock()
	s.persist(user, requires)
}

// clearLocal resets to anonymous without broadcasting. clearSnapshot is
// false for externally triggered logouts, where the initiating process
// already cleared the shared snapshot.
func (s *Store) clearLocal(clearSnapshot bool) {
	s.mu.Lock()
	s.user = nil
	s.loading = false
	s.requires = false
	s.provisional = false
	s.errMsg = ""
	s.mu.Unlock()
	if clearSnapshot {
		s.persistClear()
	}
}

const persistTimeout = 3 * time.Second

func (s *Store) persist(user *User, requires bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	snap := &session.Snapshot{
		User:                   toRecord(user),
		IsAuthenticated:        true,
		RequiresPasswordChange: requires,
		SavedAt:                time.Now().Unix(),
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		s.log.Warn("authgate: snapshot save failed", slog.String("error", err.Error()))
	}
}

func (s *Store) persistClear() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.snapshots.Clear(ctx); err != nil {
		s.log.Warn("authgate: snapshot clear failed", slog.String("error", err.Error()))
	}
}

func toRecord(u *User) *session.UserRecord {
	if u == nil {
		return nil
	}
	return &session.UserRecord{
		ID:                  u.ID,
		Username:            u.Username,
		Role:                string(u.Role),
		ProfileID:           u.ProfileID,
		Email:               u.Email,
		FullName:            u.FullName,
		PasswordChangeCount: u.PasswordChangeCount,
	}
}

func fromRecord(r *session.UserRecord) *User {
	return &User{
		ID:                  r.ID,
		Username:            r.Username,
		Role:                Role(r.Role),
		ProfileID:           r.ProfileID,
		Email:               r.Email,
		FullName:            r.FullName,
		PasswordChangeCount: r.PasswordChangeCount,
	}
}

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/felnan/snapfeed/internal/domain"
	"github.com/felnan/snapfeed/internal/gateway"
	"github.com/felnan/snapfeed/internal/infra/logging"
	"github.com/felnan/snapfeed/internal/repo/credential"
	"github.com/felnan/snapfeed/internal/state"
)

const (
	loginPath    = "/auth/login/"
	registerPath = "/auth/register/"
	profilePath  = "/api/profiles/me/"
)

// Controller owns the authentication state machine: login, signup,
// restore-on-launch, logout and forced expiry. It is the only component that
// mutates the session state.
type Controller struct {
	gw    *gateway.Gateway
	creds credential.Store
	log   logging.Logger
	state *state.Container[State]

	// mu serializes state transitions so that check-then-set sequences
	// (notably forced expiry) stay atomic.
	mu sync.Mutex

	restoreMu   sync.Mutex
	restoreDone chan struct{}
	restoreErr  error
}

// NewController creates a session controller and registers it on the
// gateway's expiry hook. The session starts in StatusRestoring.
func NewController(gw *gateway.Gateway, creds credential.Store) *Controller {
	ctrl := &Controller{
		gw:    gw,
		creds: creds,
		log:   logging.GetLogger("session.controller"),
		//nolint:exhaustruct
		state: state.NewContainer(State{Status: StatusRestoring}),
	}

	gw.OnAuthExpired(ctrl.forceExpire)

	return ctrl
}

// State exposes the session state container for snapshot reads and change
// subscriptions.
func (c *Controller) State() *state.Container[State] {
	return c.state
}

type loginResponse struct {
	Access string `json:"access"`
}

type registerResponse struct {
	Token string              `json:"token"`
	User  *domain.UserProfile `json:"user"`
}

// Restore re-establishes the session from the stored credential. It is
// invoked once at process start; concurrent calls coalesce onto the single
// in-flight attempt and return its result. A missing credential resolves to
// StatusUnauthenticated without error.
func (c *Controller) Restore(ctx context.Context) error {
	c.restoreMu.Lock()

	if c.restoreDone != nil {
		done := c.restoreDone
		c.restoreMu.Unlock()

		<-done

		return c.restoreErr
	}

	done := make(chan struct{})
	c.restoreDone = done
	c.restoreMu.Unlock()

	err := c.restore(ctx)

	c.restoreErr = err
	close(done)

	return err
}

func (c *Controller) restore(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			c.log.WarnContext(ctx, "session restore failed", "error", err)
		} else {
			c.log.DebugContext(ctx, "session restore done",
				"status", c.state.Get().Status.String())
		}
	}()

	c.setState(State{Status: StatusRestoring}) //nolint:exhaustruct

	token, ok, err := c.creds.Get(ctx)
	if err != nil {
		c.setState(State{Status: StatusUnauthenticated, Err: err}) //nolint:exhaustruct

		return fmt.Errorf("read credential: %w", err)
	}

	if !ok {
		c.setState(State{Status: StatusUnauthenticated}) //nolint:exhaustruct

		return nil
	}

	var profile domain.UserProfile
	if err := c.gw.Get(ctx, profilePath, &profile); err != nil {
		c.setState(State{Status: StatusUnauthenticated, Err: err}) //nolint:exhaustruct

		return fmt.Errorf("fetch profile: %w", err)
	}

	//nolint:exhaustruct
	c.setState(State{
		Status: StatusAuthenticated,
		User:   &profile,
		Token:  token,
	})

	return nil
}

// Login submits credentials and, on success, persists the returned token and
// hydrates the profile. Token persistence and profile hydration are
// independent steps: a failed hydration leaves the session authenticated
// with a nil user, repairable by FetchProfile.
func (c *Controller) Login(ctx context.Context, identifier, password string) (err error) {
	log := c.log.With(logging.Group("login", "identifier", identifier))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "login failed", "error", err)
		} else {
			log.DebugContext(ctx, "login done")
		}
	}()

	c.setState(State{Status: StatusAuthenticating}) //nolint:exhaustruct

	var resp loginResponse
	if err := c.gw.Post(ctx, loginPath, map[string]string{
		"username": identifier,
		"password": password,
	}, &resp); err != nil {
		c.setState(State{Status: StatusUnauthenticated, Err: err}) //nolint:exhaustruct

		return fmt.Errorf("login: %w", err)
	}

	if err := c.creds.Set(ctx, resp.Access); err != nil {
		c.setState(State{Status: StatusUnauthenticated, Err: err}) //nolint:exhaustruct

		return fmt.Errorf("persist token: %w", err)
	}

	var profile domain.UserProfile
	if err := c.gw.Get(ctx, profilePath, &profile); err != nil {
		// Login itself succeeded; the session stands with a nil user.
		log.WarnContext(ctx, "profile hydration failed", "error", err)

		//nolint:exhaustruct
		c.setState(State{
			Status: StatusAuthenticated,
			Token:  resp.Access,
			Err:    err,
		})

		return nil
	}

	//nolint:exhaustruct
	c.setState(State{
		Status: StatusAuthenticated,
		User:   &profile,
		Token:  resp.Access,
	})

	return nil
}

// Signup submits a registration. The session becomes authenticated directly
// only when the response carries both a usable token and a profile;
// otherwise the caller is routed to a manual login (authenticated=false with
// a nil error).
func (c *Controller) Signup(
	ctx context.Context,
	email, fullName, username, password string,
) (authenticated bool, err error) {
	log := c.log.With(logging.Group("signup", "username", username))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "signup failed", "error", err)
		} else {
			log.DebugContext(ctx, "signup done", "authenticated", authenticated)
		}
	}()

	c.setState(State{Status: StatusAuthenticating}) //nolint:exhaustruct

	var resp registerResponse
	if err := c.gw.Post(ctx, registerPath, map[string]string{
		"email":     email,
		"full_name": fullName,
		"username":  username,
		"password":  password,
	}, &resp); err != nil {
		c.setState(State{Status: StatusUnauthenticated, Err: err}) //nolint:exhaustruct

		return false, fmt.Errorf("signup: %w", err)
	}

	if resp.Token == "" || resp.User == nil {
		// Backend variant without an auto-login response.
		c.setState(State{Status: StatusUnauthenticated}) //nolint:exhaustruct

		return false, nil
	}

	if err := c.creds.Set(ctx, resp.Token); err != nil {
		c.setState(State{Status: StatusUnauthenticated, Err: err}) //nolint:exhaustruct

		return false, fmt.Errorf("persist token: %w", err)
	}

	//nolint:exhaustruct
	c.setState(State{
		Status: StatusAuthenticated,
		User:   resp.User,
		Token:  resp.Token,
	})

	return true, nil
}

// Logout tears the session down locally first: the in-memory state is reset
// before the store is touched, so logout always succeeds from the user's
// point of view even when persistence misbehaves.
func (c *Controller) Logout(ctx context.Context) error {
	c.setState(State{Status: StatusUnauthenticated}) //nolint:exhaustruct

	if err := c.creds.Clear(ctx); err != nil {
		c.log.ErrorContext(ctx, "credential clear failed", "error", err)

		return fmt.Errorf("clear credential: %w", err)
	}

	c.log.DebugContext(ctx, "logged out")

	return nil
}

// FetchProfile fetches the current profile from the server and, when a
// session exists, replaces the cached user with it.
func (c *Controller) FetchProfile(ctx context.Context) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	if err := c.gw.Get(ctx, profilePath, &profile); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	c.replaceUser(&profile)

	return &profile, nil
}

// UpdateProfile is not optimistic: it blocks until the server confirms, then
// replaces the cached user wholesale with the server's representation. No
// client-side merge happens, so server-computed fields cannot drift. The
// avatar, when given, turns the request into a multipart upload. Failures
// leave the cached user and the session status untouched.
func (c *Controller) UpdateProfile(
	ctx context.Context,
	patch domain.ProfilePatch,
	avatar *gateway.File,
) (*domain.UserProfile, error) {
	var (
		profile domain.UserProfile
		err     error
	)

	if avatar == nil {
		err = c.gw.Put(ctx, profilePath, patch, &profile)
	} else {
		err = c.gw.Upload(ctx, "PUT", profilePath,
			patchFields(patch), []gateway.File{*avatar}, &profile)
	}

	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	c.replaceUser(&profile)

	return &profile, nil
}

// ClearError drops the displayed error without a state transition, as when
// the user dismisses the message on the auth form.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.state.Get()
	snap.Err = nil
	c.state.Set(snap)
}

func patchFields(patch domain.ProfilePatch) map[string]string {
	fields := make(map[string]string)

	for name, value := range map[string]*string{
		"full_name": patch.FullName,
		"bio":       patch.Bio,
		"website":   patch.Website,
		"email":     patch.Email,
		"phone":     patch.Phone,
	} {
		if value != nil {
			fields[name] = *value
		}
	}

	return fields
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Set(next)
}

func (c *Controller) replaceUser(profile *domain.UserProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.state.Get()
	if snap.Status != StatusAuthenticated {
		return
	}

	snap.User = profile
	c.state.Set(snap)
}

// forceExpire handles a rejected bearer token: a one-way, non-retryable
// transition through StatusExpired down to StatusUnauthenticated. The stored
// credential is cleared; the session must be re-established by a new login.
func (c *Controller) forceExpire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.state.Get()
	if snap.Status != StatusAuthenticated {
		return
	}

	ctx := context.Background()

	c.state.Set(State{Status: StatusExpired, Err: domain.ErrAuthExpired}) //nolint:exhaustruct

	if err := c.creds.Clear(ctx); err != nil {
		c.log.ErrorContext(ctx, "credential clear failed on expiry", "error", err)
	}

	c.state.Set(State{Status: StatusUnauthenticated, Err: domain.ErrAuthExpired}) //nolint:exhaustruct

	c.log.WarnContext(ctx, "session expired, re-login required")
}

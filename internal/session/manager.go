// Package session owns the vendor cloud credentials: password login, token
// refresh, and persistence to a local state file mirrored to blob storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/joshp123/sharkd/internal/blob"
	"github.com/joshp123/sharkd/internal/config"
	"github.com/joshp123/sharkd/internal/logger"
)

const blobKey = "session/shark.json"

// expiryMargin is how close to expiry a token may get before it is refreshed.
const expiryMargin = 30 * time.Second

var ErrNotLoggedIn = errors.New("not logged in")

// errSessionChanged is returned by a refresh whose result was discarded
// because a login or logout replaced the session meanwhile.
var errSessionChanged = errors.New("session changed during refresh")

// Manager holds the access token for the vendor cloud and keeps it fresh.
type Manager struct {
	cfg        config.SessionConfig
	blobStore  blob.Store
	httpClient *http.Client
	oauth      *oauth2.Config

	// refreshes collapses concurrent refreshes into one token request.
	refreshes singleflight.Group
	// persistMu serializes state installs with their file and blob writes.
	persistMu sync.Mutex

	mu    sync.Mutex
	state State
	// generation is bumped whenever the session is replaced outright.
	generation uint64
}

func NewManager(cfg config.SessionConfig, blobStore blob.Store) (*Manager, error) {
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if cfg.AuthBase == "" {
		return nil, fmt.Errorf("auth base is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	return &Manager{
		cfg:        cfg,
		blobStore:  blobStore,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimRight(cfg.AuthBase, "/") + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: strings.Fields(cfg.Scope),
		},
	}, nil
}

// Load restores state from the local file, falling back to the blob mirror.
func (m *Manager) Load(ctx context.Context) error {
	state, err := LoadState(m.cfg.StatePath)
	if err == nil {
		m.replaceState(state)
		return nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return err
	}

	data, blobErr := m.blobStore.Load(ctx, blobKey)
	if blobErr != nil {
		if errors.Is(blobErr, blob.ErrNotFound) {
			return ErrStateNotFound
		}
		return fmt.Errorf("load blob state: %w", blobErr)
	}
	state, err = DecodeState(data)
	if err != nil {
		return err
	}
	if err := WriteState(m.cfg.StatePath, state); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	m.replaceState(state)
	logger.Log.WithField("state_path", m.cfg.StatePath).Info("session restored from blob mirror")
	return nil
}

// Login exchanges email and password for tokens using the password grant.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		loginTotal.WithLabelValues("error").Inc()
		tokenValid.Set(0)
		return describeTokenError("login", err)
	}
	loginTotal.WithLabelValues("ok").Inc()

	state := State{
		SchemaVersion: SchemaVersion,
		Email:         email,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		Expiry:        token.Expiry,
		Scope:         m.cfg.Scope,
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.replaceState(state)
	return m.persist(ctx, state)
}

// Logout forgets all tokens in memory, on disk and in the blob mirror.
func (m *Manager) Logout(ctx context.Context) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.replaceState(State{})
	tokenValid.Set(0)

	if err := removeState(m.cfg.StatePath); err != nil {
		return err
	}
	if err := m.blobStore.Delete(ctx, blobKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("delete blob state: %w", err)
	}
	return nil
}

// LoggedIn reports whether any token is held.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AccessToken != "" || m.state.RefreshToken != ""
}

// AccessToken returns a valid access token, refreshing when it is about to expire.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	if usable(state) {
		return state.AccessToken, nil
	}
	if state.RefreshToken == "" {
		tokenValid.Set(0)
		return "", ErrNotLoggedIn
	}
	return m.refreshShared(ctx, false)
}

// TriggerRefresh starts a background refresh, joining one already running.
func (m *Manager) TriggerRefresh(ctx context.Context) {
	m.mu.Lock()
	loggedIn := m.state.RefreshToken != ""
	m.mu.Unlock()
	if !loggedIn {
		return
	}

	go func() {
		if _, err := m.refreshShared(ctx, true); err != nil {
			logger.Log.WithError(err).Warn("session refresh failed")
		}
	}()
}

// Start refreshes on a fixed interval until ctx is done.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	threshold := interval
	if threshold < expiryMargin {
		threshold = expiryMargin
	}
	m.refreshIfNeeded(ctx, threshold)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshIfNeeded(ctx, threshold)
			}
		}
	}()
}

func (m *Manager) refreshIfNeeded(ctx context.Context, threshold time.Duration) {
	m.mu.Lock()
	need := m.state.RefreshToken != "" &&
		(m.state.AccessToken == "" || time.Until(m.state.Expiry) <= threshold)
	m.mu.Unlock()
	if !need {
		return
	}

	if _, err := m.refreshShared(ctx, true); err != nil {
		logger.Log.WithError(err).Warn("scheduled session refresh failed")
	}
}

// refreshShared refreshes the token, joining a refresh already in flight,
// and returns the resulting access token. Unless force is set, a token that
// became usable while the caller waited is returned as is.
func (m *Manager) refreshShared(ctx context.Context, force bool) (string, error) {
	token, err, _ := m.refreshes.Do("refresh", func() (any, error) {
		if !force {
			m.mu.Lock()
			state := m.state
			m.mu.Unlock()
			if usable(state) {
				return state.AccessToken, nil
			}
		}
		if err := m.refresh(ctx); err != nil {
			return "", err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state.AccessToken == "" {
			return "", ErrNotLoggedIn
		}
		return m.state.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	current := m.state
	generation := m.generation
	m.mu.Unlock()
	if current.RefreshToken == "" {
		return ErrNotLoggedIn
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	source := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	token, err := source.Token()
	if err != nil {
		refreshFailure.Inc()
		tokenValid.Set(0)
		return describeTokenError("token refresh", err)
	}

	next := current
	next.SchemaVersion = SchemaVersion
	next.AccessToken = token.AccessToken
	next.Expiry = token.Expiry
	if token.RefreshToken != "" {
		next.RefreshToken = token.RefreshToken
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return errSessionChanged
	}
	m.state = next
	m.mu.Unlock()
	tokenValid.Set(1)

	if err := m.persist(ctx, next); err != nil {
		refreshFailure.Inc()
		return err
	}
	refreshSuccess.Inc()
	return nil
}

func usable(state State) bool {
	return state.AccessToken != "" && (state.Expiry.IsZero() || time.Until(state.Expiry) > expiryMargin)
}

// replaceState installs a new session; refreshes started before it are discarded.
func (m *Manager) replaceState(state State) {
	m.mu.Lock()
	m.state = state
	m.generation++
	m.mu.Unlock()
	if state.AccessToken != "" {
		tokenValid.Set(1)
	}
}

func (m *Manager) persist(ctx context.Context, state State) error {
	if err := WriteState(m.cfg.StatePath, state); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := m.blobStore.Save(ctx, blobKey, data, "application/json"); err != nil {
		remotePersistOK.Set(0)
		logger.Log.WithError(err).Warn("session blob mirror failed")
		return nil
	}
	remotePersistOK.Set(1)
	return nil
}

func describeTokenError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		body := strings.TrimSpace(string(retrieveErr.Body))
		return fmt.Errorf("%s failed %d: %s", op, retrieveErr.Response.StatusCode, body)
	}
	return fmt.Errorf("%s: %w", op, err)
}

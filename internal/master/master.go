// Package master implements spec.md §4.K: advertising this server to
// one or more master servers over HTTP (PUT to list, POST to update,
// DELETE to delist), staggered so not every master is hit the same
// tic, with HTTP Basic auth using a SHA-1'd password. Grounded on
// original_source/source/cs_master.cpp's staggering and
// disable-on-401/408 behavior, with the bare net/http client idiom
// taken from rustyguts-bken/server/linkpreview.go (short-timeout
// *http.Client, context-scoped request, defer resp.Body.Close()).
package master

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// requestTimeout bounds a single master HTTP call, mirroring
// linkpreview.go's short, dedicated client timeout rather than relying
// on a package-global http.Client.
const requestTimeout = 5 * time.Second

// UpdateIntervalSeconds is how often a listed master receives a state
// POST (spec.md §4.K "every 2 seconds per master").
const UpdateIntervalSeconds = 2

// Config names one master to advertise to.
type Config struct {
	URL      string
	Group    string
	Name     string
	Username string
	Password string
	// Index staggers this master's update tic against the others so
	// they don't all fire on the same tic (spec.md §4.K "staggered by
	// master index").
	Index int
}

// Master tracks one configured master server's advertisement state.
type Master struct {
	cfg    Config
	client *http.Client

	mu         sync.Mutex
	disabled   bool
	updating   bool
	lastUpdate time.Time
}

// New returns a master ready to be listed.
func New(cfg Config) *Master {
	return &Master{cfg: cfg, client: &http.Client{Timeout: requestTimeout}}
}

// sha1Hex returns the hex-encoded SHA-1 of s — the plaintext password
// is never sent over the wire or echoed in any JSON (spec.md §4.K
// "password as SHA-1(config_password) — the plaintext is never sent").
func sha1Hex(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

func (m *Master) endpoint(path string) string {
	return strings.TrimRight(m.cfg.URL, "/") + path
}

func (m *Master) authenticate(req *http.Request) {
	req.SetBasicAuth(m.cfg.Username, sha1Hex(m.cfg.Password))
}

// Disabled reports whether this master has stopped being contacted
// (spec.md §4.K "marked disabled and are not contacted further").
func (m *Master) Disabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disabled
}

// LastUpdate returns when the last successful state POST completed.
func (m *Master) LastUpdate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdate
}

// List PUTs the server's static configuration to the master, expecting
// 201 (listed). 301 and 401 are fatal per spec.md §4.K; any other
// status, including other 2xx codes, is reported as an ordinary error.
func (m *Master) List(ctx context.Context, staticJSON []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		m.endpoint(fmt.Sprintf("/servers/%s/%s", m.cfg.Group, m.cfg.Name)),
		bytes.NewReader(staticJSON))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	m.authenticate(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("master %s: %w", m.cfg.URL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusMovedPermanently:
		return fmt.Errorf("master %s: %q is already listed", m.cfg.URL, m.cfg.Name)
	case http.StatusUnauthorized:
		return fmt.Errorf("master %s: authentication rejected", m.cfg.URL)
	default:
		return fmt.Errorf("master %s: unexpected status %d", m.cfg.URL, resp.StatusCode)
	}
}

// ShouldUpdate reports whether this master's 2-second POST interval
// lands on worldIndex, offset by Config.Index so masters don't all
// fire on the same tic.
func (m *Master) ShouldUpdate(worldIndex uint32, ticrate uint32) bool {
	if m.Disabled() {
		return false
	}
	interval := UpdateIntervalSeconds * ticrate
	if interval == 0 {
		return false
	}
	return (worldIndex+uint32(m.cfg.Index))%interval == 0
}

// Update POSTs current state asynchronously: the caller does not block
// on the response. done is invoked from a background goroutine once
// the request completes or fails (spec.md §4.K "Asynchronous: the loop
// does not wait for responses; completion callbacks update each
// master's last_update and updating flags").
func (m *Master) Update(ctx context.Context, stateJSON []byte, done func(error)) {
	m.mu.Lock()
	m.updating = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.updating = false
			m.mu.Unlock()
		}()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			m.endpoint(fmt.Sprintf("/servers/%s/%s", m.cfg.Group, m.cfg.Name)),
			bytes.NewReader(stateJSON))
		if err != nil {
			if done != nil {
				done(err)
			}
			return
		}
		req.Header.Set("Content-Type", "application/json")
		m.authenticate(req)

		resp, err := m.client.Do(req)
		if err != nil {
			if done != nil {
				done(err)
			}
			return
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			m.mu.Lock()
			m.lastUpdate = time.Now()
			m.mu.Unlock()
			if done != nil {
				done(nil)
			}
		case http.StatusUnauthorized, http.StatusRequestTimeout:
			m.mu.Lock()
			m.disabled = true
			m.mu.Unlock()
			if done != nil {
				done(fmt.Errorf("master %s: disabled after status %d", m.cfg.URL, resp.StatusCode))
			}
		default:
			m.mu.Lock()
			m.disabled = true
			m.mu.Unlock()
			if done != nil {
				done(fmt.Errorf("master %s: disabled after unexpected status %d", m.cfg.URL, resp.StatusCode))
			}
		}
	}()
}

// Delist DELETEs this server's listing. A disabled master is skipped
// (spec.md §4.K "DELETE the listing from every non-disabled master").
func (m *Master) Delist(ctx context.Context) error {
	if m.Disabled() {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		m.endpoint(fmt.Sprintf("/servers/%s/%s", m.cfg.Group, m.cfg.Name)), nil)
	if err != nil {
		return err
	}
	m.authenticate(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("master %s: %w", m.cfg.URL, err)
	}
	defer resp.Body.Close()
	return nil
}

// Manager drives every configured master through the startup list,
// per-tic update, and shutdown delist phases.
type Manager struct {
	Masters []*Master
}

// NewManager builds one Master per config.
func NewManager(configs []Config) *Manager {
	mgr := &Manager{Masters: make([]*Master, len(configs))}
	for i, cfg := range configs {
		mgr.Masters[i] = New(cfg)
	}
	return mgr
}

// ListAll lists every configured master at startup, returning the
// first fatal error encountered (spec.md §4.K "Expect 201... 301...
// 401" are all startup-fatal outcomes).
func (mgr *Manager) ListAll(ctx context.Context, staticJSON []byte) error {
	for _, m := range mgr.Masters {
		if err := m.List(ctx, staticJSON); err != nil {
			return err
		}
	}
	return nil
}

// Upkeep runs once per tic: every master whose stagger offset matches
// worldIndex gets an asynchronous state POST using freshState's
// result, evaluated lazily so masters that aren't due this tic never
// pay for building the JSON.
func (mgr *Manager) Upkeep(ctx context.Context, worldIndex uint32, ticrate uint32, freshState func() []byte) {
	for _, m := range mgr.Masters {
		if m.ShouldUpdate(worldIndex, ticrate) {
			m.Update(ctx, freshState(), nil)
		}
	}
}

// DelistAll delists every non-disabled master at shutdown.
func (mgr *Manager) DelistAll(ctx context.Context) {
	for _, m := range mgr.Masters {
		_ = m.Delist(ctx)
	}
}

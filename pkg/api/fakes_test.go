package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tradelink/leadexchange/pkg/audit"
	"github.com/tradelink/leadexchange/pkg/auth"
	"github.com/tradelink/leadexchange/pkg/observability"
)

// memoryUsers is an in-process UserStore for handler tests
type memoryUsers struct {
	mu           sync.Mutex
	byID         map[uuid.UUID]*auth.User
	entitlements map[uuid.UUID]map[string]bool
	err          error // returned by every call when set
	rehashed     int
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{
		byID:         make(map[uuid.UUID]*auth.User),
		entitlements: make(map[uuid.UUID]map[string]bool),
	}
}

func (m *memoryUsers) CreateUser(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u.Email = auth.NormalizeEmail(u.Email)
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return auth.ErrEmailTaken
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	m.byID[u.ID] = &copied
	return nil
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	email = auth.NormalizeEmail(email)
	for _, u := range m.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (m *memoryUsers) GetUserByID(_ context.Context, id string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, auth.ErrUserNotFound
	}
	u, ok := m.byID[uid]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memoryUsers) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash *auth.PasswordHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.Password = hash
	m.rehashed++
	return nil
}

func (m *memoryUsers) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *memoryUsers) GetUserProfile(_ context.Context, userID string) (*auth.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, nil
	}
	u, ok := m.byID[uid]
	if !ok {
		return nil, nil
	}
	profile := &auth.UserProfile{ID: userID, Role: u.Role, Entitlements: []string{}}
	for e := range m.entitlements[uid] {
		profile.Entitlements = append(profile.Entitlements, e)
	}
	sort.Strings(profile.Entitlements)
	return profile, nil
}

func (m *memoryUsers) GrantEntitlement(_ context.Context, userID uuid.UUID, entitlement string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byID[userID]; !ok {
		return auth.ErrUserNotFound
	}
	if m.entitlements[userID] == nil {
		m.entitlements[userID] = make(map[string]bool)
	}
	m.entitlements[userID][entitlement] = true
	return nil
}

func (m *memoryUsers) RevokeEntitlement(_ context.Context, userID uuid.UUID, entitlement string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.entitlements[userID], entitlement)
	return nil
}

func (m *memoryUsers) setRole(userID uuid.UUID, role auth.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[userID].Role = role
}

func (m *memoryUsers) remove(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, userID)
}

func (m *memoryUsers) hasEntitlement(userID uuid.UUID, entitlement string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entitlements[userID][entitlement]
}

// memoryLeads is an in-process LeadStore
type memoryLeads struct {
	mu    sync.Mutex
	leads []*Lead
}

func (m *memoryLeads) add(title string) *Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &Lead{ID: uuid.New(), Title: title, Trade: "roofing", Region: "north", PriceCents: 4500, CreatedAt: time.Now()}
	m.leads = append(m.leads, l)
	return l
}

func (m *memoryLeads) ListAvailableLeads(_ context.Context, limit, offset int) ([]*Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Lead{}
	for _, l := range m.leads {
		if l.PurchasedBy == nil {
			out = append(out, l)
		}
	}
	if offset >= len(out) {
		return []*Lead{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryLeads) PurchaseLead(_ context.Context, leadID, buyerID uuid.UUID) (*Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.ID != leadID {
			continue
		}
		if l.PurchasedBy != nil {
			return nil, ErrLeadUnavailable
		}
		now := time.Now()
		l.PurchasedBy = &buyerID
		l.PurchasedAt = &now
		return l, nil
	}
	return nil, ErrLeadNotFound
}

type testEnv struct {
	server   *Server
	users    *memoryUsers
	leads    *memoryLeads
	sessions *auth.SessionManager
	audit    *recordingAudit
}

// recordingAudit keeps every audit event in memory
type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (a *recordingAudit) Log(_ context.Context, event *audit.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) Close() error { return nil }

// ofType returns the recorded events of one type
func (a *recordingAudit) ofType(eventType audit.EventType) []*audit.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*audit.AuditEvent
	for _, e := range a.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

const testWebhookSecret = "whsec_test"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:    newMemoryUsers(),
		leads:    &memoryLeads{},
		sessions: auth.NewSessionManager(auth.NewMemorySessionStore(100, time.Hour), time.Hour),
		audit:    &recordingAudit{},
	}
	env.server = NewServer(ServerConfig{
		Users:         env.users,
		Leads:         env.leads,
		Sessions:      env.sessions,
		Audit:         env.audit,
		Logger:        observability.NewLogger(observability.ErrorLevel, io.Discard),
		WebhookSecret: testWebhookSecret,
	})
	return env
}

// addUser stores a user with a real password hash
func (env *testEnv) addUser(t *testing.T, email, password string, role auth.Role, entitlements ...string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := &auth.User{Email: email, Role: role, Password: hash}
	require.NoError(t, env.users.CreateUser(context.Background(), u))
	for _, e := range entitlements {
		require.NoError(t, env.users.GrantEntitlement(context.Background(), u.ID, e))
	}
	return u
}

// sessionFor issues a session token without going through login
func (env *testEnv) sessionFor(t *testing.T, u *auth.User) string {
	t.Helper()
	token, _, err := env.sessions.Create(context.Background(), u.Principal())
	require.NoError(t, err)
	return token
}

func (env *testEnv) do(method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	return w
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

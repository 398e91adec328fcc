package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/middleware"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/orgs"
	"github.com/platinummonkey/helios/pkg/realtime"
	"github.com/platinummonkey/helios/pkg/session"
	"github.com/platinummonkey/helios/pkg/users"
)

// memStore is an in-memory UserStore and orgs.Service sharing one membership table
type memStore struct {
	mu       sync.Mutex
	users    map[string]*auth.User
	refresh  map[string]*auth.RefreshToken
	orgs     map[string]*orgs.Organization // by slug
	members  map[string]map[string]*orgs.Member
	err      error
	lastSeen map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*auth.User{},
		refresh:  map[string]*auth.RefreshToken{},
		orgs:     map[string]*orgs.Organization{},
		members:  map[string]map[string]*orgs.Member{},
		lastSeen: map[string]time.Time{},
	}
}

func (s *memStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *memStore) findByEmail(email string) *auth.User {
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (s *memStore) user(id string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *s.users[id]
	return &u
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u := s.findByEmail(email)
	if u == nil {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) LoadIdentity(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *u
	cp.Memberships = nil
	for _, org := range s.orgs {
		if m, ok := s.members[org.ID][id]; ok {
			cp.Memberships = append(cp.Memberships, auth.Membership{
				OrganizationID:   org.ID,
				OrganizationSlug: org.Slug,
				Role:             m.Role,
				IsActive:         m.IsActive,
			})
		}
	}
	return &cp, nil
}

func (s *memStore) ExistsByEmailOrUsername(_ context.Context, email, username string) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, false, s.err
	}
	var emailTaken, usernameTaken bool
	for _, u := range s.users {
		emailTaken = emailTaken || u.Email == email
		usernameTaken = usernameTaken || u.Username == username
	}
	return emailTaken, usernameTaken, nil
}

func (s *memStore) EmailAvailable(ctx context.Context, email string) (bool, error) {
	taken, _, err := s.ExistsByEmailOrUsername(ctx, email, "\x00")
	return !taken, err
}

func (s *memStore) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, taken, err := s.ExistsByEmailOrUsername(ctx, "\x00", username)
	return !taken, err
}

func (s *memStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(user)
}

func (s *memStore) insertLocked(user *auth.User) error {
	if s.err != nil {
		return s.err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.IsActive = true
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memStore) CreateWithOrganization(_ context.Context, user *auth.User, org *orgs.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.orgs[org.Slug]; taken {
		return orgs.ErrSlugTaken
	}
	if err := s.insertLocked(user); err != nil {
		return err
	}
	s.createOrgLocked(org)
	s.members[org.ID][user.ID] = &orgs.Member{OrganizationID: org.ID, UserID: user.ID, Role: auth.OrgRoleOwner, IsActive: true}
	return nil
}

func (s *memStore) CreateWithMembership(_ context.Context, user *auth.User, orgSlug string) (*orgs.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgSlug]
	if !ok || !org.IsActive {
		return nil, orgs.ErrNotFound
	}
	if s.findByEmail(user.Email) != nil {
		return nil, users.ErrUserExists
	}
	if err := s.insertLocked(user); err != nil {
		return nil, err
	}
	s.members[org.ID][user.ID] = &orgs.Member{OrganizationID: org.ID, UserID: user.ID, Role: auth.OrgRoleMember, IsActive: true}
	cp := *org
	return &cp, nil
}

func (s *memStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[id] = at
	return nil
}

func (s *memStore) seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lastSeen[id]
	return ok
}

func (s *memStore) VerifyEmail(_ context.Context, token string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.EmailVerificationToken == token && u.EmailVerificationExpiresAt != nil && u.EmailVerificationExpiresAt.After(now) {
			u.EmailVerified = true
			u.EmailVerificationToken = ""
			u.EmailVerificationExpiresAt = nil
			return u.ID, nil
		}
	}
	return "", users.ErrInvalidToken
}

func (s *memStore) SaveRefreshToken(_ context.Context, token *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	token.ID = uuid.NewString()
	cp := *token
	s.refresh[token.TokenHash] = &cp
	return nil
}

func (s *memStore) GetRefreshToken(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[tokenHash]
	if !ok {
		return nil, users.ErrTokenNotFound
	}
	cp := *rt
	return &cp, nil
}

func (s *memStore) RevokeRefreshToken(_ context.Context, userID, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[tokenHash]
	if !ok || rt.UserID != userID {
		return users.ErrTokenNotFound
	}
	rt.RevokedAt = &at
	return nil
}

func (s *memStore) RevokeAllRefreshTokens(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var n int64
	for _, rt := range s.refresh {
		if rt.UserID == userID && rt.RevokedAt == nil {
			rt.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (s *memStore) refreshRecords() []*auth.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.RefreshToken
	for _, rt := range s.refresh {
		cp := *rt
		out = append(out, &cp)
	}
	return out
}

func (s *memStore) createOrgLocked(org *orgs.Organization) {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.IsActive = true
	cp := *org
	s.orgs[org.Slug] = &cp
	s.members[org.ID] = map[string]*orgs.Member{}
}

func (s *memStore) CreateOrganization(_ context.Context, org *orgs.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.orgs[org.Slug]; taken {
		return orgs.ErrSlugTaken
	}
	s.createOrgLocked(org)
	return nil
}

func (s *memStore) GetOrganization(_ context.Context, id string) (*orgs.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, org := range s.orgs {
		if org.ID == id {
			cp := *org
			return &cp, nil
		}
	}
	return nil, orgs.ErrNotFound
}

func (s *memStore) GetOrganizationBySlug(_ context.Context, slug string) (*orgs.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	org, ok := s.orgs[slug]
	if !ok {
		return nil, orgs.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *memStore) SlugAvailable(_ context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	_, taken := s.orgs[slug]
	return !taken, nil
}

func (s *memStore) AddMember(_ context.Context, orgID, userID string, role auth.OrganizationRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.members[orgID][userID]; exists {
		return orgs.ErrMemberExists
	}
	s.members[orgID][userID] = &orgs.Member{OrganizationID: orgID, UserID: userID, Role: role, IsActive: true}
	return nil
}

func (s *memStore) UpdateMemberRole(_ context.Context, orgID, userID string, role auth.OrganizationRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[orgID][userID]
	if !ok {
		return orgs.ErrMemberNotFound
	}
	m.Role = role
	return nil
}

func (s *memStore) RemoveMember(_ context.Context, orgID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[orgID][userID]
	if !ok || !m.IsActive {
		return orgs.ErrMemberNotFound
	}
	m.IsActive = false
	return nil
}

func (s *memStore) ListMembers(_ context.Context, orgID string) ([]*orgs.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*orgs.Member
	for _, m := range s.members[orgID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type apiFixture struct {
	server   *Server
	store    *memStore
	svc      *auth.Service
	realtime *realtime.Service
	registry *prometheus.Registry
	mr       *miniredis.Miniredis
}

type fixtureOptions struct {
	policy  *auth.PasswordPolicy
	limiter middleware.Limiter
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}

func newAPIFixture(t *testing.T, opts ...func(*fixtureOptions)) *apiFixture {
	t.Helper()
	var o fixtureOptions
	for _, opt := range opts {
		opt(&o)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := testLogger()
	tokens, err := auth.NewTokenService("access-secret", "refresh-secret")
	require.NoError(t, err)
	sessions := session.NewOptional(session.NewRedisStore(client), session.DefaultLockoutPolicy(), logger)
	svcOpts := []auth.ServiceOption{auth.WithBcryptCost(bcrypt.MinCost)}
	if o.policy != nil {
		svcOpts = append(svcOpts, auth.WithPasswordPolicy(*o.policy))
	}
	svc := auth.NewService(tokens, sessions, svcOpts...)

	store := newMemStore()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	authn := middleware.NewAuthenticator(svc, store, metrics, logger)

	rt := realtime.NewService(realtime.DefaultConfig(), realtime.Deps{
		Identities: authn,
		Logger:     logger,
		Metrics:    metrics,
	})
	t.Cleanup(rt.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server := NewServer(ctx, Config{CORSOrigins: []string{"http://localhost:3000"}}, Deps{
		Auth:          svc,
		Authenticator: authn,
		Users:         store,
		Orgs:          store,
		Realtime:      rt,
		AuthLimiter:   o.limiter,
		Registry:      registry,
		Metrics:       metrics,
		Logger:        logger,
	})

	return &apiFixture{
		server:   server,
		store:    store,
		svc:      svc,
		realtime: rt,
		registry: registry,
		mr:       mr,
	}
}

// addUser stores a verified user with password
func (f *apiFixture) addUser(t *testing.T, user auth.User, password string) *auth.User {
	t.Helper()
	hash, err := f.svc.HashPassword(password)
	require.NoError(t, err)
	user.PasswordHash = hash
	if user.Role == "" {
		user.Role = auth.RoleUser
	}
	require.NoError(t, f.store.Create(context.Background(), &user))
	return &user
}

func (f *apiFixture) addOrg(t *testing.T, slug string, owner string) *orgs.Organization {
	t.Helper()
	org := &orgs.Organization{Name: slug, Slug: slug}
	require.NoError(t, f.store.CreateOrganization(context.Background(), org))
	if owner != "" {
		require.NoError(t, f.store.AddMember(context.Background(), org.ID, owner, auth.OrgRoleOwner))
	}
	return org
}

// tokenFor issues an access token for a stored user
func (f *apiFixture) tokenFor(t *testing.T, userID string) string {
	t.Helper()
	user, err := f.store.LoadIdentity(context.Background(), userID)
	require.NoError(t, err)
	token, err := f.svc.IssueAccessToken(user.Identity())
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "helios-test")
	req.RemoteAddr = "10.0.0.7:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

var errDatabaseDown = errors.New("database down")

// statusOf is a compact assertion message helper
func statusOf(w *httptest.ResponseRecorder) string {
	return http.StatusText(w.Code) + ": " + w.Body.String()
}

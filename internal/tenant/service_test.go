package tenant

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/tenant/entity"
)

// memStore is an in-memory Store with the same uniqueness and expiry rules
// as the tenants table.
type memStore struct {
	mu      sync.Mutex
	tenants map[string]*entity.Tenant
	failErr error
}

func newMemStore() *memStore { return &memStore{tenants: map[string]*entity.Tenant{}} }

func (m *memStore) Provision(_ context.Context, t *entity.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	for _, existing := range m.tenants {
		if existing.Email == t.Email || existing.SchemaName == t.SchemaName {
			return &pq.Error{Code: "23505", Message: "duplicate key value"}
		}
	}
	cp := *t
	m.tenants[t.Email] = &cp
	return nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*entity.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	t, ok := m.tenants[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) SetResetToken(_ context.Context, id, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.ID == id {
			t.PasswordResetToken = &token
			t.PasswordResetTokenExpiresAt = &expiresAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memStore) ConsumeResetToken(_ context.Context, token, hash string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.PasswordResetToken != nil && *t.PasswordResetToken == token &&
			t.PasswordResetTokenExpiresAt.After(now) {
			t.PasswordHash = &hash
			t.PasswordResetToken = nil
			t.PasswordResetTokenExpiresAt = nil
			return t.ID, nil
		}
	}
	return "", sql.ErrNoRows
}

// captureSender records delivered links.
type captureSender struct {
	links map[string]string
	err   error
}

func (c *captureSender) SendPasswordLink(_ context.Context, email, link string) error {
	if c.err != nil {
		return c.err
	}
	if c.links == nil {
		c.links = map[string]string{}
	}
	c.links[email] = link
	return nil
}

type fixture struct {
	svc    *Service
	store  *memStore
	sender *captureSender
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), sender: &captureSender{}, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := Config{AdminKey: "k3y", PublicBaseURL: "https://forms.example", ResetTTL: time.Hour}
	f.svc = NewService(f.store, BcryptHasher{Cost: bcrypt.MinCost}, f.sender, cfg, zap.NewNop().Sugar())
	f.svc.now = func() time.Time { return f.now }
	n := 0
	f.svc.newID = func() string {
		n++
		return "id-" + string(rune('0'+n))
	}
	return f
}

func (f *fixture) storedToken(t *testing.T, email string) string {
	t.Helper()
	tn, err := f.store.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, tn.PasswordResetToken)
	return *tn.PasswordResetToken
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tn, err := f.svc.Register(ctx, "Acme Club", " Owner@Acme.test ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "client_acme_club", tn.SchemaName)
	assert.Equal(t, "owner@acme.test", tn.Email)
	assert.Equal(t, auth.RoleClient, tn.Role)

	got, err := f.svc.Authenticate(ctx, "OWNER@acme.test", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, got.ID)

	_, err = f.svc.Authenticate(ctx, "owner@acme.test", "wrong horse")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = f.svc.Authenticate(ctx, "nobody@acme.test", "correct horse")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = f.svc.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthenticate_StoreError(t *testing.T) {
	f := newFixture(t)
	f.store.failErr = errors.New("connection refused")
	_, err := f.svc.Authenticate(context.Background(), "a@b.test", "whatever1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadCredentials)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Acme", "owner@acme.test", "short")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Register(ctx, "", "owner@acme.test", "long enough")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Register(ctx, "Acme", "not-an-email", "long enough")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Register(ctx, "!!!", "owner@acme.test", "long enough")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestCreateClient_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tn, err := f.svc.CreateClient(ctx, "Acme", "owner@acme.test")
	require.NoError(t, err)
	assert.False(t, tn.HasPassword())

	_, err = f.svc.CreateClient(ctx, "Other", "owner@acme.test")
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = f.svc.CreateClient(ctx, "ACME", "second@acme.test")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateClient_CannotLoginBeforePasswordSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateClient(ctx, "Acme", "owner@acme.test")
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, "owner@acme.test", "anything-at-all")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateClient(ctx, "Acme", "owner@acme.test")
	require.NoError(t, err)

	require.NoError(t, f.svc.SendPasswordLink(ctx, "owner@acme.test"))
	token := f.storedToken(t, "owner@acme.test")
	assert.Len(t, token, 64)
	assert.Equal(t, "https://forms.example/set-password.html?token="+token, f.sender.links["owner@acme.test"])

	require.NoError(t, f.svc.SetPassword(ctx, token, "brand new pass"))
	_, err = f.svc.Authenticate(ctx, "owner@acme.test", "brand new pass")
	require.NoError(t, err)

	// single use
	err = f.svc.SetPassword(ctx, token, "another new pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestPasswordReset_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateClient(ctx, "Acme", "owner@acme.test")
	require.NoError(t, err)
	require.NoError(t, f.svc.SendPasswordLink(ctx, "owner@acme.test"))
	token := f.storedToken(t, "owner@acme.test")

	// exactly at expiry the token is no longer valid
	f.now = f.now.Add(time.Hour)
	assert.ErrorIs(t, f.svc.SetPassword(ctx, token, "brand new pass"), ErrInvalidResetToken)
}

func TestPasswordReset_NewLinkReplacesOld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateClient(ctx, "Acme", "owner@acme.test")
	require.NoError(t, err)

	require.NoError(t, f.svc.SendPasswordLink(ctx, "owner@acme.test"))
	first := f.storedToken(t, "owner@acme.test")
	require.NoError(t, f.svc.SendPasswordLink(ctx, "owner@acme.test"))
	second := f.storedToken(t, "owner@acme.test")
	require.NotEqual(t, first, second)

	assert.ErrorIs(t, f.svc.SetPassword(ctx, first, "brand new pass"), ErrInvalidResetToken)
	assert.NoError(t, f.svc.SetPassword(ctx, second, "brand new pass"))
}

func TestSetPassword_Validation(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.SetPassword(context.Background(), "", "brand new pass"), ErrInvalidResetToken)
	assert.ErrorIs(t, f.svc.SetPassword(context.Background(), "tok", "short"), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.SetPassword(context.Background(), "unknown", "brand new pass"), ErrInvalidResetToken)
}

func TestSendPasswordLink_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.ErrorIs(t, f.svc.SendPasswordLink(ctx, "nobody@acme.test"), ErrNotFound)

	_, err := f.svc.CreateClient(ctx, "Acme", "owner@acme.test")
	require.NoError(t, err)
	f.sender.err = errors.New("smtp down")
	err = f.svc.SendPasswordLink(ctx, "owner@acme.test")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestAuthorizeAdminKey(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.svc.AuthorizeAdminKey("k3y"))
	assert.False(t, f.svc.AuthorizeAdminKey("k3"))
	assert.False(t, f.svc.AuthorizeAdminKey(""))

	f.svc.cfg.AdminKey = ""
	assert.False(t, f.svc.AuthorizeAdminKey(""))
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureAdmin(ctx))
	assert.Empty(t, f.store.tenants)

	f.svc.cfg.AdminEmail = "Root@Forms.example"
	f.svc.cfg.AdminPassword = "root password"
	require.NoError(t, f.svc.EnsureAdmin(ctx))
	require.NoError(t, f.svc.EnsureAdmin(ctx))
	assert.Len(t, f.store.tenants, 1)

	tn, err := f.svc.Authenticate(ctx, "root@forms.example", "root password")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, tn.Role)
	assert.Equal(t, AdminSchemaName, tn.SchemaName)
}

func TestEnsureAdmin_RegisteredAdminNameDoesNotBlockSeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Admin", "mallory@evil.test", "long enough pw")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "Platform Admin", "eve@evil.test", "long enough pw")
	require.NoError(t, err)

	f.svc.cfg.AdminEmail = "root@forms.example"
	f.svc.cfg.AdminPassword = "root password"
	require.NoError(t, f.svc.EnsureAdmin(ctx))

	tn, err := f.svc.Authenticate(ctx, "root@forms.example", "root password")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, tn.Role)
	assert.Equal(t, AdminSchemaName, tn.SchemaName)
}

func TestEnsureAdmin_EmailHeldByClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Root Club", "root@forms.example", "client password")
	require.NoError(t, err)

	f.svc.cfg.AdminEmail = "root@forms.example"
	f.svc.cfg.AdminPassword = "root password"
	err = f.svc.EnsureAdmin(ctx)
	assert.ErrorIs(t, err, ErrAdminEmailTaken)

	tn, err := f.store.GetByEmail(ctx, "root@forms.example")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleClient, tn.Role)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PUBLIC_BASE_URL", "https://forms.example/")
	t.Setenv("RESET_TOKEN_TTL", "15m")
	t.Setenv("ADMIN_SECRET_KEY", "abc")
	cfg := ConfigFromEnv()
	assert.Equal(t, "https://forms.example", cfg.PublicBaseURL)
	assert.Equal(t, 15*time.Minute, cfg.ResetTTL)
	assert.Equal(t, "abc", cfg.AdminKey)
}

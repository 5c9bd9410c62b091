package tenant

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/tenant/entity"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/database"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Store is the persistence the service needs; *repo.TenantRepo satisfies it.
type Store interface {
	Provision(ctx context.Context, t *entity.Tenant) error
	GetByEmail(ctx context.Context, email string) (*entity.Tenant, error)
	SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, token, hash string, now time.Time) (string, error)
}

// Config holds tenant lifecycle settings.
type Config struct {
	AdminKey      string
	AdminEmail    string
	AdminPassword string
	PublicBaseURL string
	WebhookURL    string
	ResetTTL      time.Duration
}

// ConfigFromEnv reads tenant settings from environment variables.
func ConfigFromEnv() Config {
	ttl := time.Hour
	if v := os.Getenv("RESET_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			ttl = d
		}
	}
	base := os.Getenv("PUBLIC_BASE_URL")
	if base == "" {
		base = "http://localhost:3000"
	}
	return Config{
		AdminKey:      os.Getenv("ADMIN_SECRET_KEY"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		PublicBaseURL: strings.TrimRight(base, "/"),
		WebhookURL:    os.Getenv("PASSWORD_LINK_WEBHOOK_URL"),
		ResetTTL:      ttl,
	}
}

var (
	ErrNotFound          = errors.New("tenant not found")
	ErrBadCredentials    = errors.New("invalid email or password")
	ErrDuplicate         = errors.New("tenant already exists")
	ErrInvalidName       = errors.New("name must contain letters or digits")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidResetToken = errors.New("invalid or expired token")
	ErrAdminEmailTaken   = errors.New("admin email belongs to a non-admin tenant")
)

// minPasswordLen applies to passwords chosen through register/set-password.
const minPasswordLen = 8

// Service orchestrates tenant provisioning, login and password reset.
type Service struct {
	store  Store
	hasher PasswordHasher
	sender LinkSender
	cfg    Config
	logger *zap.SugaredLogger
	now    func() time.Time
	newID  func() string
}

func NewService(store Store, hasher PasswordHasher, sender LinkSender, cfg Config, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 10}
	}
	if sender == nil {
		sender = NewLogLinkSender(logger)
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	return &Service{
		store:  store,
		hasher: hasher,
		sender: sender,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  utilities.NewSnowflakeID,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate checks email and password. Unknown email, unset password and
// wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*entity.Tenant, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	t, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	if !t.HasPassword() || !s.hasher.Verify(*t.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return t, nil
}

// CreateClient provisions a client tenant without a password; the admin
// follows up with a password link.
func (s *Service) CreateClient(ctx context.Context, name, email string) (*entity.Tenant, error) {
	return s.provision(ctx, name, email, nil, auth.RoleClient)
}

// Register is self-service signup as a client tenant.
func (s *Service) Register(ctx context.Context, name, email, password string) (*entity.Tenant, error) {
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.provision(ctx, name, email, &hash, auth.RoleClient)
}

// AdminSchemaName is the schema of the seeded admin tenant. It lacks the
// client_ prefix, so no registered name can derive it.
const AdminSchemaName = "platform_admin"

// EnsureAdmin creates the configured admin tenant once. It is a no-op when
// no admin credentials are configured or the admin already exists, and an
// error when the email belongs to a non-admin tenant.
func (s *Service) EnsureAdmin(ctx context.Context) error {
	if s.cfg.AdminEmail == "" || s.cfg.AdminPassword == "" {
		return nil
	}
	email := normalizeEmail(s.cfg.AdminEmail)
	existing, err := s.store.GetByEmail(ctx, email)
	if err == nil {
		if existing.Role != auth.RoleAdmin {
			return fmt.Errorf("%w: %s has role %q", ErrAdminEmailTaken, existing.Email, existing.Role)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup admin: %w", err)
	}
	hash, err := s.hasher.Hash(s.cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	t, err := s.provisionSchema(ctx, "admin", email, AdminSchemaName, &hash, auth.RoleAdmin)
	if err != nil {
		return fmt.Errorf("provision admin: %w", err)
	}
	s.logger.Infow("admin tenant created", "tenant_id", t.ID, "email", t.Email)
	return nil
}

func (s *Service) provision(ctx context.Context, name, email string, hash *string, role string) (*entity.Tenant, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: name and a valid email are required", ErrInvalidInput)
	}
	schema, err := database.SchemaNameFor(name)
	if err != nil {
		return nil, ErrInvalidName
	}
	return s.provisionSchema(ctx, name, email, schema, hash, role)
}

func (s *Service) provisionSchema(ctx context.Context, name, email, schema string, hash *string, role string) (*entity.Tenant, error) {
	t := &entity.Tenant{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		SchemaName:   schema,
		Role:         role,
	}
	if err := s.store.Provision(ctx, t); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("provision tenant: %w", err)
	}
	s.logger.Debugw("tenant provisioned", "tenant_id", t.ID, "schema", t.SchemaName, "role", role)
	return t, nil
}

// AuthorizeAdminKey reports whether key matches the configured admin key.
// An unconfigured key never matches.
func (s *Service) AuthorizeAdminKey(key string) bool {
	if s.cfg.AdminKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) == 1
}

// SendPasswordLink issues a fresh reset token for the tenant and delivers
// the set-password link.
func (s *Service) SendPasswordLink(ctx context.Context, email string) error {
	t, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lookup tenant: %w", err)
	}
	token, err := newResetToken()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.cfg.ResetTTL)
	if err := s.store.SetResetToken(ctx, t.ID, token, expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store reset token: %w", err)
	}
	link := s.cfg.PublicBaseURL + "/set-password.html?token=" + url.QueryEscape(token)
	if err := s.sender.SendPasswordLink(ctx, t.Email, link); err != nil {
		return fmt.Errorf("deliver password link: %w", err)
	}
	return nil
}

// SetPassword consumes a reset token and sets the new password.
func (s *Service) SetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	id, err := s.store.ConsumeResetToken(ctx, token, hash, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}
	s.logger.Infow("password updated", "tenant_id", id)
	return nil
}

// newResetToken returns 32 random bytes, hex encoded.
func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

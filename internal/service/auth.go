package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zamadev/sandbox/internal/credential"
	"github.com/zamadev/sandbox/internal/metrics"
	"github.com/zamadev/sandbox/internal/model"
)

// DefaultTokenTTL is the validity window of a freshly minted session token.
const DefaultTokenTTL = time.Hour

// GuestUser is the fixed identity handed out by ContinueAsGuest.
var GuestUser = model.User{
	ID:    "guest_id",
	Email: "guest@zama.dev",
	Name:  "Guest User",
	Role:  model.RoleGuest,
}

// DemoUser is the account of the built-in credential table entry.
var DemoUser = model.User{
	ID:    "1",
	Email: "user@example.com",
	Name:  "Demo User",
	Role:  model.RoleUser,
}

const demoPassword = "password123"

// Credential is one entry of the mock credential table.
type Credential struct {
	User         model.User
	PasswordHash string // bcrypt
}

// HashPassword returns the bcrypt hash stored in a Credential.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// DemoCredential returns the built-in user@example.com / password123 entry.
func DemoCredential() Credential {
	// The demo password is public; a low cost keeps startup and tests fast.
	h, _ := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.MinCost)
	return Credential{User: DemoUser, PasswordHash: string(h)}
}

// AuthOptions configures an AuthService.
type AuthOptions struct {
	JWTSecret      string
	TokenTTL       time.Duration // zero means DefaultTokenTTL
	LoginLatency   time.Duration // simulated delay for Login and ContinueAsGuest
	RefreshLatency time.Duration
	Credentials    []Credential // nil means only DemoCredential
}

// AuthService runs the mock sign-in flow and owns the profile's single
// session. Expiry is checked lazily: a session is only discarded when a
// caller asks whether it is still valid.
type AuthService struct {
	store   *credential.Store
	logger  *slog.Logger
	metrics metrics.Recorder

	jwtSecret      []byte
	ttl            time.Duration
	loginLatency   time.Duration
	refreshLatency time.Duration
	users          map[string]Credential

	now func() time.Time
}

// NewAuthService wires the session service. rec may be nil.
func NewAuthService(store *credential.Store, opts AuthOptions, logger *slog.Logger, rec metrics.Recorder) (*AuthService, error) {
	if opts.JWTSecret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if ttl < time.Second {
		ttl = time.Second // expiresIn is carried in whole seconds
	}
	creds := opts.Credentials
	if creds == nil {
		creds = []Credential{DemoCredential()}
	}

	users := make(map[string]Credential, len(creds))
	for i, c := range creds {
		if err := c.User.Validate(); err != nil {
			return nil, fmt.Errorf("credential %d: %w", i, err)
		}
		if c.PasswordHash == "" {
			return nil, fmt.Errorf("credential %d (%s): password hash is required", i, c.User.Email)
		}
		users[c.User.Email] = c
	}

	return &AuthService{
		store:          store,
		logger:         logger,
		metrics:        rec,
		jwtSecret:      []byte(opts.JWTSecret),
		ttl:            ttl,
		loginLatency:   opts.LoginLatency,
		refreshLatency: opts.RefreshLatency,
		users:          users,
		now:            time.Now,
	}, nil
}

// Login checks email and password against the credential table and, on
// success, replaces the profile's session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	sess, err := s.login(ctx, email, password)
	s.metrics.RecordAuthEvent("login", authResult(err))
	return sess, err
}

func (s *AuthService) login(ctx context.Context, email, password string) (*model.Session, error) {
	if err := (model.LoginInput{Email: email, Password: password}).Validate(); err != nil {
		return nil, err
	}
	if err := sleep(ctx, s.loginLatency); err != nil {
		return nil, err
	}

	cred, ok := s.users[email]
	if !ok || bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		s.logger.Info("login rejected", "email", email)
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, cred.User)
}

// ContinueAsGuest always succeeds and signs the profile in as GuestUser.
func (s *AuthService) ContinueAsGuest(ctx context.Context) (*model.Session, error) {
	sess, err := s.continueAsGuest(ctx)
	s.metrics.RecordAuthEvent("guest", authResult(err))
	return sess, err
}

func (s *AuthService) continueAsGuest(ctx context.Context) (*model.Session, error) {
	if err := sleep(ctx, s.loginLatency); err != nil {
		return nil, err
	}
	return s.startSession(ctx, GuestUser)
}

func (s *AuthService) startSession(ctx context.Context, u model.User) (*model.Session, error) {
	tok, err := s.mintToken(u.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveSession(ctx, *tok, u); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("session started", "user_id", u.ID, "role", u.Role)
	return &model.Session{Token: *tok, User: u}, nil
}

// IsAuthenticated reports whether a live token is stored. An expired token
// is cleared as a side effect.
func (s *AuthService) IsAuthenticated(ctx context.Context) (bool, error) {
	tok, err := s.store.LoadToken(ctx)
	if err != nil {
		return false, err
	}
	if tok == nil {
		return false, nil
	}
	if tok.Expired(s.now()) {
		s.logger.Info("session expired", "expired_at", tok.ExpiresAt())
		s.metrics.RecordAuthEvent("expire", "ok")
		if err := s.store.ClearSession(ctx); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// CurrentUser returns the signed-in user, or nil when there is no live
// session.
func (s *AuthService) CurrentUser(ctx context.Context) (*model.User, error) {
	ok, err := s.IsAuthenticated(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return s.store.LoadUser(ctx)
}

// Token returns the stored token without checking expiry, or nil.
func (s *AuthService) Token(ctx context.Context) (*model.AuthToken, error) {
	return s.store.LoadToken(ctx)
}

// Logout clears the session unconditionally.
func (s *AuthService) Logout(ctx context.Context) error {
	err := s.store.ClearSession(ctx)
	s.metrics.RecordAuthEvent("logout", authResult(err))
	if err == nil {
		s.logger.Info("session cleared")
	}
	return err
}

// RefreshToken mints and stores a replacement token. There is no exchange of
// the old refresh token; the stored user is left as is.
func (s *AuthService) RefreshToken(ctx context.Context) (*model.AuthToken, error) {
	tok, err := s.refreshToken(ctx)
	s.metrics.RecordAuthEvent("refresh", authResult(err))
	return tok, err
}

func (s *AuthService) refreshToken(ctx context.Context) (*model.AuthToken, error) {
	if err := sleep(ctx, s.refreshLatency); err != nil {
		return nil, err
	}
	subject := ""
	if u, err := s.store.LoadUser(ctx); err == nil && u != nil {
		subject = u.ID
	}
	tok, err := s.mintToken(subject)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveToken(ctx, *tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return tok, nil
}

// ValidateAccessToken checks a bearer token presented to the HTTP API. It
// must verify as a JWT signed by this service, match the stored session
// token, and the session must still be live.
func (s *AuthService) ValidateAccessToken(ctx context.Context, bearer string) (*model.User, error) {
	ok, err := s.IsAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthenticated
	}

	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(bearer, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	stored, err := s.store.LoadToken(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.AccessToken != bearer {
		return nil, ErrInvalidCredentials
	}

	u, err := s.store.LoadUser(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotAuthenticated
	}
	return u, nil
}

// RequireUser returns the signed-in user or ErrNotAuthenticated. It backs
// surfaces that act as the profile owner (CLI, MCP).
func (s *AuthService) RequireUser(ctx context.Context) (*model.User, error) {
	u, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotAuthenticated
	}
	return u, nil
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

func (s *AuthService) mintToken(subject string) (*model.AuthToken, error) {
	now := s.now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "sandbox",
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	return &model.AuthToken{
		AccessToken:  access,
		RefreshToken: "rt_" + hex.EncodeToString(b),
		ExpiresIn:    int64(s.ttl / time.Second),
		CreatedAt:    now.UnixMilli(),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func authResult(err error) string {
	var ve *model.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, ErrInvalidCredentials):
		return "rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

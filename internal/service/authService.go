package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/aman-churiwal/ai-gateway/internal/models"
)

const (
	tokenIssuer = "ai-gateway"
	roleAdmin   = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// AdminStore is the slice of the user repository the admin login needs.
type AdminStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, user *models.User, at time.Time) error
	Count(ctx context.Context) (int64, error)
}

// AdminClaims is the payload of an operator session token. Subject holds
// the user id.
type AdminClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService signs in operators of the /admin surface. Callers of /v1 are
// never authenticated here.
type AuthService struct {
	users      AdminStore
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewAuthService(users AdminStore, secret string, expiryHours int) *AuthService {
	return &AuthService{
		users:      users,
		signingKey: []byte(secret),
		ttl:        time.Duration(expiryHours) * time.Hour,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for issuing and checking tokens.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login checks the password and returns a signed session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("find admin: %w", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	issued := s.now()
	token, err := s.issue(user, issued)
	if err != nil {
		return "", err
	}

	if err := s.users.UpdateLastLogin(ctx, user, issued.UTC()); err != nil {
		slog.Warn("admin_last_login_update_failed", "email", user.Email, "err", err)
	}
	return token, nil
}

func (s *AuthService) issue(user *models.User, at time.Time) (string, error) {
	claims := AdminClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(at),
			ExpiresAt: jwt.NewNumericDate(at.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken accepts only HS256 tokens from this issuer that carry an
// unexpired admin role.
func (s *AuthService) ValidateToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return s.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Role != roleAdmin {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// EnsureAdmin creates the first operator from bootstrap settings. It does
// nothing once any operator exists or when the settings are blank.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	admin := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         "bootstrap admin",
		Role:         roleAdmin,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

package auth

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/MeGustas-5427/powermoniter/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
)

const (
	lockThreshold = 3
	lockDuration  = 15 * time.Minute
	tokenTTL      = 30 * 24 * time.Hour

	stripes = 64
)

// UserStore is the slice of the store the service needs. RecordLoginFailure
// must increment atomically in the backing store: the lockout threshold has
// to hold even when several serving instances share one database.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	RecordLoginFailure(ctx context.Context, id uuid.UUID) (int, error)
	LockAccount(ctx context.Context, id uuid.UUID, until time.Time) error
	SaveLoginState(ctx context.Context, u *store.User) error
}

// Service authenticates users and enforces the failed-login lockout.
// Login attempts for the same username are serialized per instance, which
// bounds redundant bcrypt work; the counter itself lives in the store.
type Service struct {
	users  UserStore
	secret []byte
	now    func() time.Time

	locks [stripes]sync.Mutex
}

func NewService(users UserStore, secret string) *Service {
	return &Service{users: users, secret: []byte(secret), now: time.Now}
}

func (s *Service) stripe(username string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(username))
	return &s.locks[h.Sum32()%stripes]
}

// Session is a successful login: the signed token plus the fields the API
// echoes back to the client.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *store.User
}

// Login verifies credentials and returns a signed access token. A locked
// account is rejected before the password is checked, so the lock state
// does not leak through timing and a locked attempt never burns bcrypt
// work.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	mu := s.stripe(username)
	mu.Lock()
	defer mu.Unlock()

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Still burn a hash so unknown usernames cost the same as wrong
		// passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if user.LockedUntil != nil {
		if now.Before(*user.LockedUntil) {
			return nil, ErrAccountLocked
		}
		// Lock expired, the account gets a clean slate. Persisted before
		// anything else counts against it, so the next failure increments
		// from zero rather than the stale pre-lock count.
		user.LockedUntil = nil
		user.FailCount = 0
		if err := s.users.SaveLoginState(ctx, user); err != nil {
			return nil, err
		}
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		count, err := s.users.RecordLoginFailure(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if count >= lockThreshold {
			until := now.Add(lockDuration)
			if err := s.users.LockAccount(ctx, user.ID, until); err != nil {
				return nil, err
			}
			slog.Warn("account locked", "username", username, "until", until)
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	user.FailCount = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	if err := s.users.SaveLoginState(ctx, user); err != nil {
		return nil, err
	}

	expiresAt := now.Add(tokenTTL)
	token, err := s.issueToken(user, now, expiresAt)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) issueToken(user *store.User, now, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"type": "access",
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken validates an access token and returns its subject.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredentials
	}
	if typ, _ := claims["type"].(string); typ != "access" {
		return "", ErrInvalidCredentials
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidCredentials
	}
	return sub, nil
}

// HashPassword wraps bcrypt at default cost for account provisioning.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

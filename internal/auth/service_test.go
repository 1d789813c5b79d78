package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MeGustas-5427/powermoniter/internal/store"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*store.User
	saves int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*store.User)}
}

func (f *fakeUsers) add(username, password string) *store.User {
	hash, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	u := &store.User{ID: uuid.New(), Username: username, PasswordHash: hash}
	f.users[username] = u
	return u
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) byID(id uuid.UUID) *store.User {
	for _, u := range f.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (f *fakeUsers) RecordLoginFailure(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID(id)
	if u == nil {
		return 0, errors.New("user not found")
	}
	u.FailCount++
	return u.FailCount, nil
}

func (f *fakeUsers) LockAccount(_ context.Context, id uuid.UUID, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID(id)
	if u == nil {
		return errors.New("user not found")
	}
	u.LockedUntil = &until
	return nil
}

func (f *fakeUsers) SaveLoginState(_ context.Context, u *store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	stored := f.users[u.Username]
	stored.FailCount = u.FailCount
	stored.LockedUntil = u.LockedUntil
	stored.LastLoginAt = u.LastLoginAt
	return nil
}

func testService(users *fakeUsers, now time.Time) *Service {
	s := NewService(users, "test-secret")
	s.now = func() time.Time { return now }
	return s
}

func TestLoginSuccess(t *testing.T) {
	users := newFakeUsers()
	user := users.add("alice", "correct horse")
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s := testService(users, now)

	sess, err := s.Login(context.Background(), "alice", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	parsed, err := jwt.Parse(sess.Token, func(*jwt.Token) (interface{}, error) { return []byte("test-secret"), nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != user.ID.String() {
		t.Errorf("sub = %v, want %s", claims["sub"], user.ID)
	}
	if claims["type"] != "access" {
		t.Errorf("type = %v, want access", claims["type"])
	}
	exp := int64(claims["exp"].(float64))
	if want := now.Add(30 * 24 * time.Hour).Unix(); exp != want {
		t.Errorf("exp = %d, want %d", exp, want)
	}
	if !sess.ExpiresAt.Equal(now.Add(30 * 24 * time.Hour)) {
		t.Errorf("expires_at = %v", sess.ExpiresAt)
	}
	if sess.User == nil || sess.User.Username != "alice" {
		t.Errorf("session user = %+v", sess.User)
	}
	if got := users.users["alice"].LastLoginAt; got == nil || !got.Equal(now) {
		t.Errorf("last_login_at = %v, want %v", got, now)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	users := newFakeUsers()
	users.add("alice", "correct horse")
	s := testService(users, time.Now())

	_, err := s.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if users.users["alice"].FailCount != 1 {
		t.Errorf("fail_count = %d, want 1", users.users["alice"].FailCount)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	s := testService(newFakeUsers(), time.Now())
	_, err := s.Login(context.Background(), "ghost", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLockoutAfterThreeFailures(t *testing.T) {
	users := newFakeUsers()
	users.add("alice", "correct horse")
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s := testService(users, now)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := s.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidCredentials", i+1, err)
		}
	}
	if _, err := s.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("third failure: err = %v, want ErrAccountLocked", err)
	}

	locked := users.users["alice"].LockedUntil
	if locked == nil || !locked.Equal(now.Add(15*time.Minute)) {
		t.Errorf("locked_until = %v, want %v", locked, now.Add(15*time.Minute))
	}

	// Correct password is rejected while the lock holds.
	if _, err := s.Login(ctx, "alice", "correct horse"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("during lock: err = %v, want ErrAccountLocked", err)
	}
}

func TestLockExpiryResetsCounter(t *testing.T) {
	users := newFakeUsers()
	users.add("alice", "correct horse")
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s := testService(users, now)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Login(ctx, "alice", "wrong")
	}

	// One second past expiry the gate reopens.
	s.now = func() time.Time { return now.Add(15*time.Minute + time.Second) }
	sess, err := s.Login(ctx, "alice", "correct horse")
	if err != nil {
		t.Fatalf("after expiry: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("empty token")
	}
	if fc := users.users["alice"].FailCount; fc != 0 {
		t.Errorf("fail_count = %d, want 0", fc)
	}
	if users.users["alice"].LockedUntil != nil {
		t.Error("locked_until not cleared")
	}
}

func TestExpiredLockThenWrongPasswordCountsFromZero(t *testing.T) {
	users := newFakeUsers()
	users.add("alice", "correct horse")
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s := testService(users, now)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Login(ctx, "alice", "wrong")
	}
	s.now = func() time.Time { return now.Add(16 * time.Minute) }

	if _, err := s.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials after lock expiry", err)
	}
	if fc := users.users["alice"].FailCount; fc != 1 {
		t.Errorf("fail_count = %d, want 1", fc)
	}
}

func TestSuccessResetsFailCount(t *testing.T) {
	users := newFakeUsers()
	users.add("alice", "correct horse")
	s := testService(users, time.Now())

	ctx := context.Background()
	s.Login(ctx, "alice", "wrong")
	s.Login(ctx, "alice", "wrong")
	if _, err := s.Login(ctx, "alice", "correct horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if fc := users.users["alice"].FailCount; fc != 0 {
		t.Errorf("fail_count = %d, want 0", fc)
	}
}

func TestConcurrentFailuresNeverOvershootLock(t *testing.T) {
	users := newFakeUsers()
	users.add("alice", "correct horse")
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s := testService(users, now)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Login(context.Background(), "alice", "wrong")
		}()
	}
	wg.Wait()

	u := users.users["alice"]
	if u.LockedUntil == nil {
		t.Fatal("account not locked after concurrent failures")
	}
	if !u.LockedUntil.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("locked_until = %v, want %v", u.LockedUntil, now.Add(15*time.Minute))
	}
}

// Two service instances over one shared store: the striped mutexes live per
// instance, so the threshold has to hold through the store's atomic
// increment alone.
func TestLockoutHoldsAcrossInstances(t *testing.T) {
	users := newFakeUsers()
	users.add("alice", "correct horse")
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	a := testService(users, now)
	b := testService(users, now)

	fire := func() {
		var wg sync.WaitGroup
		for _, s := range []*Service{a, b} {
			wg.Add(1)
			go func(s *Service) {
				defer wg.Done()
				s.Login(context.Background(), "alice", "wrong")
			}(s)
		}
		wg.Wait()
	}

	fire()
	if fc := users.users["alice"].FailCount; fc != 2 {
		t.Fatalf("fail_count after concurrent pair = %d, want 2", fc)
	}

	fire()
	u := users.users["alice"]
	if u.LockedUntil == nil {
		t.Fatal("account not locked after four failures across instances")
	}
	if !u.LockedUntil.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("locked_until = %v, want %v", u.LockedUntil, now.Add(15*time.Minute))
	}
	if _, err := a.Login(context.Background(), "alice", "correct horse"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("during lock: err = %v, want ErrAccountLocked", err)
	}
}

func TestVerifyToken(t *testing.T) {
	users := newFakeUsers()
	user := users.add("alice", "correct horse")
	s := testService(users, time.Now())

	sess, err := s.Login(context.Background(), "alice", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	sub, err := s.VerifyToken(sess.Token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if sub != user.ID.String() {
		t.Errorf("sub = %s, want %s", sub, user.ID)
	}

	if _, err := s.VerifyToken("not.a.token"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("garbage token err = %v, want ErrInvalidCredentials", err)
	}

	other := NewService(users, "other-secret")
	if _, err := other.VerifyToken(sess.Token); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong secret err = %v, want ErrInvalidCredentials", err)
	}
}

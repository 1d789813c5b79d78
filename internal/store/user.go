package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).First(&u, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// RecordLoginFailure bumps the failure counter with a SQL-side increment and
// returns the count after the bump. The increment runs in the database, so
// concurrent attempts against separate serving instances sharing one
// database cannot lose updates.
func (r *Repo) RecordLoginFailure(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&User{}).Where("id = ?", id).
			UpdateColumn("fail_count", gorm.Expr("fail_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var u User
		if err := tx.Select("fail_count").First(&u, "id = ?", id).Error; err != nil {
			return err
		}
		count = u.FailCount
		return nil
	})
	return count, err
}

// LockAccount stamps the lockout deadline without touching the counter.
func (r *Repo) LockAccount(ctx context.Context, id uuid.UUID, until time.Time) error {
	return r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).
		Update("locked_until", until).Error
}

// SaveLoginState persists the reset and last-login fields in one statement.
func (r *Repo) SaveLoginState(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Model(u).
		Select("fail_count", "locked_until", "last_login_at").
		Updates(map[string]any{
			"fail_count":    u.FailCount,
			"locked_until":  u.LockedUntil,
			"last_login_at": u.LastLoginAt,
		}).Error
}

package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vitroscience/vitro-bi/pkg/db/models"
)

// DBLock keeps the lock as a row in the store itself, so every process
// writing to the same database (worker, CLI) shares it without Redis. An
// expired row is taken over on the next acquire.
type DBLock struct {
	db   *gorm.DB
	name string
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	owner string
}

func NewDBLock(db *gorm.DB, name string, ttl time.Duration) (*DBLock, error) {
	if db == nil {
		return nil, errors.New("db required for lock")
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &DBLock{db: db, name: name, ttl: ttl, now: time.Now}, nil
}

func (l *DBLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	now := l.now()
	acquired := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ? AND expires_at_ms <= ?", l.name, now.UnixMilli()).
			Delete(&models.CronLock{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.CronLock{
			Name:        l.name,
			Owner:       owner,
			ExpiresAtMS: now.Add(l.ttl).UnixMilli(),
		})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.name, err)
	}
	if acquired {
		l.mu.Lock()
		l.owner = owner
		l.mu.Unlock()
	}
	return acquired, nil
}

// Refresh pushes the expiry out by one TTL. It returns ErrLockLost when the
// row no longer carries this holder's token.
func (l *DBLock) Refresh(ctx context.Context) error {
	owner := l.currentOwner()
	if owner == "" {
		return ErrLockLost
	}
	res := l.db.WithContext(ctx).Model(&models.CronLock{}).
		Where("name = ? AND owner = ?", l.name, owner).
		Update("expires_at_ms", l.now().Add(l.ttl).UnixMilli())
	if res.Error != nil {
		return fmt.Errorf("extend %s: %w", l.name, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *DBLock) TTL() time.Duration { return l.ttl }

// Release is a no-op for a lock this instance does not hold.
func (l *DBLock) Release(ctx context.Context) error {
	l.mu.Lock()
	owner := l.owner
	l.owner = ""
	l.mu.Unlock()
	if owner == "" {
		return nil
	}
	err := l.db.WithContext(ctx).Where("name = ? AND owner = ?", l.name, owner).
		Delete(&models.CronLock{}).Error
	if err != nil {
		return fmt.Errorf("release %s: %w", l.name, err)
	}
	return nil
}

func (l *DBLock) currentOwner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

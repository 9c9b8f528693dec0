package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/mri-check/internal/retry"
	"github.com/example/mri-check/internal/session"
)

// SessionRecord is one browser session's state, stored as JSON until it expires.
type SessionRecord struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID string    `gorm:"column:session_id;uniqueIndex;size:64"`
	Payload   string    `gorm:"column:payload;type:text"`
	ExpiresAt time.Time `gorm:"column:expires_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (SessionRecord) TableName() string {
	return "session_records"
}

// SessionRepository is the Postgres alternative to the Redis session store.
type SessionRepository struct {
	db     *gorm.DB
	ttl    time.Duration
	logger *zap.Logger
	policy retry.Policy
	now    func() time.Time
}

// NewSessionRepository creates a new repository instance.
func NewSessionRepository(db *gorm.DB, ttl time.Duration, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		ttl:    ttl,
		logger: logger.Named("session_repository"),
		policy: retry.DefaultPolicy(),
		now:    time.Now,
	}
}

// AutoMigrate ensures the schema is available.
func (r *SessionRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&SessionRecord{})
}

// Load returns the stored state. Unknown and expired sessions load as fresh state.
func (r *SessionRepository) Load(ctx context.Context, sessionID string) (*session.Result, error) {
	var rec SessionRecord
	err := r.executeWithRetry(ctx, "repository.load_session", sessionID, func() error {
		return r.db.WithContext(ctx).First(&rec, "session_id = ?", sessionID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.New(), nil
	}
	if err != nil {
		return nil, err
	}
	if !rec.ExpiresAt.After(r.now()) {
		return session.New(), nil
	}

	var state session.Result
	if err := json.Unmarshal([]byte(rec.Payload), &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

// Save upserts the session and pushes its expiry forward.
func (r *SessionRepository) Save(ctx context.Context, sessionID string, state *session.Result) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	now := r.now()
	rec := SessionRecord{
		SessionID: sessionID,
		Payload:   string(payload),
		ExpiresAt: now.Add(r.ttl),
		UpdatedAt: now,
	}
	return r.executeWithRetry(ctx, "repository.save_session", sessionID, func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
		}).Create(&rec).Error
	})
}

// Delete removes the session.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.executeWithRetry(ctx, "repository.delete_session", sessionID, func() error {
		return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&SessionRecord{}).Error
	})
}

// PurgeExpired deletes sessions past their expiry and returns how many were removed.
func (r *SessionRepository) PurgeExpired(ctx context.Context) (int64, error) {
	var removed int64
	err := r.executeWithRetry(ctx, "repository.purge_expired", "", func() error {
		res := r.db.WithContext(ctx).Where("expires_at <= ?", r.now()).Delete(&SessionRecord{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}

// executeWithRetry retries transient failures. A missing record is a result, not a failure, so
// it bypasses the retry loop and its error logging.
func (r *SessionRepository) executeWithRetry(ctx context.Context, operation, sessionID string, fn func() error) error {
	notFound := false
	err := retry.Do(ctx, r.policy, r.logger, operation, sessionID, func() error {
		err := fn()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound = true
			return nil
		}
		return err
	})
	if err == nil && notFound {
		return gorm.ErrRecordNotFound
	}
	return err
}

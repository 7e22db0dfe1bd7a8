package repository

import (
	"academix_backend/internal/model"
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB          *gorm.DB
	Redis       *redis.Client
	AutosaveTTL time.Duration
}

func NewAttemptRepository(db *gorm.DB, rdb *redis.Client) *AttemptRepository {
	return &AttemptRepository{
		DB:          db,
		Redis:       rdb,
		AutosaveTTL: 4 * time.Hour,
	}
}

func (r *AttemptRepository) Create(attempt *model.AttemptSession) error {
	return r.DB.Create(attempt).Error
}

func (r *AttemptRepository) FindByID(id string) (*model.AttemptSession, error) {
	var attempt model.AttemptSession
	err := r.DB.Where("id = ?", id).First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) FindByStudentAndExam(studentID, examID uint) (*model.AttemptSession, error) {
	var attempt model.AttemptSession
	err := r.DB.Where("student_id = ? AND exam_id = ?", studentID, examID).First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// SaveAnswers persists the ledger snapshot and mirrors it into the redis
// autosave cache so a reloaded session sees its latest answers even if the
// row write was the one that got lost in a crash.
func (r *AttemptRepository) SaveAnswers(ctx context.Context, attempt *model.AttemptSession) error {
	err := r.DB.Model(&model.AttemptSession{}).
		Where("id = ? AND status = ?", attempt.ID, model.AttemptInProgress).
		Update("answers", attempt.Answers).Error
	if err != nil {
		return err
	}
	if r.Redis != nil {
		r.Redis.Set(ctx, autosaveKey(attempt.ID), []byte(attempt.Answers), r.AutosaveTTL)
	}
	return nil
}

// CachedAnswers returns the autosaved ledger for an attempt, or nil when the
// cache has nothing newer to offer.
func (r *AttemptRepository) CachedAnswers(ctx context.Context, attemptID string) map[uint]int {
	if r.Redis == nil {
		return nil
	}
	data, err := r.Redis.Get(ctx, autosaveKey(attemptID)).Bytes()
	if err != nil {
		return nil
	}
	answers := make(map[uint]int)
	if json.Unmarshal(data, &answers) != nil {
		return nil
	}
	return answers
}

func (r *AttemptRepository) DropCachedAnswers(ctx context.Context, attemptID string) {
	if r.Redis != nil {
		r.Redis.Del(ctx, autosaveKey(attemptID))
	}
}

// ConditionalTransition flips the attempt status only if it still holds the
// expected value. This single conditional write is the synchronization
// primitive for the submit race: it succeeds for exactly one caller.
func (r *AttemptRepository) ConditionalTransition(id string, from, to model.AttemptStatus) (bool, error) {
	res := r.DB.Model(&model.AttemptSession{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *AttemptRepository) MarkExpired(id string) error {
	return r.DB.Model(&model.AttemptSession{}).
		Where("id = ?", id).
		Update("expired", true).Error
}

// ListExpiredInProgress returns attempts whose deadline passed while still
// in progress, for the expiry sweep.
func (r *AttemptRepository) ListExpiredInProgress(now time.Time, limit int) ([]model.AttemptSession, error) {
	var attempts []model.AttemptSession
	err := r.DB.
		Where("status = ? AND deadline < ?", model.AttemptInProgress, now).
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

// AbandonByExam terminates every unfinished attempt of a cancelled exam and
// returns the affected sessions so callers can notify their owners.
func (r *AttemptRepository) AbandonByExam(examID uint) ([]model.AttemptSession, error) {
	var attempts []model.AttemptSession
	err := r.DB.
		Where("exam_id = ? AND status IN ?", examID, []model.AttemptStatus{model.AttemptInProgress, model.AttemptSubmitting}).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return attempts, nil
	}
	err = r.DB.Model(&model.AttemptSession{}).
		Where("exam_id = ? AND status IN ?", examID, []model.AttemptStatus{model.AttemptInProgress, model.AttemptSubmitting}).
		Update("status", model.AttemptAbandoned).Error
	return attempts, err
}

func (r *AttemptRepository) CountByExam(examID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.AttemptSession{}).Where("exam_id = ?", examID).Count(&count).Error
	return count, err
}

func autosaveKey(attemptID string) string {
	return "attempt:answers:" + attemptID
}

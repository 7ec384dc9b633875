package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AryanDesh/video-progress-tracker/internal/models"
)

type progressRepository struct {
	db *sql.DB
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db *sql.DB) *progressRepository {
	return &progressRepository{
		db: db,
	}
}

// Get retrieves the progress record for a (video, user) pair.
// Returns nil without an error when no record exists.
func (r *progressRepository) Get(ctx context.Context, videoID, userID string) (*models.ProgressRecord, error) {
	query := `
		SELECT checkpoints, quizzes, updated_at
		FROM video_progress
		WHERE video_id = ? AND user_id = ?
	`

	var (
		checkpointsJSON []byte
		quizzesJSON     []byte
		updatedAt       time.Time
	)
	err := r.db.QueryRowContext(ctx, query, videoID, userID).Scan(&checkpointsJSON, &quizzesJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress record: %w", err)
	}

	record := &models.ProgressRecord{
		VideoID:   videoID,
		UserID:    userID,
		UpdatedAt: &updatedAt,
	}
	if err := json.Unmarshal(checkpointsJSON, &record.Checkpoints); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoints: %w", err)
	}
	if err := json.Unmarshal(quizzesJSON, &record.Quizzes); err != nil {
		return nil, fmt.Errorf("failed to decode quizzes: %w", err)
	}

	return record, nil
}

// Upsert creates or replaces the progress record for its (video, user) pair
func (r *progressRepository) Upsert(ctx context.Context, record *models.ProgressRecord) error {
	checkpointsJSON, err := json.Marshal(record.Checkpoints)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoints: %w", err)
	}
	quizzesJSON, err := json.Marshal(record.Quizzes)
	if err != nil {
		return fmt.Errorf("failed to encode quizzes: %w", err)
	}

	query := `
		INSERT INTO video_progress (video_id, user_id, checkpoints, quizzes, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			checkpoints = VALUES(checkpoints),
			quizzes = VALUES(quizzes),
			updated_at = VALUES(updated_at)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.VideoID,
		record.UserID,
		checkpointsJSON,
		quizzesJSON,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert progress record: %w", err)
	}

	return nil
}

// Delete removes the progress record for a (video, user) pair.
// Deleting a non-existent record is not an error.
func (r *progressRepository) Delete(ctx context.Context, videoID, userID string) error {
	query := `
		DELETE FROM video_progress
		WHERE video_id = ? AND user_id = ?
	`

	_, err := r.db.ExecContext(ctx, query, videoID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete progress record: %w", err)
	}

	return nil
}

// ListByUser retrieves all progress records for a user, newest-updated first
func (r *progressRepository) ListByUser(ctx context.Context, userID string) ([]models.ProgressRecord, error) {
	query := `
		SELECT video_id, checkpoints, quizzes, updated_at
		FROM video_progress
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress records: %w", err)
	}
	defer rows.Close()

	records := make([]models.ProgressRecord, 0)
	for rows.Next() {
		var (
			record          models.ProgressRecord
			checkpointsJSON []byte
			quizzesJSON     []byte
			updatedAt       time.Time
		)
		if err := rows.Scan(&record.VideoID, &checkpointsJSON, &quizzesJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress record: %w", err)
		}
		if err := json.Unmarshal(checkpointsJSON, &record.Checkpoints); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoints: %w", err)
		}
		if err := json.Unmarshal(quizzesJSON, &record.Quizzes); err != nil {
			return nil, fmt.Errorf("failed to decode quizzes: %w", err)
		}
		record.UserID = userID
		record.UpdatedAt = &updatedAt
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate progress records: %w", err)
	}

	return records, nil
}

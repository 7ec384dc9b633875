package services

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/AryanDesh/video-progress-tracker/internal/models"
)

// completionThreshold is the checkpoint-completion ratio above which a video counts as completed
const completionThreshold = 0.8

// ProgressRepository defines methods for progress record data access
type ProgressRepository interface {
	// Get retrieves the progress record for a (video, user) pair
	//
	// "ctx" is the context for the request.
	// "videoID" is the ID of the video.
	// "userID" is the ID of the user.
	//
	// Returns nil without an error when no record exists.
	Get(ctx context.Context, videoID, userID string) (*models.ProgressRecord, error)
	// Upsert creates or replaces the progress record for its (video, user) pair
	//
	// "ctx" is the context for the request.
	// "record" is the merged record to persist.
	//
	// Returns an error if any.
	Upsert(ctx context.Context, record *models.ProgressRecord) error
	// Delete removes the progress record for a (video, user) pair
	//
	// "ctx" is the context for the request.
	// "videoID" is the ID of the video.
	// "userID" is the ID of the user.
	//
	// Deleting a non-existent record is not an error.
	Delete(ctx context.Context, videoID, userID string) error
	// ListByUser retrieves all progress records for a user, newest-updated first
	//
	// "ctx" is the context for the request.
	// "userID" is the ID of the user.
	//
	// Returns an empty slice when the user has no records.
	ListByUser(ctx context.Context, userID string) ([]models.ProgressRecord, error)
}

type progressService struct {
	repo ProgressRepository
	now  func() time.Time

	// locks serializes the read-check-merge-write sequence per (video, user) key.
	// Writers for different keys proceed independently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProgressService creates a new progress service
func NewProgressService(repo ProgressRepository) *progressService {
	return &progressService{
		repo:  repo,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing writes for a (video, user) pair
func (s *progressService) keyLock(videoID, userID string) *sync.Mutex {
	key := videoID + "\x00" + userID
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// GetProgress retrieves stored progress for a (video, user) pair.
// A never-saved pair yields the empty record, not an error.
func (s *progressService) GetProgress(ctx context.Context, videoID, userID string) (*models.ProgressRecord, error) {
	if videoID == "" {
		return nil, invalidInput("videoId is required")
	}
	if userID == "" {
		return nil, invalidInput("userId is required")
	}

	record, err := s.repo.Get(ctx, videoID, userID)
	if err != nil {
		return nil, storageUnavailable(err)
	}
	if record == nil {
		return models.EmptyProgressRecord(), nil
	}

	return record, nil
}

// SaveProgress validates an incoming snapshot, rejects regressions, merges it
// against the stored record and persists the result atomically.
//
// The merge is a pointwise boolean OR over the union of index ranges, so
// repeated or duplicate client saves are idempotent. Quiz answers only ever
// upgrade to true; an incoming false carries no information and is dropped.
func (s *progressService) SaveProgress(ctx context.Context, videoID, userID string, incoming *models.SaveProgressRequest) (*models.ProgressRecord, *models.ProgressStats, error) {
	if videoID == "" {
		return nil, nil, invalidInput("videoId is required")
	}
	if userID == "" {
		return nil, nil, invalidInput("userId is required")
	}

	checkpoints, quizzes, err := validateIncoming(incoming)
	if err != nil {
		return nil, nil, err
	}

	lock := s.keyLock(videoID, userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.Get(ctx, videoID, userID)
	if err != nil {
		return nil, nil, storageUnavailable(err)
	}
	if existing == nil {
		existing = models.EmptyProgressRecord()
	}

	// Regression check before any merge: an index absent from the incoming
	// vector counts as false, so a shorter vector cannot erase credit either.
	for i, done := range existing.Checkpoints {
		if done && !checkpoints.At(i) {
			return nil, nil, regressionRejected(i)
		}
	}

	merged := mergeRecords(existing, checkpoints, quizzes)
	merged.VideoID = videoID
	merged.UserID = userID
	updatedAt := s.now().UTC()
	merged.UpdatedAt = &updatedAt

	if err := s.repo.Upsert(ctx, merged); err != nil {
		return nil, nil, storageUnavailable(err)
	}

	return merged, ComputeStats(merged.Checkpoints), nil
}

// SaveCheckpoints merges a bare checkpoint vector, the shape the playback
// tracker sends on its debounced saves
func (s *progressService) SaveCheckpoints(ctx context.Context, videoID, userID string, checkpoints models.CheckpointVector) error {
	incoming := &models.SaveProgressRequest{Checkpoints: make([]any, len(checkpoints))}
	for i, done := range checkpoints {
		incoming.Checkpoints[i] = done
	}

	_, _, err := s.SaveProgress(ctx, videoID, userID, incoming)
	return err
}

// ResetProgress deletes the record for a (video, user) pair; idempotent
func (s *progressService) ResetProgress(ctx context.Context, videoID, userID string) error {
	if videoID == "" {
		return invalidInput("videoId is required")
	}
	if userID == "" {
		return invalidInput("userId is required")
	}

	lock := s.keyLock(videoID, userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.Delete(ctx, videoID, userID); err != nil {
		return storageUnavailable(err)
	}
	return nil
}

// ListProgress retrieves all progress records for a user with derived stats,
// ordered by most-recently-updated first
func (s *progressService) ListProgress(ctx context.Context, userID string) ([]models.UserProgressItem, error) {
	if userID == "" {
		return nil, invalidInput("userId is required")
	}

	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageUnavailable(err)
	}

	items := make([]models.UserProgressItem, 0, len(records))
	for _, record := range records {
		items = append(items, models.UserProgressItem{
			VideoID:     record.VideoID,
			Checkpoints: record.Checkpoints,
			Quizzes:     record.Quizzes,
			UpdatedAt:   record.UpdatedAt,
			Stats:       ComputeStats(record.Checkpoints),
		})
	}

	return items, nil
}

// validateIncoming converts a loosely-decoded snapshot into typed values,
// producing a distinct InvalidInput reason for each malformed shape
func validateIncoming(incoming *models.SaveProgressRequest) (models.CheckpointVector, models.QuizMap, error) {
	if incoming == nil || incoming.Checkpoints == nil {
		return nil, nil, invalidInput("checkpoints must be an array of booleans")
	}

	checkpoints := make(models.CheckpointVector, len(incoming.Checkpoints))
	for i, v := range incoming.Checkpoints {
		flag, ok := v.(bool)
		if !ok {
			return nil, nil, invalidInput("checkpoints must be an array of booleans")
		}
		checkpoints[i] = flag
	}

	// Absent quizzes is a valid snapshot; only the shape is enforced here.
	quizzes := make(models.QuizMap, len(incoming.Quizzes))
	for key, v := range incoming.Quizzes {
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 {
			return nil, nil, invalidInput("quiz keys must be non-negative integers")
		}
		correct, ok := v.(bool)
		if !ok {
			return nil, nil, invalidInput("quiz values must be booleans")
		}
		quizzes[key] = correct
	}

	return checkpoints, quizzes, nil
}

// mergeRecords combines the existing record with a validated snapshot.
// Checkpoints are OR-ed over the union range; quiz trues are sticky.
func mergeRecords(existing *models.ProgressRecord, checkpoints models.CheckpointVector, quizzes models.QuizMap) *models.ProgressRecord {
	length := len(existing.Checkpoints)
	if len(checkpoints) > length {
		length = len(checkpoints)
	}

	mergedCheckpoints := make(models.CheckpointVector, length)
	for i := range mergedCheckpoints {
		mergedCheckpoints[i] = existing.Checkpoints.At(i) || checkpoints.At(i)
	}

	mergedQuizzes := make(models.QuizMap, len(existing.Quizzes)+len(quizzes))
	for key, correct := range existing.Quizzes {
		mergedQuizzes[key] = correct
	}
	for key, correct := range quizzes {
		if correct {
			mergedQuizzes[key] = true
		}
	}

	return &models.ProgressRecord{
		Checkpoints: mergedCheckpoints,
		Quizzes:     mergedQuizzes,
	}
}

// ComputeStats derives completion statistics from a checkpoint vector.
// The reported rate is a rounded integer percent, but the completed flag is
// computed from the unrounded ratio so 79.999% does not round up to completed.
func ComputeStats(checkpoints models.CheckpointVector) *models.ProgressStats {
	total := len(checkpoints)
	completed := checkpoints.CompletedCount()

	rate := 0
	isCompleted := false
	if total > 0 {
		ratio := float64(completed) / float64(total)
		rate = int(math.Round(ratio * 100))
		isCompleted = ratio >= completionThreshold
	}

	return &models.ProgressStats{
		TotalCheckpoints:     total,
		CompletedCheckpoints: completed,
		CompletionRate:       rate,
		IsCompleted:          isCompleted,
	}
}

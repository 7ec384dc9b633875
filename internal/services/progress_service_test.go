package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AryanDesh/video-progress-tracker/internal/models"
)

// mockProgressRepository is a mock implementation of ProgressRepository
type mockProgressRepository struct {
	records   map[string]*models.ProgressRecord
	getErr    error
	upsertErr error
	deleteErr error
	listErr   error

	upsertCalled bool
	deleteCalled bool
	listResult   []models.ProgressRecord
}

func newMockProgressRepository() *mockProgressRepository {
	return &mockProgressRepository{
		records: make(map[string]*models.ProgressRecord),
	}
}

func (m *mockProgressRepository) key(videoID, userID string) string {
	return videoID + "/" + userID
}

func (m *mockProgressRepository) Get(ctx context.Context, videoID, userID string) (*models.ProgressRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	record, ok := m.records[m.key(videoID, userID)]
	if !ok {
		return nil, nil
	}
	return record, nil
}

func (m *mockProgressRepository) Upsert(ctx context.Context, record *models.ProgressRecord) error {
	m.upsertCalled = true
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.records[m.key(record.VideoID, record.UserID)] = record
	return nil
}

func (m *mockProgressRepository) Delete(ctx context.Context, videoID, userID string) error {
	m.deleteCalled = true
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.records, m.key(videoID, userID))
	return nil
}

func (m *mockProgressRepository) ListByUser(ctx context.Context, userID string) ([]models.ProgressRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.listResult, nil
}

// seed stores an existing record for a (video, user) pair
func (m *mockProgressRepository) seed(videoID, userID string, checkpoints models.CheckpointVector, quizzes models.QuizMap) {
	m.records[m.key(videoID, userID)] = &models.ProgressRecord{
		VideoID:     videoID,
		UserID:      userID,
		Checkpoints: checkpoints,
		Quizzes:     quizzes,
	}
}

func TestNewProgressService(t *testing.T) {
	repo := newMockProgressRepository()

	svc := NewProgressService(repo)

	assert.NotNil(t, svc)
}

func TestProgressService_GetProgress(t *testing.T) {
	tests := []struct {
		name          string
		videoID       string
		userID        string
		setupRepo     func(*mockProgressRepository)
		expectedError ErrorCode
		expectedLen   int
	}{
		{
			name:    "success existing record",
			videoID: "video-1",
			userID:  "user-1",
			setupRepo: func(m *mockProgressRepository) {
				m.seed("video-1", "user-1", models.CheckpointVector{true, false}, models.QuizMap{"0": true})
			},
			expectedLen: 2,
		},
		{
			name:        "fresh session returns empty record not error",
			videoID:     "video-1",
			userID:      "user-1",
			setupRepo:   func(m *mockProgressRepository) {},
			expectedLen: 0,
		},
		{
			name:          "empty video id",
			videoID:       "",
			userID:        "user-1",
			setupRepo:     func(m *mockProgressRepository) {},
			expectedError: CodeInvalidInput,
		},
		{
			name:          "empty user id",
			videoID:       "video-1",
			userID:        "",
			setupRepo:     func(m *mockProgressRepository) {},
			expectedError: CodeInvalidInput,
		},
		{
			name:    "storage error",
			videoID: "video-1",
			userID:  "user-1",
			setupRepo: func(m *mockProgressRepository) {
				m.getErr = errors.New("connection refused")
			},
			expectedError: CodeStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockProgressRepository()
			tt.setupRepo(repo)
			svc := NewProgressService(repo)

			record, err := svc.GetProgress(context.Background(), tt.videoID, tt.userID)

			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Equal(t, tt.expectedError, CodeOf(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Len(t, record.Checkpoints, tt.expectedLen)
			assert.NotNil(t, record.Quizzes)
		})
	}
}

func TestProgressService_SaveProgress_Validation(t *testing.T) {
	tests := []struct {
		name     string
		videoID  string
		userID   string
		incoming *models.SaveProgressRequest
	}{
		{
			name:     "empty video id",
			videoID:  "",
			userID:   "user-1",
			incoming: &models.SaveProgressRequest{Checkpoints: []any{true}},
		},
		{
			name:     "empty user id",
			videoID:  "video-1",
			userID:   "",
			incoming: &models.SaveProgressRequest{Checkpoints: []any{true}},
		},
		{
			name:     "missing checkpoints",
			videoID:  "video-1",
			userID:   "user-1",
			incoming: &models.SaveProgressRequest{},
		},
		{
			name:     "non-boolean checkpoint entry",
			videoID:  "video-1",
			userID:   "user-1",
			incoming: &models.SaveProgressRequest{Checkpoints: []any{true, "yes"}},
		},
		{
			name:    "quiz key not an integer",
			videoID: "video-1",
			userID:  "user-1",
			incoming: &models.SaveProgressRequest{
				Checkpoints: []any{true},
				Quizzes:     map[string]any{"abc": true},
			},
		},
		{
			name:    "quiz key negative",
			videoID: "video-1",
			userID:  "user-1",
			incoming: &models.SaveProgressRequest{
				Checkpoints: []any{true},
				Quizzes:     map[string]any{"-1": true},
			},
		},
		{
			name:    "quiz key fractional",
			videoID: "video-1",
			userID:  "user-1",
			incoming: &models.SaveProgressRequest{
				Checkpoints: []any{true},
				Quizzes:     map[string]any{"1.5": true},
			},
		},
		{
			name:    "quiz value not boolean",
			videoID: "video-1",
			userID:  "user-1",
			incoming: &models.SaveProgressRequest{
				Checkpoints: []any{true},
				Quizzes:     map[string]any{"0": "correct"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockProgressRepository()
			svc := NewProgressService(repo)

			_, _, err := svc.SaveProgress(context.Background(), tt.videoID, tt.userID, tt.incoming)

			assert.Error(t, err)
			assert.Equal(t, CodeInvalidInput, CodeOf(err))
			assert.False(t, repo.upsertCalled, "nothing must be persisted on validation failure")
		})
	}
}

func TestProgressService_SaveProgress_Merge(t *testing.T) {
	tests := []struct {
		name                string
		existing            models.CheckpointVector
		existingQuizzes     models.QuizMap
		incoming            *models.SaveProgressRequest
		expectedCheckpoints models.CheckpointVector
		expectedQuizzes     models.QuizMap
		expectedStats       models.ProgressStats
	}{
		{
			name:                "first save creates record",
			incoming:            &models.SaveProgressRequest{Checkpoints: []any{true, false, false}},
			expectedCheckpoints: models.CheckpointVector{true, false, false},
			expectedQuizzes:     models.QuizMap{},
			expectedStats:       models.ProgressStats{TotalCheckpoints: 3, CompletedCheckpoints: 1, CompletionRate: 33, IsCompleted: false},
		},
		{
			name:                "pointwise OR over union range",
			existing:            models.CheckpointVector{true, false, false},
			incoming:            &models.SaveProgressRequest{Checkpoints: []any{false, true, false}},
			expectedCheckpoints: models.CheckpointVector{true, true, false},
			expectedQuizzes:     models.QuizMap{},
			expectedStats:       models.ProgressStats{TotalCheckpoints: 3, CompletedCheckpoints: 2, CompletionRate: 67, IsCompleted: false},
		},
		{
			name:                "longer incoming extends the vector",
			existing:            models.CheckpointVector{true, false},
			incoming:            &models.SaveProgressRequest{Checkpoints: []any{true, false, true, true}},
			expectedCheckpoints: models.CheckpointVector{true, false, true, true},
			expectedQuizzes:     models.QuizMap{},
			expectedStats:       models.ProgressStats{TotalCheckpoints: 4, CompletedCheckpoints: 3, CompletionRate: 75, IsCompleted: false},
		},
		{
			name:     "quiz trues are sticky and incoming false is dropped",
			existing: models.CheckpointVector{true},
			existingQuizzes: models.QuizMap{
				"0": true,
				"1": false,
			},
			incoming: &models.SaveProgressRequest{
				Checkpoints: []any{true},
				Quizzes:     map[string]any{"0": false, "1": true, "2": false, "3": true},
			},
			expectedCheckpoints: models.CheckpointVector{true},
			expectedQuizzes:     models.QuizMap{"0": true, "1": true, "3": true},
			expectedStats:       models.ProgressStats{TotalCheckpoints: 1, CompletedCheckpoints: 1, CompletionRate: 100, IsCompleted: true},
		},
		{
			name:                "exact completion threshold counts as completed",
			existing:            nil,
			incoming:            &models.SaveProgressRequest{Checkpoints: []any{true, true, true, true, false}},
			expectedCheckpoints: models.CheckpointVector{true, true, true, true, false},
			expectedQuizzes:     models.QuizMap{},
			expectedStats:       models.ProgressStats{TotalCheckpoints: 5, CompletedCheckpoints: 4, CompletionRate: 80, IsCompleted: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockProgressRepository()
			if tt.existing != nil {
				quizzes := tt.existingQuizzes
				if quizzes == nil {
					quizzes = models.QuizMap{}
				}
				repo.seed("video-1", "user-1", tt.existing, quizzes)
			}
			svc := NewProgressService(repo)

			record, stats, err := svc.SaveProgress(context.Background(), "video-1", "user-1", tt.incoming)

			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, tt.expectedCheckpoints, record.Checkpoints)
			assert.Equal(t, tt.expectedQuizzes, record.Quizzes)
			assert.Equal(t, tt.expectedStats, *stats)
			assert.NotNil(t, record.UpdatedAt)

			// The merged record is what gets persisted
			stored, err := repo.Get(context.Background(), "video-1", "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCheckpoints, stored.Checkpoints)
		})
	}
}

func TestProgressService_SaveProgress_RegressionRejected(t *testing.T) {
	tests := []struct {
		name     string
		existing models.CheckpointVector
		incoming []any
	}{
		{
			name:     "explicit false over completed checkpoint",
			existing: models.CheckpointVector{true, false},
			incoming: []any{false, true},
		},
		{
			name:     "shorter incoming treated as false",
			existing: models.CheckpointVector{false, false, true},
			incoming: []any{true, true},
		},
		{
			name:     "empty incoming over completed checkpoint",
			existing: models.CheckpointVector{true},
			incoming: []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockProgressRepository()
			repo.seed("video-1", "user-1", tt.existing, models.QuizMap{})
			svc := NewProgressService(repo)

			_, _, err := svc.SaveProgress(context.Background(), "video-1", "user-1",
				&models.SaveProgressRequest{Checkpoints: tt.incoming})

			assert.Error(t, err)
			assert.Equal(t, CodeRegressionRejected, CodeOf(err))
			assert.False(t, repo.upsertCalled, "rejected save must not persist anything")

			// Stored record remains untouched
			stored, getErr := repo.Get(context.Background(), "video-1", "user-1")
			require.NoError(t, getErr)
			assert.Equal(t, tt.existing, stored.Checkpoints)
		})
	}
}

func TestProgressService_SaveProgress_Monotonicity(t *testing.T) {
	// merge(existing, incoming).checkpoints[i] >= existing.checkpoints[i] for every i
	repo := newMockProgressRepository()
	repo.seed("video-1", "user-1", models.CheckpointVector{true, false, true, false}, models.QuizMap{})
	svc := NewProgressService(repo)

	record, _, err := svc.SaveProgress(context.Background(), "video-1", "user-1",
		&models.SaveProgressRequest{Checkpoints: []any{true, true, true, false}})
	require.NoError(t, err)

	existing := models.CheckpointVector{true, false, true, false}
	for i, done := range existing {
		if done {
			assert.True(t, record.Checkpoints[i], "checkpoint %d regressed", i)
		}
	}
}

func TestProgressService_SaveProgress_Idempotence(t *testing.T) {
	// merge(merge(existing, x), x) == merge(existing, x)
	repo := newMockProgressRepository()
	repo.seed("video-1", "user-1", models.CheckpointVector{true, false, false}, models.QuizMap{"0": true})
	svc := NewProgressService(repo)

	incoming := func() *models.SaveProgressRequest {
		return &models.SaveProgressRequest{
			Checkpoints: []any{true, true, false},
			Quizzes:     map[string]any{"1": true},
		}
	}

	first, firstStats, err := svc.SaveProgress(context.Background(), "video-1", "user-1", incoming())
	require.NoError(t, err)

	second, secondStats, err := svc.SaveProgress(context.Background(), "video-1", "user-1", incoming())
	require.NoError(t, err)

	assert.Equal(t, first.Checkpoints, second.Checkpoints)
	assert.Equal(t, first.Quizzes, second.Quizzes)
	assert.Equal(t, firstStats, secondStats)
}

func TestProgressService_SaveProgress_CommutativityInEffect(t *testing.T) {
	// Applying a then b yields the same checkpoints as applying the
	// pointwise OR of a and b directly.
	a := []any{true, false, true, false}
	b := []any{false, true, false, false}
	orOfBoth := []any{true, true, true, false}

	sequential := newMockProgressRepository()
	svcSeq := NewProgressService(sequential)
	_, _, err := svcSeq.SaveProgress(context.Background(), "video-1", "user-1", &models.SaveProgressRequest{Checkpoints: a})
	require.NoError(t, err)
	seqRecord, _, err := svcSeq.SaveProgress(context.Background(), "video-1", "user-1", &models.SaveProgressRequest{Checkpoints: b})
	require.NoError(t, err)

	direct := newMockProgressRepository()
	svcDirect := NewProgressService(direct)
	directRecord, _, err := svcDirect.SaveProgress(context.Background(), "video-1", "user-1", &models.SaveProgressRequest{Checkpoints: orOfBoth})
	require.NoError(t, err)

	assert.Equal(t, directRecord.Checkpoints, seqRecord.Checkpoints)
}

func TestProgressService_SaveCheckpoints(t *testing.T) {
	repo := newMockProgressRepository()
	repo.seed("video-1", "user-1", models.CheckpointVector{true, false, false}, models.QuizMap{"0": true})
	svc := NewProgressService(repo)

	err := svc.SaveCheckpoints(context.Background(), "video-1", "user-1",
		models.CheckpointVector{true, true, false})

	require.NoError(t, err)
	stored, err := repo.Get(context.Background(), "video-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.CheckpointVector{true, true, false}, stored.Checkpoints)
	assert.Equal(t, models.QuizMap{"0": true}, stored.Quizzes, "quiz answers survive checkpoint-only saves")
}

func TestProgressService_SaveProgress_StorageError(t *testing.T) {
	repo := newMockProgressRepository()
	repo.upsertErr = errors.New("deadlock")
	svc := NewProgressService(repo)

	_, _, err := svc.SaveProgress(context.Background(), "video-1", "user-1",
		&models.SaveProgressRequest{Checkpoints: []any{true}})

	assert.Error(t, err)
	assert.Equal(t, CodeStorageUnavailable, CodeOf(err))
}

func TestProgressService_ResetProgress(t *testing.T) {
	tests := []struct {
		name          string
		videoID       string
		userID        string
		setupRepo     func(*mockProgressRepository)
		expectedError ErrorCode
	}{
		{
			name:    "success deletes record",
			videoID: "video-1",
			userID:  "user-1",
			setupRepo: func(m *mockProgressRepository) {
				m.seed("video-1", "user-1", models.CheckpointVector{true}, models.QuizMap{})
			},
		},
		{
			name:      "deleting non-existent record succeeds",
			videoID:   "video-1",
			userID:    "user-1",
			setupRepo: func(m *mockProgressRepository) {},
		},
		{
			name:          "empty video id",
			videoID:       "",
			userID:        "user-1",
			setupRepo:     func(m *mockProgressRepository) {},
			expectedError: CodeInvalidInput,
		},
		{
			name:    "storage error",
			videoID: "video-1",
			userID:  "user-1",
			setupRepo: func(m *mockProgressRepository) {
				m.deleteErr = errors.New("connection refused")
			},
			expectedError: CodeStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockProgressRepository()
			tt.setupRepo(repo)
			svc := NewProgressService(repo)

			err := svc.ResetProgress(context.Background(), tt.videoID, tt.userID)

			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Equal(t, tt.expectedError, CodeOf(err))
				return
			}
			require.NoError(t, err)

			record, getErr := repo.Get(context.Background(), tt.videoID, tt.userID)
			require.NoError(t, getErr)
			assert.Nil(t, record)
		})
	}
}

func TestProgressService_ListProgress(t *testing.T) {
	repo := newMockProgressRepository()
	repo.listResult = []models.ProgressRecord{
		{VideoID: "video-2", Checkpoints: models.CheckpointVector{true, true}, Quizzes: models.QuizMap{}},
		{VideoID: "video-1", Checkpoints: models.CheckpointVector{true, false, false, false}, Quizzes: models.QuizMap{"0": true}},
	}
	svc := NewProgressService(repo)

	items, err := svc.ListProgress(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "video-2", items[0].VideoID)
	assert.Equal(t, 100, items[0].Stats.CompletionRate)
	assert.True(t, items[0].Stats.IsCompleted)
	assert.Equal(t, "video-1", items[1].VideoID)
	assert.Equal(t, 25, items[1].Stats.CompletionRate)
	assert.False(t, items[1].Stats.IsCompleted)
}

func TestProgressService_ListProgress_EmptyUserID(t *testing.T) {
	svc := NewProgressService(newMockProgressRepository())

	_, err := svc.ListProgress(context.Background(), "")

	assert.Error(t, err)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name        string
		checkpoints models.CheckpointVector
		expected    models.ProgressStats
	}{
		{
			name:        "empty vector",
			checkpoints: models.CheckpointVector{},
			expected:    models.ProgressStats{TotalCheckpoints: 0, CompletedCheckpoints: 0, CompletionRate: 0, IsCompleted: false},
		},
		{
			name:        "exactly at threshold",
			checkpoints: models.CheckpointVector{true, true, true, true, false},
			expected:    models.ProgressStats{TotalCheckpoints: 5, CompletedCheckpoints: 4, CompletionRate: 80, IsCompleted: true},
		},
		{
			name:        "all completed",
			checkpoints: models.CheckpointVector{true, true},
			expected:    models.ProgressStats{TotalCheckpoints: 2, CompletedCheckpoints: 2, CompletionRate: 100, IsCompleted: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := ComputeStats(tt.checkpoints)

			assert.Equal(t, tt.expected, *stats)
		})
	}
}

func TestComputeStats_JustBelowThreshold(t *testing.T) {
	// 799 of 1000 is 79.9%: the rounded rate reports 80 but the completed
	// flag uses the unrounded ratio and stays false.
	checkpoints := make(models.CheckpointVector, 1000)
	for i := 0; i < 799; i++ {
		checkpoints[i] = true
	}

	stats := ComputeStats(checkpoints)

	assert.Equal(t, 80, stats.CompletionRate)
	assert.False(t, stats.IsCompleted)
}

package models

import "time"

// CheckpointVector is an ordered sequence of per-segment completion flags.
// Index i covers the video segment [i*interval, (i+1)*interval).
type CheckpointVector []bool

// CompletedCount returns the number of completed checkpoints
func (v CheckpointVector) CompletedCount() int {
	count := 0
	for _, done := range v {
		if done {
			count++
		}
	}
	return count
}

// At returns the flag at index i, or false when i is out of range
func (v CheckpointVector) At(i int) bool {
	if i < 0 || i >= len(v) {
		return false
	}
	return v[i]
}

// QuizMap maps a quiz item key (a non-negative integer encoded as a string)
// to whether the item was answered correctly
type QuizMap map[string]bool

// ProgressRecord represents stored viewing progress for a (video, user) pair
type ProgressRecord struct {
	VideoID     string           `json:"videoId,omitempty"`
	UserID      string           `json:"userId,omitempty"`
	Checkpoints CheckpointVector `json:"checkpoints"`
	Quizzes     QuizMap          `json:"quizzes"`
	UpdatedAt   *time.Time       `json:"updatedAt,omitempty"`
}

// EmptyProgressRecord returns the fresh-session shape for a never-saved pair
func EmptyProgressRecord() *ProgressRecord {
	return &ProgressRecord{
		Checkpoints: CheckpointVector{},
		Quizzes:     QuizMap{},
	}
}

// ProgressStats represents derived completion statistics for a record
type ProgressStats struct {
	TotalCheckpoints     int  `json:"totalCheckpoints"`
	CompletedCheckpoints int  `json:"completedCheckpoints"`
	CompletionRate       int  `json:"completionRate"`
	IsCompleted          bool `json:"isCompleted"`
}

// SaveProgressRequest represents an incoming progress snapshot from a client.
// Checkpoints and quiz values are decoded loosely so the service can reject
// malformed shapes with a specific reason instead of a generic JSON error.
type SaveProgressRequest struct {
	Checkpoints []any          `json:"checkpoints"`
	Quizzes     map[string]any `json:"quizzes,omitempty"`
}

// SaveProgressResponse represents a successful save with the merged record and stats
type SaveProgressResponse struct {
	Success  bool            `json:"success"`
	Progress *ProgressRecord `json:"progress"`
	Stats    *ProgressStats  `json:"stats"`
}

// UserProgressItem represents one video's progress in a user's progress list
type UserProgressItem struct {
	VideoID     string           `json:"videoId"`
	Checkpoints CheckpointVector `json:"checkpoints"`
	Quizzes     QuizMap          `json:"quizzes"`
	UpdatedAt   *time.Time       `json:"updatedAt,omitempty"`
	Stats       *ProgressStats   `json:"stats"`
}

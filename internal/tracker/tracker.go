// Package tracker converts a stream of continuous playback-time samples into
// discrete checkpoint-completion events, with debounced saves to the progress
// store. One Tracker serves one playback session and is driven from a single
// logical timeline; its transition methods must not be called concurrently.
package tracker

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/AryanDesh/video-progress-tracker/internal/models"
)

const (
	// DefaultCheckpointInterval is the length of one video segment
	DefaultCheckpointInterval = 10 * time.Second
	// DefaultSaveDebounce is the minimum window between outbound saves
	DefaultSaveDebounce = 5 * time.Second

	// completionThreshold is the checkpoint ratio at which the session
	// counts as complete and the completion callback fires
	completionThreshold = 0.8
)

// ProgressSaver persists a checkpoint snapshot for a (video, user) pair
type ProgressSaver interface {
	// SaveCheckpoints sends the full current checkpoint vector to the store.
	//
	// "ctx" is the context for the request.
	// "videoID" is the ID of the video.
	// "userID" is the ID of the user.
	// "checkpoints" is the full checkpoint vector at the time of the save.
	//
	// Returns an error if any.
	SaveCheckpoints(ctx context.Context, videoID, userID string, checkpoints models.CheckpointVector) error
}

// Options configures a Tracker
type Options struct {
	// CheckpointInterval is the segment length; DefaultCheckpointInterval when zero
	CheckpointInterval time.Duration
	// SaveDebounce is the minimum window between saves; DefaultSaveDebounce when zero
	SaveDebounce time.Duration
	// OnCompleted fires once per session when the completion threshold is crossed
	OnCompleted func()
	// Now overrides the debounce clock; time.Now when nil
	Now func() time.Time
}

// Tracker accumulates watched time per video segment and emits one-way
// checkpoint-completion transitions
type Tracker struct {
	videoID string
	userID  string
	saver   ProgressSaver
	logger  *zap.Logger

	interval    float64 // segment length in seconds
	debounce    time.Duration
	onCompleted func()
	now         func() time.Time

	// Samples are ignored until the media resource reports its duration
	// and the checkpoint vector is sized.
	checkpoints models.CheckpointVector
	accumulated []float64
	prevTime    float64
	lastSave    time.Time
	completed   bool
	closed      bool
}

// New creates a tracker for one playback session
func New(videoID, userID string, saver ProgressSaver, logger *zap.Logger, opts Options) *Tracker {
	interval := opts.CheckpointInterval
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	debounce := opts.SaveDebounce
	if debounce <= 0 {
		debounce = DefaultSaveDebounce
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Tracker{
		videoID:     videoID,
		userID:      userID,
		saver:       saver,
		logger:      logger,
		interval:    interval.Seconds(),
		debounce:    debounce,
		onCompleted: opts.OnCompleted,
		now:         now,
	}
}

// SetDuration sizes the checkpoint vector once the media resource reports
// its duration in seconds. The size is fixed for the session; later calls
// are ignored.
func (t *Tracker) SetDuration(duration float64) {
	if t.checkpoints != nil || duration <= 0 {
		return
	}

	segments := int(math.Ceil(duration / t.interval))
	t.checkpoints = make(models.CheckpointVector, segments)
	t.accumulated = make([]float64, segments)
}

// OnTimeUpdate processes one (currentTime, playbackRate) sample.
//
// A negative delta (backward seek) contributes zero watch time for the step
// but never reduces a segment's accumulated credit; accumulation is monotonic
// so a completed checkpoint can never lose the credit that completed it.
func (t *Tracker) OnTimeUpdate(currentTime, playbackRate float64) {
	if t.closed || t.checkpoints == nil {
		return
	}

	delta := (currentTime - t.prevTime) * playbackRate
	start := t.prevTime
	t.prevTime = currentTime
	if delta <= 0 {
		return
	}

	// Credit goes to the segment where the watched span began, so a sample
	// landing exactly on a segment boundary completes the segment it just
	// finished rather than starting the next one with phantom credit.
	idx := int(math.Floor(start / t.interval))
	if idx < 0 || idx >= len(t.checkpoints) {
		return
	}
	t.accumulated[idx] += delta

	if t.accumulated[idx] >= t.interval && !t.checkpoints[idx] {
		t.checkpoints[idx] = true
		t.onCheckpointCompleted()
	}
}

// Checkpoints returns a copy of the current checkpoint vector
func (t *Tracker) Checkpoints() models.CheckpointVector {
	snapshot := make(models.CheckpointVector, len(t.checkpoints))
	copy(snapshot, t.checkpoints)
	return snapshot
}

// Close flushes the final state best-effort and stops further sample processing
func (t *Tracker) Close() {
	if t.closed {
		return
	}
	t.closed = true

	if t.checkpoints != nil && t.checkpoints.CompletedCount() > 0 {
		t.save()
	}
}

// onCheckpointCompleted runs after a new true transition: it fires the
// completion callback the instant the threshold is crossed and triggers a
// debounced save
func (t *Tracker) onCheckpointCompleted() {
	ratio := float64(t.checkpoints.CompletedCount()) / float64(len(t.checkpoints))
	if !t.completed && ratio >= completionThreshold {
		t.completed = true
		if t.onCompleted != nil {
			t.onCompleted()
		}
	}

	// Saves are triggered only by new-checkpoint events, never by plain
	// samples, which bounds write volume to the store.
	if t.now().Sub(t.lastSave) > t.debounce {
		t.lastSave = t.now()
		t.save()
	}
}

// save sends the current vector to the store fire-and-forget. A failed save
// is logged and does not roll back local state; the next qualifying event
// resends a by-then-larger snapshot.
func (t *Tracker) save() {
	snapshot := t.Checkpoints()
	go func() {
		if err := t.saver.SaveCheckpoints(context.Background(), t.videoID, t.userID, snapshot); err != nil {
			t.logger.Warn("failed to save progress snapshot",
				zap.String("video_id", t.videoID),
				zap.String("user_id", t.userID),
				zap.Error(err),
			)
		}
	}()
}

package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of a generation job.
// Values include JobStatusPending, JobStatusFirstSuccess, JobStatusCompleted,
// and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusFirstSuccess JobStatus = "first_success"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// Rank returns the ordering rank of a status. Transitions must never decrease
// the rank; completed and failed are terminal and share the highest rank.
// Parameters: none.
// Returns:
//   - int: 0 for pending, 1 for first_success, 2 for terminal states.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusFirstSuccess:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return 0
	}
}

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// NormalizedTrack is one generated audio asset in the application's internal
// shape, derived from the provider payload. It is embedded in
// GenerationJob.Tracks and never persisted as its own row.
type NormalizedTrack struct {
	ID             string  `json:"id"`
	AudioURL       string  `json:"audio_url"`
	StreamAudioURL string  `json:"stream_audio_url"`
	ImageURL       string  `json:"image_url"`
	Duration       float64 `json:"duration"`
	Title          string  `json:"title"`
	Tags           string  `json:"tags"`
	ModelName      string  `json:"model_name"`
	Prompt         string  `json:"prompt"`
	CreatedAt      string  `json:"created_at"`

	// Archive fields are filled once the asset has been re-hosted.
	ArchiveAudioURL string `json:"archive_audio_url,omitempty"`
	ArchiveImageURL string `json:"archive_image_url,omitempty"`
	ImageWidth      int    `json:"image_width,omitempty"`
	ImageHeight     int    `json:"image_height,omitempty"`
}

// TrackList is a custom type for storing normalized tracks as JSON in a text
// column. The list is always replaced wholesale on update.
type TrackList []NormalizedTrack

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded representation of the list.
//   - error: non-nil if marshaling fails.
func (t TrackList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (t *TrackList) Scan(value interface{}) error {
	if value == nil {
		*t = TrackList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan TrackList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, t)
}

// GenerationJob represents one asynchronous music-generation request tracked
// by a provider-assigned task ID. Exactly one row exists per task ID.
type GenerationJob struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	TaskID       string    `gorm:"type:text;not null;uniqueIndex:idx_generation_jobs_task" json:"task_id"`
	UserID       string    `gorm:"type:text;not null;index:idx_generation_jobs_user" json:"user_id"`
	Status       JobStatus `gorm:"type:text;index:idx_generation_jobs_status;default:pending" json:"status"`
	Model        string    `gorm:"type:text" json:"model"`
	Prompt       string    `gorm:"type:text" json:"prompt"`
	Style        string    `gorm:"type:text" json:"style,omitempty"`
	Title        string    `gorm:"type:text" json:"title,omitempty"`
	Instrumental bool      `json:"instrumental"`
	Tracks       TrackList `gorm:"type:text" json:"tracks"`
	Archived     bool      `gorm:"default:false;index:idx_generation_jobs_archived" json:"archived"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for GenerationJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (GenerationJob) TableName() string {
	return "generation_jobs"
}

// services/common/models/file.go
package models

import (
	"path"
	"strings"
	"time"
)

// Status is the processing state of one downstream pipeline stage.
type Status string

const (
	StatusPending Status = "pending"
	StatusSkipped Status = "skipped"
)

// AudioFile is the metadata row registered for every uploaded recording.
// Status columns are written once at insert time; downstream services own
// every later transition.
type AudioFile struct {
	ID                string    `json:"id" db:"id"`
	DeviceID          string    `json:"device_id" db:"device_id"`
	RecordedAt        time.Time `json:"recorded_at" db:"recorded_at"`
	FilePath          string    `json:"file_path" db:"file_path"`
	LocalDate         string    `json:"local_date" db:"local_date"`
	TimeBlock         string    `json:"time_block" db:"time_block"`
	FileSizeBytes     int64     `json:"file_size_bytes" db:"file_size_bytes"`
	TranscriberStatus Status    `json:"transcriber_status" db:"transcriber_status"`
	BehaviorStatus    Status    `json:"behavior_status" db:"behavior_status"`
	EmotionStatus     Status    `json:"emotion_status" db:"emotion_status"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// SetInitialStatus applies the same status to every downstream stage.
func (f *AudioFile) SetInitialStatus(s Status) {
	f.TranscriberStatus = s
	f.BehaviorStatus = s
	f.EmotionStatus = s
}

// StoredObject describes live object store state attached to a listed record.
// Exists is nil when the store could not be asked.
type StoredObject struct {
	Exists       *bool      `json:"exists"`
	Size         *int64     `json:"size,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// AudioFileView is an AudioFile merged with the live object state.
type AudioFileView struct {
	AudioFile
	Object StoredObject `json:"object"`
}

const (
	ContentTypeWAV    = "audio/wav"
	ContentTypeJSON   = "application/json"
	ContentTypeBinary = "application/octet-stream"
)

// ContentTypeFor infers the content type of a stored object from its extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".wav":
		return ContentTypeWAV
	case ".json":
		return ContentTypeJSON
	default:
		return ContentTypeBinary
	}
}

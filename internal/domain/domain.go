package domain

import (
	"errors"
	"fmt"
	"time"
)

const (
	PlatformXiaoyuzhou = "xiaoyuzhou"
	PlatformApple      = "apple"
	PlatformUnknown    = "unknown"
)

const (
	TranscriptionQueued     = "queued"
	TranscriptionProcessing = "processing"
	TranscriptionCompleted  = "completed"
	TranscriptionError      = "error"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("invalid request")
	ErrUnsupportedPlatform = errors.New("unsupported podcast platform")
	ErrFetch               = errors.New("fetch failed")
	ErrNotFound            = errors.New("not found")
	ErrTranscription       = errors.New("transcription failed")
	ErrUpstream            = errors.New("upstream failure")
	ErrVersionConflict     = errors.New("version conflict")
	ErrSaveFailed          = errors.New("save failed after retries")
	ErrAlreadyParticipated = errors.New("already participated")
)

// PodcastMeta is the normalized episode metadata produced by the source parser.
type PodcastMeta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CoverImage  string `json:"coverImage"`
	AudioURL    string `json:"audioUrl"`
	Platform    string `json:"platform"`
	Duration    int    `json:"duration,omitempty"`
}

// TranscriptionJob mirrors a job on the speech-to-text service.
type TranscriptionJob struct {
	TranscriptID string `json:"transcriptId"`
	Status       string `json:"status"`
	Text         string `json:"text,omitempty"`
	Error        string `json:"error,omitempty"`
	Cached       bool   `json:"cached,omitempty"`
}

// Terminal reports whether polling should stop for the job.
func (j TranscriptionJob) Terminal() bool {
	return j.Status == TranscriptionCompleted || j.Status == TranscriptionError
}

// Err returns ErrTranscription wrapping the service message for a failed job,
// or nil for any other status.
func (j TranscriptionJob) Err() error {
	if j.Status != TranscriptionError {
		return nil
	}
	msg := j.Error
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("%w: %s", ErrTranscription, msg)
}

type ChatMessage struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Discussion is one visitor question with its answer, stored per episode slug.
type Discussion struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"visitorId"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

type PublishResult struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

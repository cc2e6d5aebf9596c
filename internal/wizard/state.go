// Package wizard drives the five step podcast note flow: a pure transition
// function over Session, an executor that performs the resulting effects, and
// device-local persistence so a flow can be resumed.
package wizard

import (
	"time"

	"podnote/internal/domain"
)

type Step int

const (
	StepURLInput Step = iota + 1
	StepConfirmMeta
	StepTranscribing
	StepNotesAndChat
	StepEditAndPublish
)

var stepTitles = map[Step]string{
	StepURLInput:       "Episode URL",
	StepConfirmMeta:    "Confirm episode",
	StepTranscribing:   "Transcribing",
	StepNotesAndChat:   "AI notes & chat",
	StepEditAndPublish: "Edit & publish",
}

func (s Step) String() string {
	if title, ok := stepTitles[s]; ok {
		return title
	}
	return "Unknown"
}

func (s Step) Valid() bool {
	return s >= StepURLInput && s <= StepEditAndPublish
}

// State is the persisted part of a wizard session.
type State struct {
	Step              Step                 `json:"step"`
	URL               string               `json:"url"`
	Meta              *domain.PodcastMeta  `json:"meta,omitempty"`
	TranscriptID      string               `json:"transcriptId"`
	Transcript        string               `json:"transcript"`
	Summary           string               `json:"summary"`
	EditTitle         string               `json:"editTitle"`
	EditSlug          string               `json:"editSlug"`
	EditTags          string               `json:"editTags"`
	ChatHistory       []domain.ChatMessage `json:"chatHistory"`
	DiscussionSummary string               `json:"discussionSummary,omitempty"`
	SavedAt           int64                `json:"savedAt"`
}

// StreamKind identifies which field a completion stream accumulates into.
type StreamKind int

const (
	StreamNone StreamKind = iota
	StreamSummary
	StreamChat
	StreamCondense
)

// Session is one wizard instance. Fields outside State live only as long as
// the process.
type Session struct {
	State

	Secret string
	Error  string
	Notice string

	Loading bool
	Polling bool
	Status  string
	// PollStarted anchors the elapsed counter and the max-wait check.
	PollStarted time.Time
	Elapsed     time.Duration

	Streaming StreamKind
	StreamSeq int
	Draft     string

	Preview       string
	PublishedURL  string
	PublishedSlug string
}

// NewSession returns a fresh session at step one.
func NewSession() Session {
	return Session{State: State{Step: StepURLInput}}
}

// MetaOrZero is the parsed metadata, or the zero value before parsing.
func (s Session) MetaOrZero() domain.PodcastMeta {
	if s.Meta == nil {
		return domain.PodcastMeta{}
	}
	return *s.Meta
}

// Busy reports whether a network action is in flight.
func (s Session) Busy() bool {
	return s.Loading || s.Streaming != StreamNone
}

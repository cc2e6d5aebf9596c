package wizard

import "podnote/internal/domain"

// Event is an input to the state machine, from the user or from a finished
// effect.
type Event interface{ isEvent() }

type Field int

const (
	FieldTitle Field = iota
	FieldSlug
	FieldTags
)

type (
	SecretEntered struct{ Secret string }
	URLSubmitted  struct{ URL string }
	MetaParsed    struct {
		Meta domain.PodcastMeta
		Err  error
	}
	TranscriptionRequested struct{}
	TranscriptionSubmitted struct {
		Job domain.TranscriptionJob
		Err error
	}
	StatusPolled struct {
		Job domain.TranscriptionJob
		Err error
	}
	ClockTicked         struct{}
	Cancelled           struct{}
	WentBack            struct{}
	WentNext            struct{}
	RegenerateRequested struct{}
	ChatSent            struct{ Text string }
	StreamChunk         struct {
		Seq  int
		Text string
	}
	StreamEnded struct {
		Seq int
		Err error
	}
	StreamAborted struct{}
	FieldEdited   struct {
		Field Field
		Value string
	}
	CondenseRequested struct{}
	PreviewRequested  struct{}
	ExportRequested   struct{ Path string }
	Exported          struct {
		Path string
		Err  error
	}
	PublishRequested struct{}
	Published        struct {
		Slug   string
		Result domain.PublishResult
		Err    error
	}
	RetryRequested struct{}
	ResetRequested struct{}
	Resumed        struct{}
	ErrorDismissed struct{}
)

func (SecretEntered) isEvent()          {}
func (URLSubmitted) isEvent()           {}
func (MetaParsed) isEvent()             {}
func (TranscriptionRequested) isEvent() {}
func (TranscriptionSubmitted) isEvent() {}
func (StatusPolled) isEvent()           {}
func (ClockTicked) isEvent()            {}
func (Cancelled) isEvent()              {}
func (WentBack) isEvent()               {}
func (WentNext) isEvent()               {}
func (RegenerateRequested) isEvent()    {}
func (ChatSent) isEvent()               {}
func (StreamChunk) isEvent()            {}
func (StreamEnded) isEvent()            {}
func (StreamAborted) isEvent()          {}
func (FieldEdited) isEvent()            {}
func (CondenseRequested) isEvent()      {}
func (PreviewRequested) isEvent()       {}
func (ExportRequested) isEvent()        {}
func (Exported) isEvent()               {}
func (PublishRequested) isEvent()       {}
func (Published) isEvent()              {}
func (RetryRequested) isEvent()         {}
func (ResetRequested) isEvent()         {}
func (Resumed) isEvent()                {}
func (ErrorDismissed) isEvent()         {}

// Effect is work the executor performs on behalf of a transition.
type Effect interface{ isEffect() }

type (
	ParseEffect  struct{ Secret, URL string }
	SubmitEffect struct{ Secret, AudioURL string }
	StartPolling struct{ Secret, TranscriptID string }
	StopPolling  struct{}
	StreamEffect struct {
		Seq      int
		Secret   string
		System   string
		Messages []domain.ChatMessage
	}
	CancelStream  struct{}
	PublishEffect struct {
		Secret  string
		Slug    string
		Content []byte
	}
	ExportEffect struct {
		Path    string
		Content []byte
	}
	PersistEffect struct{ State State }
	ClearEffect   struct{}
)

func (ParseEffect) isEffect()   {}
func (SubmitEffect) isEffect()  {}
func (StartPolling) isEffect()  {}
func (StopPolling) isEffect()   {}
func (StreamEffect) isEffect()  {}
func (CancelStream) isEffect()  {}
func (PublishEffect) isEffect() {}
func (ExportEffect) isEffect()  {}
func (PersistEffect) isEffect() {}
func (ClearEffect) isEffect()   {}

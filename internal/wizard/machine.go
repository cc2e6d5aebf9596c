package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"podnote/internal/domain"
	"podnote/internal/llm"
	"podnote/internal/notes"
)

// Machine holds the settings the transition function depends on.
type Machine struct {
	Category        string
	DefaultTags     string
	ChatMaxMessages int
	// PollMaxWait stops polling after this long. Zero polls until a terminal
	// status.
	PollMaxWait time.Duration
	NewID       func() string
}

func (m Machine) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

// Transition applies ev to s and returns the next session plus the effects to
// run. It performs no I/O.
func (m Machine) Transition(s Session, ev Event, now time.Time) (Session, []Effect) {
	prevStep := s.Step
	next, effects := m.apply(s, ev, now)

	switch {
	case next.Step >= StepConfirmMeta && persists(ev):
		next.SavedAt = now.UnixMilli()
		effects = append(effects, PersistEffect{State: cloneState(next.State)})
	case next.Step == StepURLInput && prevStep >= StepConfirmMeta && !hasClear(effects):
		effects = append(effects, ClearEffect{})
	}
	return next, effects
}

// Clock ticks and stream chunks are too frequent to persist individually;
// the surrounding start and end events carry the state.
func persists(ev Event) bool {
	switch ev.(type) {
	case ClockTicked, StreamChunk, ErrorDismissed, PreviewRequested:
		return false
	}
	return true
}

func hasClear(effects []Effect) bool {
	for _, e := range effects {
		if _, ok := e.(ClearEffect); ok {
			return true
		}
	}
	return false
}

func cloneState(st State) State {
	if st.Meta != nil {
		meta := *st.Meta
		st.Meta = &meta
	}
	st.ChatHistory = append([]domain.ChatMessage(nil), st.ChatHistory...)
	return st
}

func (m Machine) apply(s Session, ev Event, now time.Time) (Session, []Effect) {
	switch ev := ev.(type) {
	case SecretEntered:
		s.Secret = strings.TrimSpace(ev.Secret)
		if s.Secret == "" {
			return s, nil
		}
		s.Error = ""
		return m.resume(s, now)

	case Resumed:
		return m.resume(s, now)

	case ErrorDismissed:
		s.Error = ""
		s.Notice = ""
		return s, nil

	case URLSubmitted:
		if s.Step != StepURLInput || s.Loading {
			return s, nil
		}
		url := strings.TrimSpace(ev.URL)
		if url == "" {
			s.Error = "Enter a podcast episode URL."
			return s, nil
		}
		if s.Secret == "" {
			s.Error = "Enter the access password first."
			return s, nil
		}
		s.URL = url
		s.Loading = true
		s.Error = ""
		s.Notice = ""
		return s, []Effect{ParseEffect{Secret: s.Secret, URL: url}}

	case MetaParsed:
		if s.Step != StepURLInput || !s.Loading {
			return s, nil
		}
		s.Loading = false
		if ev.Err != nil {
			s = m.fail(s, "Could not read the episode", ev.Err)
			return s, nil
		}
		meta := ev.Meta
		s.Meta = &meta
		s.EditTitle = meta.Title
		s.EditSlug = notes.GenerateSlug(meta.Title, now)
		s.EditTags = m.DefaultTags
		s.Step = StepConfirmMeta
		return s, nil

	case TranscriptionRequested:
		return m.submit(s)

	case TranscriptionSubmitted:
		if (s.Step != StepConfirmMeta && s.Step != StepTranscribing) || !s.Loading {
			return s, nil
		}
		s.Loading = false
		if ev.Err != nil {
			s = m.fail(s, "Could not start transcription", ev.Err)
			return s, nil
		}
		s.Step = StepTranscribing
		s.TranscriptID = ev.Job.TranscriptID
		s.Status = ev.Job.Status
		if ev.Job.Cached {
			s.Notice = "Reusing an earlier transcription of this audio."
		}
		return m.startPolling(s, now)

	case StatusPolled:
		if s.Step != StepTranscribing || !s.Polling {
			return s, nil
		}
		if ev.Err != nil || (ev.Job.TranscriptID != "" && ev.Job.TranscriptID != s.TranscriptID) {
			// Transient failures are retried on the next tick.
			return s, nil
		}
		s.Status = ev.Job.Status
		switch ev.Job.Status {
		case domain.TranscriptionCompleted:
			s.Polling = false
			s.Transcript = ev.Job.Text
			s.Step = StepNotesAndChat
			s.Notice = ""
			if s.Summary != "" {
				return s, []Effect{StopPolling{}}
			}
			next, effects := m.startSummary(s)
			return next, append([]Effect{StopPolling{}}, effects...)
		case domain.TranscriptionError:
			s.Polling = false
			return m.fail(s, "Transcription failed", ev.Job.Err()), []Effect{StopPolling{}}
		}
		return s, nil

	case ClockTicked:
		if s.Step != StepTranscribing || !s.Polling {
			return s, nil
		}
		s.Elapsed = now.Sub(s.PollStarted).Truncate(time.Second)
		if m.PollMaxWait > 0 && s.Elapsed >= m.PollMaxWait {
			s.Polling = false
			s.Error = fmt.Sprintf("Transcription is taking longer than %s. Retry to keep waiting or cancel.", m.PollMaxWait)
			return s, []Effect{StopPolling{}}
		}
		return s, nil

	case RetryRequested:
		return m.retry(s, now)

	case Cancelled:
		if s.Step != StepTranscribing {
			return s, nil
		}
		fresh := NewSession()
		fresh.Secret = s.Secret
		fresh.URL = s.URL
		fresh.Notice = "Transcription abandoned. The job keeps running on the service."
		return fresh, []Effect{StopPolling{}, ClearEffect{}}

	case WentBack:
		return m.back(s)

	case WentNext:
		return m.forward(s)

	case RegenerateRequested:
		if s.Step != StepNotesAndChat || s.Loading {
			return s, nil
		}
		var effects []Effect
		if s.Streaming != StreamNone {
			s = m.finishStream(s)
			effects = append(effects, CancelStream{})
		}
		next, more := m.startSummary(s)
		return next, append(effects, more...)

	case ChatSent:
		text := strings.TrimSpace(ev.Text)
		if s.Step != StepNotesAndChat || text == "" {
			return s, nil
		}
		if s.Streaming != StreamNone {
			s.Error = "Wait for the current reply to finish, or abort it."
			return s, nil
		}
		if s.Secret == "" {
			s.Error = "Enter the access password first."
			return s, nil
		}
		s.ChatHistory = append(append([]domain.ChatMessage(nil), s.ChatHistory...),
			domain.ChatMessage{ID: m.newID(), Role: domain.RoleUser, Content: text})
		s.Error = ""
		system := llm.ChatPrompt(s.MetaOrZero(), s.Transcript, s.Summary)
		return m.stream(s, StreamChat, system, llm.Recent(s.ChatHistory, m.ChatMaxMessages))

	case StreamChunk:
		if ev.Seq != s.StreamSeq || s.Streaming == StreamNone {
			return s, nil
		}
		switch s.Streaming {
		case StreamSummary:
			s.Summary += ev.Text
		case StreamChat:
			s.Draft += ev.Text
		case StreamCondense:
			s.DiscussionSummary += ev.Text
		}
		return s, nil

	case StreamEnded:
		if ev.Seq != s.StreamSeq || s.Streaming == StreamNone {
			return s, nil
		}
		kind := s.Streaming
		s = m.finishStream(s)
		if ev.Err != nil && !errors.Is(ev.Err, context.Canceled) {
			s = m.fail(s, "AI request failed", ev.Err)
		} else if kind == StreamSummary && strings.TrimSpace(s.Summary) == "" {
			s.Error = "The AI returned an empty summary. Regenerate to try again."
		}
		return s, nil

	case StreamAborted:
		if s.Streaming == StreamNone {
			return s, nil
		}
		s = m.finishStream(s)
		s.StreamSeq++
		s.Notice = "Stopped. Partial output was kept."
		return s, []Effect{CancelStream{}}

	case FieldEdited:
		if s.Step != StepEditAndPublish {
			return s, nil
		}
		value := strings.TrimSpace(ev.Value)
		switch ev.Field {
		case FieldTitle:
			s.EditTitle = value
		case FieldSlug:
			s.EditSlug = strings.ToLower(value)
		case FieldTags:
			s.EditTags = value
		}
		s.Preview = ""
		return s, nil

	case CondenseRequested:
		if s.Step != StepEditAndPublish || s.Busy() {
			return s, nil
		}
		if len(s.ChatHistory) == 0 {
			s.Error = "There is no discussion to condense."
			return s, nil
		}
		if s.Secret == "" {
			s.Error = "Enter the access password first."
			return s, nil
		}
		s.DiscussionSummary = ""
		s.Error = ""
		messages := []domain.ChatMessage{{Role: domain.RoleUser, Content: llm.Transcript(s.ChatHistory)}}
		return m.stream(s, StreamCondense, llm.CondensePrompt(s.MetaOrZero()), messages)

	case PreviewRequested:
		if s.Step != StepEditAndPublish {
			return s, nil
		}
		doc, err := notes.Render(m.note(s, now))
		if err != nil {
			s.Error = err.Error()
			return s, nil
		}
		s.Preview = string(doc)
		return s, nil

	case ExportRequested:
		if s.Step != StepEditAndPublish {
			return s, nil
		}
		path := strings.TrimSpace(ev.Path)
		if path == "" {
			path = s.EditSlug + ".md"
		}
		doc, err := notes.RenderObsidian(m.note(s, now))
		if err != nil {
			s.Error = err.Error()
			return s, nil
		}
		return s, []Effect{ExportEffect{Path: path, Content: doc}}

	case Exported:
		if ev.Err != nil {
			s = m.fail(s, "Export failed", ev.Err)
			return s, nil
		}
		s.Notice = "Exported to " + ev.Path
		return s, nil

	case PublishRequested:
		return m.publish(s, now)

	case Published:
		if s.Step != StepEditAndPublish || !s.Loading {
			return s, nil
		}
		s.Loading = false
		if ev.Err != nil {
			s = m.fail(s, "Publish failed", ev.Err)
			return s, nil
		}
		fresh := NewSession()
		fresh.Secret = s.Secret
		fresh.PublishedURL = ev.Result.URL
		fresh.PublishedSlug = ev.Slug
		fresh.Notice = "Published " + ev.Result.Path
		return fresh, []Effect{ClearEffect{}}

	case ResetRequested:
		fresh := NewSession()
		fresh.Secret = s.Secret
		return fresh, []Effect{StopPolling{}, CancelStream{}, ClearEffect{}}
	}

	return s, nil
}

// resume restarts whatever background work the current step needs after a
// reload or once the access password becomes available.
func (m Machine) resume(s Session, now time.Time) (Session, []Effect) {
	switch s.Step {
	case StepTranscribing:
		if s.Polling || s.Loading || s.TranscriptID == "" || s.Status == domain.TranscriptionError {
			return s, nil
		}
		if s.Secret == "" {
			s.Notice = "Enter the access password to resume the transcription."
			return s, nil
		}
		return m.startPolling(s, now)
	case StepNotesAndChat:
		if s.Summary != "" || s.Transcript == "" || s.Streaming != StreamNone {
			return s, nil
		}
		if s.Secret == "" {
			s.Notice = "Enter the access password to generate the notes."
			return s, nil
		}
		return m.startSummary(s)
	}
	return s, nil
}

func (m Machine) submit(s Session) (Session, []Effect) {
	if s.Step != StepConfirmMeta || s.Loading {
		return s, nil
	}
	if s.Meta == nil || s.Meta.AudioURL == "" {
		s.Error = "This episode has no audio URL."
		return s, nil
	}
	if s.Secret == "" {
		s.Error = "Enter the access password first."
		return s, nil
	}
	s.Loading = true
	s.Error = ""
	s.Notice = ""
	return s, []Effect{SubmitEffect{Secret: s.Secret, AudioURL: s.Meta.AudioURL}}
}

func (m Machine) startPolling(s Session, now time.Time) (Session, []Effect) {
	s.Polling = true
	s.PollStarted = now
	s.Elapsed = 0
	s.Error = ""
	return s, []Effect{StartPolling{Secret: s.Secret, TranscriptID: s.TranscriptID}}
}

func (m Machine) retry(s Session, now time.Time) (Session, []Effect) {
	switch s.Step {
	case StepTranscribing:
		if s.Polling || s.Loading {
			return s, nil
		}
		if s.Status == domain.TranscriptionError {
			if s.Secret == "" || s.Meta == nil {
				s.Error = "Enter the access password first."
				return s, nil
			}
			s.Loading = true
			s.Error = ""
			return s, []Effect{SubmitEffect{Secret: s.Secret, AudioURL: s.Meta.AudioURL}}
		}
		if s.Secret == "" {
			s.Error = "Enter the access password first."
			return s, nil
		}
		return m.startPolling(s, now)
	case StepNotesAndChat:
		if s.Summary == "" && s.Streaming == StreamNone && s.Secret != "" {
			s.Error = ""
			return m.startSummary(s)
		}
	}
	return s, nil
}

func (m Machine) back(s Session) (Session, []Effect) {
	if s.Loading {
		return s, nil
	}
	var effects []Effect
	if s.Streaming != StreamNone {
		s = m.finishStream(s)
		s.StreamSeq++
		effects = append(effects, CancelStream{})
	}
	switch s.Step {
	case StepConfirmMeta:
		s.Step = StepURLInput
	case StepNotesAndChat:
		s.Step = StepConfirmMeta
	case StepEditAndPublish:
		s.Step = StepNotesAndChat
		s.Preview = ""
	default:
		return s, effects
	}
	s.Error = ""
	return s, effects
}

func (m Machine) forward(s Session) (Session, []Effect) {
	switch s.Step {
	case StepConfirmMeta:
		return m.submit(s)
	case StepNotesAndChat:
		if s.Streaming == StreamSummary || strings.TrimSpace(s.Summary) == "" {
			s.Error = "Wait for the notes to finish before continuing."
			return s, nil
		}
		var effects []Effect
		if s.Streaming != StreamNone {
			s = m.finishStream(s)
			s.StreamSeq++
			effects = append(effects, CancelStream{})
		}
		s.Step = StepEditAndPublish
		s.Error = ""
		return s, effects
	}
	return s, nil
}

func (m Machine) publish(s Session, now time.Time) (Session, []Effect) {
	if s.Step != StepEditAndPublish || s.Busy() {
		return s, nil
	}
	switch {
	case s.Secret == "":
		s.Error = "Enter the access password first."
		return s, nil
	case s.EditTitle == "":
		s.Error = "Title is required."
		return s, nil
	case !notes.ValidSlug(s.EditSlug):
		s.Error = "Slug may only contain lowercase letters, digits and dashes."
		return s, nil
	}
	doc, err := notes.Render(m.note(s, now))
	if err != nil {
		s.Error = err.Error()
		return s, nil
	}
	s.Loading = true
	s.Error = ""
	return s, []Effect{PublishEffect{Secret: s.Secret, Slug: s.EditSlug, Content: doc}}
}

func (m Machine) startSummary(s Session) (Session, []Effect) {
	if s.Secret == "" {
		s.Notice = "Enter the access password to generate the notes."
		return s, nil
	}
	s.Summary = ""
	messages := []domain.ChatMessage{{Role: domain.RoleUser, Content: "Transcript:\n\n" + s.Transcript}}
	return m.stream(s, StreamSummary, llm.SummaryPrompt(s.MetaOrZero()), messages)
}

func (m Machine) stream(s Session, kind StreamKind, system string, messages []domain.ChatMessage) (Session, []Effect) {
	s.StreamSeq++
	s.Streaming = kind
	s.Draft = ""
	s.Notice = ""
	return s, []Effect{StreamEffect{Seq: s.StreamSeq, Secret: s.Secret, System: system, Messages: messages}}
}

// finishStream keeps whatever the stream produced so far.
func (m Machine) finishStream(s Session) Session {
	if s.Streaming == StreamChat && s.Draft != "" {
		s.ChatHistory = append(append([]domain.ChatMessage(nil), s.ChatHistory...),
			domain.ChatMessage{ID: m.newID(), Role: domain.RoleAssistant, Content: s.Draft})
	}
	s.Draft = ""
	s.Streaming = StreamNone
	return s
}

func (m Machine) note(s Session, now time.Time) notes.Note {
	meta := s.MetaOrZero()
	return notes.Note{
		Title:             s.EditTitle,
		Slug:              s.EditSlug,
		Description:       meta.Description,
		Date:              now,
		Category:          m.Category,
		Tags:              notes.SplitTags(s.EditTags),
		SourceURL:         s.URL,
		Platform:          meta.Platform,
		CoverImage:        meta.CoverImage,
		AudioURL:          meta.AudioURL,
		Duration:          meta.Duration,
		Summary:           s.Summary,
		DiscussionSummary: s.DiscussionSummary,
		Discussion:        s.ChatHistory,
	}
}

// fail records err as an inline error. A rejected password is forgotten so
// the user is asked for it again.
func (m Machine) fail(s Session, action string, err error) Session {
	s.Error = fmt.Sprintf("%s: %s", action, Describe(err))
	if errors.Is(err, domain.ErrUnauthorized) {
		s.Secret = ""
	}
	return s
}

// Describe turns an error into a short user-facing message.
func Describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "wrong access password"
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return "only xiaoyuzhou and Apple Podcasts links are supported"
	case errors.Is(err, domain.ErrAlreadyParticipated):
		return "you have already asked a question about this episode"
	case errors.Is(err, domain.ErrUpstream):
		return strings.TrimPrefix(err.Error(), domain.ErrUpstream.Error()+": ")
	case errors.Is(err, domain.ErrTranscription):
		return strings.TrimPrefix(err.Error(), domain.ErrTranscription.Error()+": ")
	}
	return err.Error()
}

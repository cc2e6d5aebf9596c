// Package transcribe submits episode audio to the speech-to-text service and
// normalizes completed jobs into timestamped text.
package transcribe

import (
	"context"
	"fmt"
	"log"
	"strings"

	"podnote/internal/domain"
)

// RecentWindow is how many recent jobs are searched for a reusable result.
const RecentWindow = 20

// Job is a job as reported by the backend.
type Job struct {
	ID       string
	AudioURL string
	Status   string
	Error    string
}

// Sentence is one recognized sentence with its start offset in milliseconds.
type Sentence struct {
	StartMS int64
	Text    string
}

// Backend is the subset of the speech-to-text API the service needs.
type Backend interface {
	Submit(ctx context.Context, audioURL, language string) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	Sentences(ctx context.Context, id string) ([]Sentence, error)
	// Recent lists the newest jobs first.
	Recent(ctx context.Context, limit int) ([]Job, error)
}

// Service implements submit and poll.
type Service struct {
	backend  Backend
	language string
}

// NewService constructs a Service. An empty language defaults to zh.
func NewService(backend Backend, language string) *Service {
	if strings.TrimSpace(language) == "" {
		language = "zh"
	}
	return &Service{backend: backend, language: language}
}

// Submit starts a transcription for audioURL, reusing a recent job for the same
// URL when one is completed or still in flight.
func (s *Service) Submit(ctx context.Context, audioURL string) (domain.TranscriptionJob, error) {
	audioURL = strings.TrimSpace(audioURL)
	if audioURL == "" {
		return domain.TranscriptionJob{}, fmt.Errorf("%w: audioUrl is required", domain.ErrValidation)
	}

	if job, ok := s.findRecent(ctx, audioURL); ok {
		return job, nil
	}

	job, err := s.backend.Submit(ctx, audioURL, s.language)
	if err != nil {
		return domain.TranscriptionJob{}, fmt.Errorf("%w: submit transcription: %v", domain.ErrUpstream, err)
	}
	return domain.TranscriptionJob{TranscriptID: job.ID, Status: normalizeStatus(job.Status)}, nil
}

func (s *Service) findRecent(ctx context.Context, audioURL string) (domain.TranscriptionJob, bool) {
	recent, err := s.backend.Recent(ctx, RecentWindow)
	if err != nil {
		log.Printf("recent transcripts lookup failed: %v", err)
		return domain.TranscriptionJob{}, false
	}

	var inFlight *Job
	for i := range recent {
		job := recent[i]
		if job.AudioURL != audioURL {
			continue
		}
		switch normalizeStatus(job.Status) {
		case domain.TranscriptionCompleted:
			return domain.TranscriptionJob{TranscriptID: job.ID, Status: domain.TranscriptionCompleted, Cached: true}, true
		case domain.TranscriptionQueued, domain.TranscriptionProcessing:
			if inFlight == nil {
				inFlight = &recent[i]
			}
		}
	}
	if inFlight != nil {
		return domain.TranscriptionJob{TranscriptID: inFlight.ID, Status: normalizeStatus(inFlight.Status), Cached: true}, true
	}
	return domain.TranscriptionJob{}, false
}

// Poll reports the job status. Completed jobs carry the timestamped text and
// failed jobs carry the upstream message.
func (s *Service) Poll(ctx context.Context, id string) (domain.TranscriptionJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.TranscriptionJob{}, fmt.Errorf("%w: id is required", domain.ErrValidation)
	}

	job, err := s.backend.Get(ctx, id)
	if err != nil {
		return domain.TranscriptionJob{}, fmt.Errorf("%w: status check: %v", domain.ErrUpstream, err)
	}

	status := normalizeStatus(job.Status)
	result := domain.TranscriptionJob{TranscriptID: id, Status: status}
	switch status {
	case domain.TranscriptionCompleted:
		sentences, err := s.backend.Sentences(ctx, id)
		if err != nil {
			return domain.TranscriptionJob{}, fmt.Errorf("%w: fetch sentences: %v", domain.ErrUpstream, err)
		}
		result.Text = JoinSentences(sentences)
	case domain.TranscriptionError:
		result.Error = job.Error
	}
	return result, nil
}

// JoinSentences renders one "[MM:SS] text" line per sentence.
func JoinSentences(sentences []Sentence) string {
	lines := make([]string, 0, len(sentences))
	for _, s := range sentences {
		lines = append(lines, FormatTimestamp(s.StartMS)+" "+strings.TrimSpace(s.Text))
	}
	return strings.Join(lines, "\n")
}

// FormatTimestamp renders a millisecond offset as [MM:SS]. Minutes are not
// wrapped into hours.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("[%02d:%02d]", total/60, total%60)
}

func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case domain.TranscriptionCompleted:
		return domain.TranscriptionCompleted
	case domain.TranscriptionError:
		return domain.TranscriptionError
	case domain.TranscriptionProcessing:
		return domain.TranscriptionProcessing
	default:
		return domain.TranscriptionQueued
	}
}

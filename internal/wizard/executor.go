package wizard

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"podnote/internal/domain"
)

// API is the backend the executor calls. *apiclient.Client satisfies it.
type API interface {
	Parse(ctx context.Context, secret, episodeURL string) (domain.PodcastMeta, error)
	Transcribe(ctx context.Context, secret, audioURL string) (domain.TranscriptionJob, error)
	TranscriptionStatus(ctx context.Context, secret, id string) (domain.TranscriptionJob, error)
	Chat(ctx context.Context, secret, system string, messages []domain.ChatMessage, emit func(string) error) error
	Publish(ctx context.Context, secret, slug string, content []byte) (domain.PublishResult, error)
}

// Executor performs effects and reports their outcome as events. At most one
// completion stream and one poller run at a time.
type Executor struct {
	api          API
	persist      *Persistence
	pollInterval time.Duration
	events       chan Event
	done         chan struct{}
	closeOnce    sync.Once

	mu           sync.Mutex
	cancelStream context.CancelFunc
	cancelPoll   context.CancelFunc
	wg           sync.WaitGroup
}

func NewExecutor(api API, persist *Persistence, pollInterval time.Duration) *Executor {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Executor{
		api:          api,
		persist:      persist,
		pollInterval: pollInterval,
		events:       make(chan Event, 64),
		done:         make(chan struct{}),
	}
}

// Events delivers the results of asynchronous effects.
func (e *Executor) Events() <-chan Event {
	return e.events
}

// Run starts effects in order. Persistence happens before Run returns;
// network effects complete in the background.
func (e *Executor) Run(ctx context.Context, effects []Effect) {
	for _, effect := range effects {
		switch eff := effect.(type) {
		case PersistEffect:
			if err := e.persist.Save(ctx, eff.State); err != nil {
				log.Printf("persist wizard state failed: %v", err)
			}
		case ClearEffect:
			if err := e.persist.Clear(ctx); err != nil {
				log.Printf("clear wizard state failed: %v", err)
			}
		case ParseEffect:
			e.goSend(ctx, func() Event {
				meta, err := e.api.Parse(ctx, eff.Secret, eff.URL)
				return MetaParsed{Meta: meta, Err: err}
			})
		case SubmitEffect:
			e.goSend(ctx, func() Event {
				job, err := e.api.Transcribe(ctx, eff.Secret, eff.AudioURL)
				return TranscriptionSubmitted{Job: job, Err: err}
			})
		case StartPolling:
			e.startPolling(ctx, eff)
		case StopPolling:
			e.stopPolling()
		case StreamEffect:
			e.startStream(ctx, eff)
		case CancelStream:
			e.stopStream()
		case PublishEffect:
			e.goSend(ctx, func() Event {
				result, err := e.api.Publish(ctx, eff.Secret, eff.Slug, eff.Content)
				return Published{Slug: eff.Slug, Result: result, Err: err}
			})
		case ExportEffect:
			e.goSend(ctx, func() Event {
				return Exported{Path: eff.Path, Err: writeExport(eff.Path, eff.Content)}
			})
		}
	}
}

// Close stops background work and waits for it to exit.
func (e *Executor) Close() {
	e.closeOnce.Do(func() { close(e.done) })
	e.stopPolling()
	e.stopStream()
	e.wg.Wait()
}

func (e *Executor) goSend(ctx context.Context, fn func() Event) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.send(ctx, fn())
	}()
}

func (e *Executor) send(ctx context.Context, ev Event) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	case <-e.done:
	}
}

func (e *Executor) startStream(ctx context.Context, eff StreamEffect) {
	e.stopStream()

	streamCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelStream = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		err := e.api.Chat(streamCtx, eff.Secret, eff.System, eff.Messages, func(chunk string) error {
			if streamCtx.Err() != nil {
				return streamCtx.Err()
			}
			e.send(ctx, StreamChunk{Seq: eff.Seq, Text: chunk})
			return nil
		})
		if err != nil && streamCtx.Err() == nil {
			log.Printf("completion stream failed: %v", err)
		}
		e.send(ctx, StreamEnded{Seq: eff.Seq, Err: err})
	}()
}

func (e *Executor) stopStream() {
	e.mu.Lock()
	cancel := e.cancelStream
	e.cancelStream = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Executor) startPolling(ctx context.Context, eff StartPolling) {
	e.stopPolling()

	pollCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelPoll = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.poll(pollCtx, ctx, eff)
	}()
}

func (e *Executor) stopPolling() {
	e.mu.Lock()
	cancel := e.cancelPoll
	e.cancelPoll = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// poll checks the job immediately and then on every interval, with a one
// second clock alongside for the elapsed display. It exits on a terminal
// status or when cancelled.
func (e *Executor) poll(pollCtx, sendCtx context.Context, eff StartPolling) {
	poll := time.NewTicker(e.pollInterval)
	defer poll.Stop()
	clock := time.NewTicker(time.Second)
	defer clock.Stop()

	check := func() bool {
		job, err := e.api.TranscriptionStatus(pollCtx, eff.Secret, eff.TranscriptID)
		if pollCtx.Err() != nil {
			return true
		}
		if err != nil {
			log.Printf("transcription status %s failed: %v", eff.TranscriptID, err)
		}
		e.send(sendCtx, StatusPolled{Job: job, Err: err})
		return err == nil && job.Terminal()
	}

	if check() {
		return
	}
	for {
		select {
		case <-pollCtx.Done():
			return
		case <-clock.C:
			e.send(sendCtx, ClockTicked{})
		case <-poll.C:
			if check() {
				return
			}
		}
	}
}

func writeExport(path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	temp := path + ".tmp"
	if err := os.WriteFile(temp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(temp, path)
}

// Package apiclient is the terminal wizard's client for the podnote HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"podnote/internal/domain"
)

// Client talks to a podnote server. Creator calls take the access secret
// explicitly since it is held only in the session.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

func New(httpClient *http.Client, baseURL, userAgent string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/"), userAgent: userAgent}
}

// Note is a published note as served by the API.
type Note struct {
	Slug     string `json:"slug"`
	Path     string `json:"path"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

func (c *Client) Parse(ctx context.Context, secret, episodeURL string) (domain.PodcastMeta, error) {
	var meta domain.PodcastMeta
	err := c.doJSON(ctx, http.MethodPost, "/api/podcast/parse", secret, map[string]string{"url": episodeURL}, &meta)
	return meta, err
}

func (c *Client) Transcribe(ctx context.Context, secret, audioURL string) (domain.TranscriptionJob, error) {
	var job domain.TranscriptionJob
	err := c.doJSON(ctx, http.MethodPost, "/api/podcast/transcribe", secret, map[string]string{"audioUrl": audioURL}, &job)
	return job, err
}

func (c *Client) TranscriptionStatus(ctx context.Context, secret, id string) (domain.TranscriptionJob, error) {
	job := domain.TranscriptionJob{TranscriptID: id}
	err := c.doJSON(ctx, http.MethodGet, "/api/podcast/transcribe/status?id="+url.QueryEscape(id), secret, nil, &job)
	job.TranscriptID = id
	return job, err
}

func (c *Client) Publish(ctx context.Context, secret, slug string, content []byte) (domain.PublishResult, error) {
	var result domain.PublishResult
	body := map[string]string{
		"slug":          slug,
		"contentBase64": base64.StdEncoding.EncodeToString(content),
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/podcast/publish", secret, body, &result)
	return result, err
}

func (c *Client) Discussions(ctx context.Context, slug string) ([]domain.Discussion, error) {
	var list []domain.Discussion
	err := c.doJSON(ctx, http.MethodGet, "/api/podcast/discuss?slug="+url.QueryEscape(slug), "", nil, &list)
	return list, err
}

func (c *Client) SaveDiscussion(ctx context.Context, slug, visitorID, question, answer string) (domain.Discussion, error) {
	var saved domain.Discussion
	body := map[string]string{"slug": slug, "visitorId": visitorID, "question": question, "answer": answer}
	err := c.doJSON(ctx, http.MethodPost, "/api/podcast/discuss/save", "", body, &saved)
	return saved, err
}

func (c *Client) Note(ctx context.Context, slug string) (Note, error) {
	var note Note
	err := c.doJSON(ctx, http.MethodGet, "/api/podcast/notes/"+url.PathEscape(slug), "", nil, &note)
	return note, err
}

// Chat streams an authenticated completion.
func (c *Client) Chat(ctx context.Context, secret, system string, messages []domain.ChatMessage, emit func(string) error) error {
	return c.stream(ctx, "/api/podcast/chat", secret, map[string]any{"system": system, "messages": messages}, emit)
}

// Discuss streams a public discussion reply grounded in the published note.
func (c *Client) Discuss(ctx context.Context, slug string, messages []domain.ChatMessage, emit func(string) error) error {
	return c.stream(ctx, "/api/podcast/discuss", "", map[string]any{"slug": slug, "messages": messages}, emit)
}

func (c *Client) newRequest(ctx context.Context, method, path, secret string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, secret string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, secret, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrUpstream, err)
	}
	return nil
}

func (c *Client) stream(ctx context.Context, path, secret string, body any, emit func(string) error) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, secret, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completeRunes(pending)
			if cut > 0 {
				if err := emit(string(pending[:cut])); err != nil {
					return err
				}
				pending = append(pending[:0], pending[cut:]...)
			}
		}
		if errors.Is(readErr, io.EOF) {
			if len(pending) > 0 {
				return emit(string(pending))
			}
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: read stream: %v", domain.ErrUpstream, readErr)
		}
	}
}

// completeRunes returns the length of the longest prefix of b that does not
// end inside a multi-byte rune.
func completeRunes(b []byte) int {
	end := len(b)
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if !utf8.RuneStart(b[start]) {
			continue
		}
		if !utf8.FullRune(b[start:]) {
			end = start
		}
		break
	}
	return end
}

func statusError(resp *http.Response) error {
	msg := resp.Status
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		msg = text
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyParticipated, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUpstream, msg)
	}
}

// Package notes renders podcast notes to markdown and publishes them to the
// content store.
package notes

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"podnote/internal/domain"
)

// DateLayout is the frontmatter date format.
const DateLayout = "2006-01-02"

const discussionHeading = "## Discussion with AI"

// Note is everything that goes into a published note.
type Note struct {
	Title             string
	Slug              string
	Description       string
	Date              time.Time
	Category          string
	Tags              []string
	SourceURL         string
	Platform          string
	CoverImage        string
	AudioURL          string
	Duration          int
	Summary           string
	DiscussionSummary string
	Discussion        []domain.ChatMessage
}

// Frontmatter is the YAML header consumed by the site generator. Field order
// is the emitted order.
type Frontmatter struct {
	Title       string   `yaml:"title"`
	Slug        string   `yaml:"slug"`
	Description string   `yaml:"description"`
	Date        string   `yaml:"date"`
	Category    string   `yaml:"category"`
	Tags        []string `yaml:"tags,flow"`
	Published   bool     `yaml:"published"`
	SourceURL   string   `yaml:"sourceUrl,omitempty"`
	Platform    string   `yaml:"platform,omitempty"`
	CoverImage  string   `yaml:"coverImage,omitempty"`
	AudioURL    string   `yaml:"audioUrl,omitempty"`
	Duration    int      `yaml:"duration,omitempty"`
}

type obsidianFrontmatter struct {
	Title    string   `yaml:"title"`
	Date     string   `yaml:"date"`
	Tags     []string `yaml:"tags,flow"`
	Source   string   `yaml:"source,omitempty"`
	Platform string   `yaml:"platform,omitempty"`
}

// Render produces the published markdown document.
func Render(note Note) ([]byte, error) {
	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	fm := Frontmatter{
		Title:       singleLine(note.Title),
		Slug:        note.Slug,
		Description: singleLine(note.Description),
		Date:        note.Date.Format(DateLayout),
		Category:    note.Category,
		Tags:        tags,
		Published:   true,
		SourceURL:   note.SourceURL,
		Platform:    note.Platform,
		CoverImage:  note.CoverImage,
		AudioURL:    note.AudioURL,
		Duration:    note.Duration,
	}

	var buf bytes.Buffer
	if err := writeFrontmatter(&buf, fm); err != nil {
		return nil, err
	}
	buf.WriteString("\n")
	buf.WriteString(note.Summary)

	discussion := chatOnly(note.Discussion)
	switch {
	case note.DiscussionSummary != "":
		fmt.Fprintf(&buf, "\n\n---\n\n%s\n\n%s\n", discussionHeading, note.DiscussionSummary)
		if len(discussion) > 0 {
			buf.WriteString("\n<details>\n<summary>Raw conversation</summary>\n\n")
			for _, msg := range discussion {
				if msg.Role == domain.RoleUser {
					fmt.Fprintf(&buf, "**🙋 User**\n\n%s\n\n---\n\n", msg.Content)
				} else {
					fmt.Fprintf(&buf, "**🤖 AI**\n\n%s\n\n---\n\n", msg.Content)
				}
			}
			buf.WriteString("</details>\n")
		}
	case len(discussion) > 0:
		fmt.Fprintf(&buf, "\n\n---\n\n%s\n\n", discussionHeading)
		for _, msg := range discussion {
			if msg.Role == domain.RoleUser {
				fmt.Fprintf(&buf, "**🙋 %s**\n\n", msg.Content)
			} else {
				fmt.Fprintf(&buf, "%s\n\n", msg.Content)
			}
		}
	}

	return buf.Bytes(), nil
}

// RenderObsidian produces the local export variant with vault-style
// frontmatter and only the summary as body.
func RenderObsidian(note Note) ([]byte, error) {
	fm := obsidianFrontmatter{
		Title:    singleLine(note.Title),
		Date:     note.Date.Format(DateLayout),
		Tags:     append([]string{"podcast"}, note.Tags...),
		Source:   note.SourceURL,
		Platform: note.Platform,
	}
	var buf bytes.Buffer
	if err := writeFrontmatter(&buf, fm); err != nil {
		return nil, err
	}
	buf.WriteString("\n")
	buf.WriteString(note.Summary)
	return buf.Bytes(), nil
}

func writeFrontmatter(buf *bytes.Buffer, v any) error {
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}
	buf.WriteString("---\n")
	return nil
}

// Parse splits a note into frontmatter and body.
func Parse(doc []byte) (Frontmatter, string, error) {
	text := strings.ReplaceAll(string(doc), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return Frontmatter{}, "", errors.New("note has no frontmatter")
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return Frontmatter{}, "", errors.New("unterminated frontmatter")
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return Frontmatter{}, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	body := strings.TrimLeft(rest[end+len("\n---\n"):], "\n")
	return fm, body, nil
}

// SplitTags turns a comma separated tag field into a clean list.
func SplitTags(raw string) []string {
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces     = regexp.MustCompile(`\s+`)
	slugDashes     = regexp.MustCompile(`-+`)
	slugValid      = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
)

// GenerateSlug derives an ASCII slug from title. Titles with too little ASCII
// fall back to a timestamp based slug.
func GenerateSlug(title string, now time.Time) string {
	var ascii strings.Builder
	for _, r := range strings.ToLower(title) {
		if r >= 0x20 && r <= 0x7e {
			ascii.WriteRune(r)
		}
	}
	base := slugDisallowed.ReplaceAllString(ascii.String(), "")
	base = slugSpaces.ReplaceAllString(base, "-")
	base = slugDashes.ReplaceAllString(base, "-")
	if len(base) > 80 {
		base = base[:80]
	}
	base = strings.TrimPrefix(strings.TrimSuffix(base, "-"), "-")
	if len(base) < 3 {
		return "podcast-" + strconv.FormatInt(now.UnixMilli(), 36)
	}
	return base
}

// ValidSlug reports whether slug is safe to use as a file name.
func ValidSlug(slug string) bool {
	return len(slug) <= 120 && slugValid.MatchString(slug)
}

func chatOnly(messages []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleUser || m.Role == domain.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

func singleLine(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r", ""), "\n", " ")
}

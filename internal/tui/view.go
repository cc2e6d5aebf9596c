package tui

import (
	"fmt"
	"strings"
	"time"

	"podnote/internal/domain"
	"podnote/internal/render"
	"podnote/internal/theme"
	"podnote/internal/wizard"
)

const descriptionLimit = 280

func renderHeader(current wizard.Step, th theme.Theme) string {
	parts := make([]string, 0, int(wizard.StepEditAndPublish))
	for step := wizard.StepURLInput; step <= wizard.StepEditAndPublish; step++ {
		label := fmt.Sprintf("%d %s", step, step)
		switch {
		case step == current:
			parts = append(parts, th.StepActive.Render(label))
		case step < current:
			parts = append(parts, th.StepDone.Render(label))
		default:
			parts = append(parts, th.Dim.Render(label))
		}
	}
	return th.Header.Render("podnote") + "  " + strings.Join(parts, th.Dim.Render(" › "))
}

func renderStatus(s wizard.Session, th theme.Theme) string {
	switch {
	case s.Error != "":
		return th.Error.Render(s.Error)
	case s.Loading:
		return th.Status.Render(" Working...")
	case s.Streaming != wizard.StreamNone:
		return th.Status.Render(" Generating... (Esc or /abort to stop)")
	case s.Polling:
		return th.Status.Render(fmt.Sprintf(" Transcribing (%s) %s", statusLabel(s.Status), formatElapsed(s.Elapsed)))
	case s.Notice != "":
		return th.Notice.Render(s.Notice)
	}
	return ""
}

func statusLabel(status string) string {
	if status == "" {
		return domain.TranscriptionQueued
	}
	return status
}

func renderStep(s wizard.Session, th theme.Theme) string {
	switch s.Step {
	case wizard.StepURLInput:
		return renderURLInput(s, th)
	case wizard.StepConfirmMeta:
		return renderMeta(s.MetaOrZero(), th) + "\n\n" + th.Dim.Render("/next to start transcription, /back to change the URL")
	case wizard.StepTranscribing:
		return renderTranscribing(s, th)
	case wizard.StepNotesAndChat:
		return renderNotesAndChat(s, th)
	case wizard.StepEditAndPublish:
		return renderEdit(s, th)
	}
	return ""
}

func renderURLInput(s wizard.Session, th theme.Theme) string {
	var b strings.Builder
	if s.PublishedSlug != "" {
		b.WriteString(th.Notice.Render("Last published: " + s.PublishedSlug))
		if s.PublishedURL != "" {
			b.WriteString(th.Dim.Render(" " + s.PublishedURL))
		}
		b.WriteString("\n\n")
	}
	if s.Secret == "" {
		b.WriteString("Enter the access password to begin.")
		return b.String()
	}
	b.WriteString("Paste an Apple Podcasts or Xiaoyuzhou episode URL.")
	if s.URL != "" {
		b.WriteString("\n" + th.Dim.Render("Last URL: "+s.URL))
	}
	return b.String()
}

func renderMeta(meta domain.PodcastMeta, th theme.Theme) string {
	var b strings.Builder
	b.WriteString(th.Title.Render(meta.Title))
	b.WriteString("\n")
	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(th.Label.Render(label+": ") + value + "\n")
	}
	field("Platform", meta.Platform)
	if meta.Duration > 0 {
		field("Duration", formatDuration(meta.Duration))
	}
	field("Cover", meta.CoverImage)
	field("Audio", meta.AudioURL)
	if meta.Description != "" {
		b.WriteString("\n" + truncate(meta.Description, descriptionLimit))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTranscribing(s wizard.Session, th theme.Theme) string {
	var b strings.Builder
	b.WriteString(th.Title.Render(s.MetaOrZero().Title))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Transcript %s: %s, elapsed %s\n", s.TranscriptID, statusLabel(s.Status), formatElapsed(s.Elapsed))
	if s.Polling {
		b.WriteString(th.Dim.Render("/cancel to abandon"))
	} else {
		b.WriteString(th.Dim.Render("/retry to try again, /cancel to start over"))
	}
	return b.String()
}

func renderNotesAndChat(s wizard.Session, th theme.Theme) string {
	var b strings.Builder
	b.WriteString(th.Header.Render("Notes"))
	b.WriteString("\n")
	if s.Summary == "" && s.Streaming == wizard.StreamSummary {
		b.WriteString(th.Dim.Render("Waiting for the first words..."))
	} else {
		b.WriteString(render.Plain(s.Summary))
	}
	b.WriteString("\n")

	if len(s.ChatHistory) > 0 || s.Streaming == wizard.StreamChat {
		b.WriteString("\n" + th.Header.Render("Chat") + "\n")
		for _, msg := range s.ChatHistory {
			b.WriteString(renderChatMessage(msg.Role, msg.Content, th))
		}
		if s.Streaming == wizard.StreamChat {
			b.WriteString(renderChatMessage(domain.RoleAssistant, s.Draft+"▍", th))
		}
	}
	b.WriteString("\n" + th.Dim.Render("Ask a question, /regenerate, or /next to edit"))
	return b.String()
}

func renderChatMessage(role, content string, th theme.Theme) string {
	if role == domain.RoleUser {
		return th.User.Render("you: ") + content + "\n"
	}
	return th.Assistant.Render("ai: ") + render.Plain(content) + "\n"
}

func renderEdit(s wizard.Session, th theme.Theme) string {
	var b strings.Builder
	b.WriteString(th.Label.Render("Title: ") + s.EditTitle + "\n")
	b.WriteString(th.Label.Render("Slug:  ") + s.EditSlug + "\n")
	b.WriteString(th.Label.Render("Tags:  ") + s.EditTags + "\n")
	if s.DiscussionSummary != "" || s.Streaming == wizard.StreamCondense {
		b.WriteString("\n" + th.Header.Render("Discussion summary") + "\n")
		b.WriteString(render.Plain(s.DiscussionSummary) + "\n")
	}
	if n := len(s.ChatHistory); n > 0 {
		b.WriteString(th.Dim.Render(fmt.Sprintf("\n%d chat messages will be appended to the note.", n)) + "\n")
	}
	b.WriteString("\n" + th.Dim.Render("/title, /slug, /tags, /condense, /preview, /export [file], /publish"))
	return b.String()
}

// formatElapsed renders d as mm:ss, or h:mm:ss past an hour.
func formatElapsed(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = 0
	}
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

func formatDuration(seconds int) string {
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm %02ds", int(d.Minutes()), seconds%60)
}

func truncate(s string, limit int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= limit {
		return string(r)
	}
	return string(r[:limit]) + "…"
}

package llm

import (
	"fmt"
	"strings"

	"podnote/internal/domain"
)

// NoteBodyLimit bounds how much of a published note is quoted in the
// discussion prompt.
const NoteBodyLimit = 8000

// SummaryPrompt instructs the model to write structured notes from a
// timestamped transcript sent as the first user message.
func SummaryPrompt(meta domain.PodcastMeta) string {
	var b strings.Builder
	b.WriteString("You are a podcast note taker. The user will send the full timestamped transcript of an episode.\n\n")
	fmt.Fprintf(&b, "Podcast: %s\n", meta.Title)
	if meta.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", meta.Description)
	}
	b.WriteString(`
Write structured markdown notes:
- Start with a one-paragraph overview.
- Then "## Key Points", each point citing the [MM:SS] timestamp where it is discussed.
- Then "## Notable Quotes" with short quotes and timestamps.
- Then "## Takeaways" as a task list using "- [ ]".
Keep timestamps exactly in the [MM:SS] form used by the transcript. Answer in the transcript's language.`)
	return b.String()
}

// ChatPrompt grounds follow-up questions in the transcript and the notes
// already produced.
func ChatPrompt(meta domain.PodcastMeta, transcript, summary string) string {
	var b strings.Builder
	b.WriteString("You are discussing a podcast episode with the user. Answer from the transcript and cite [MM:SS] timestamps.\n\n")
	fmt.Fprintf(&b, "Podcast: %s\n", meta.Title)
	if meta.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", meta.Description)
	}
	if summary != "" {
		fmt.Fprintf(&b, "\nNotes so far:\n%s\n", summary)
	}
	fmt.Fprintf(&b, "\nTranscript:\n%s", transcript)
	return b.String()
}

// DiscussionPrompt is used for public visitor questions on a published note.
func DiscussionPrompt(title, description, body string) string {
	body = truncateBody(body, NoteBodyLimit)

	var b strings.Builder
	b.WriteString("You are a discussion partner for a reader who just finished a podcast note and wants to dig deeper.\n\n")
	fmt.Fprintf(&b, "Podcast: %s\n", title)
	if description != "" {
		fmt.Fprintf(&b, "Description: %s\n", description)
	}
	fmt.Fprintf(&b, "\nFull note (AI summary and earlier discussion):\n%s\n", body)
	b.WriteString(`
Discussion style:
- Respond to the reader's point first, then push on an angle they have not considered.
- Point out gaps or misreadings directly and explain why.
- Connect ideas to real-world cases, trends and counterexamples.
- Focus each reply on one point and end with a pointed question.
- Mark counterarguments as "> ⚡ **Counterpoint**".`)
	return b.String()
}

// CondensePrompt asks for a summary of a chat history that replaces the raw
// Q&A in the published note.
func CondensePrompt(meta domain.PodcastMeta) string {
	return fmt.Sprintf(`Condense the following discussion about the podcast "%s" into a short markdown section.
Group related questions, keep the substantive answers, keep any [MM:SS] timestamps, and drop small talk.
Do not add a top-level heading.`, meta.Title)
}

// Transcript renders a chat history as plain Q&A text.
func Transcript(messages []domain.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		label := "Q"
		if m.Role == domain.RoleAssistant {
			label = "A"
		}
		fmt.Fprintf(&b, "%s: %s\n\n", label, strings.TrimSpace(m.Content))
	}
	return strings.TrimSpace(b.String())
}

func truncateBody(body string, limit int) string {
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "\n..."
}

package feeds

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"podnote/internal/domain"
)

// Podcast describes metadata for a podcast feed.
type Podcast struct {
	Title string
	Image string
}

// Episode captures parsed feed episode information, including the iTunes
// extension fields the note publisher cares about.
type Episode struct {
	GUID        string
	Title       string
	Description string
	Summary     string
	Image       string
	Duration    string
	Enclosure   string
}

// Fetch retrieves and parses an RSS/Atom feed.
func Fetch(ctx context.Context, client *http.Client, url, userAgent string) (Podcast, []Episode, error) {
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		parser.UserAgent = ua
	}

	feed, err := parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return Podcast{}, nil, fmt.Errorf("%w: fetch feed: %v", domain.ErrFetch, err)
	}

	podcast := Podcast{Title: strings.TrimSpace(feed.Title)}
	if feed.Image != nil {
		podcast.Image = feed.Image.URL
	}
	if podcast.Image == "" && feed.ITunesExt != nil {
		podcast.Image = feed.ITunesExt.Image
	}

	episodes := make([]Episode, 0, len(feed.Items))
	for _, item := range feed.Items {
		ep := Episode{
			GUID:        strings.TrimSpace(item.GUID),
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
		}
		for _, enclosure := range item.Enclosures {
			if enclosure != nil && strings.TrimSpace(enclosure.URL) != "" {
				ep.Enclosure = strings.TrimSpace(enclosure.URL)
				break
			}
		}
		if item.ITunesExt != nil {
			ep.Summary = strings.TrimSpace(item.ITunesExt.Summary)
			ep.Image = strings.TrimSpace(item.ITunesExt.Image)
			ep.Duration = strings.TrimSpace(item.ITunesExt.Duration)
		}
		if ep.Image == "" && item.Image != nil {
			ep.Image = item.Image.URL
		}
		episodes = append(episodes, ep)
	}

	return podcast, episodes, nil
}

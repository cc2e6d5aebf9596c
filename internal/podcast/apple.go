package podcast

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"podnote/internal/domain"
	"podnote/internal/feeds"
)

var applePodcastID = regexp.MustCompile(`/id(\d+)`)

// parseApple resolves e.g. https://podcasts.apple.com/cn/podcast/x/id123?i=1000456
// through the iTunes lookup API and the show's RSS feed.
func (p *Parser) parseApple(ctx context.Context, pageURL string) (domain.PodcastMeta, error) {
	match := applePodcastID.FindStringSubmatch(pageURL)
	if match == nil {
		return domain.PodcastMeta{}, fmt.Errorf("%w: no podcast id in Apple Podcasts URL", domain.ErrValidation)
	}
	podcastID := match[1]

	episodeParam := ""
	if parsed, err := url.Parse(pageURL); err == nil {
		episodeParam = parsed.Query().Get("i")
	}

	show, err := p.itunes.LookupPodcast(ctx, podcastID)
	if err != nil {
		return domain.PodcastMeta{}, err
	}
	if strings.TrimSpace(show.FeedURL) == "" {
		return domain.PodcastMeta{}, fmt.Errorf("%w: no RSS feed for podcast %s", domain.ErrNotFound, podcastID)
	}

	feed, episodes, err := feeds.Fetch(ctx, p.httpClient, show.FeedURL, p.userAgent)
	if err != nil {
		return domain.PodcastMeta{}, err
	}
	if len(episodes) == 0 {
		return domain.PodcastMeta{}, fmt.Errorf("%w: no episodes in RSS feed", domain.ErrNotFound)
	}

	episode := episodes[0]
	if episodeParam != "" {
		for _, candidate := range episodes {
			if strings.Contains(candidate.GUID, episodeParam) {
				episode = candidate
				break
			}
		}
	}

	if episode.Enclosure == "" {
		return domain.PodcastMeta{}, fmt.Errorf("%w: no audio URL in RSS episode", domain.ErrNotFound)
	}

	title := episode.Title
	if title == "" {
		title = show.Title
	}
	if title == "" {
		title = feed.Title
	}

	description := episode.Summary
	if description == "" {
		description = episode.Description
	}

	cover := episode.Image
	if cover == "" {
		cover = show.Artwork
	}
	if cover == "" {
		cover = feed.Image
	}

	return domain.PodcastMeta{
		Title:       title,
		Description: truncateRunes(stripTags(description), descriptionLimit),
		CoverImage:  cover,
		AudioURL:    episode.Enclosure,
		Platform:    domain.PlatformApple,
		Duration:    ParseDuration(episode.Duration),
	}, nil
}

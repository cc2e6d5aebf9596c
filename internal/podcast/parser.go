// Package podcast turns an episode page URL into normalized episode metadata.
package podcast

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"podnote/internal/domain"
	"podnote/internal/itunes"
)

var (
	xiaoyuzhouPattern = regexp.MustCompile(`xiaoyuzhou\.me|xiaoyuzhoufm\.com|xyzcdn\.net`)
	applePattern      = regexp.MustCompile(`podcasts\.apple\.com|itunes\.apple\.com`)
)

// Parser resolves episode URLs on the supported platforms.
type Parser struct {
	httpClient *http.Client
	itunes     *itunes.Client
	userAgent  string
}

// New creates a parser. A nil itunes client falls back to the public API.
func New(httpClient *http.Client, itunesClient *itunes.Client, userAgent string) *Parser {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if itunesClient == nil {
		itunesClient = itunes.NewClient(httpClient, "")
	}
	return &Parser{httpClient: httpClient, itunes: itunesClient, userAgent: userAgent}
}

// Detect identifies the hosting platform from the URL alone.
func Detect(rawURL string) string {
	switch {
	case xiaoyuzhouPattern.MatchString(rawURL):
		return domain.PlatformXiaoyuzhou
	case applePattern.MatchString(rawURL):
		return domain.PlatformApple
	default:
		return domain.PlatformUnknown
	}
}

// Parse fetches the episode and normalizes it. No retries are attempted.
func (p *Parser) Parse(ctx context.Context, rawURL string) (domain.PodcastMeta, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return domain.PodcastMeta{}, fmt.Errorf("%w: url is required", domain.ErrValidation)
	}

	switch Detect(rawURL) {
	case domain.PlatformXiaoyuzhou:
		return p.parseXiaoyuzhou(ctx, rawURL)
	case domain.PlatformApple:
		return p.parseApple(ctx, rawURL)
	default:
		return domain.PodcastMeta{}, fmt.Errorf("%w: currently supports xiaoyuzhou.me and podcasts.apple.com", domain.ErrUnsupportedPlatform)
	}
}

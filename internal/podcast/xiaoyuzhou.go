package podcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"podnote/internal/domain"
)

// BrowserUserAgent is sent to platforms that serve reduced pages to bots.
const BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var xyzAudioPattern = regexp.MustCompile(`https://media\.xyzcdn\.net/[^"'\s]+\.(m4a|mp3)`)

type nextData struct {
	Props struct {
		PageProps struct {
			Episode struct {
				Description string `json:"description"`
				Shownotes   string `json:"shownotes"`
			} `json:"episode"`
		} `json:"pageProps"`
	} `json:"props"`
}

func (p *Parser) parseXiaoyuzhou(ctx context.Context, pageURL string) (domain.PodcastMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.PodcastMeta{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.PodcastMeta{}, fmt.Errorf("%w: xiaoyuzhou page: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PodcastMeta{}, fmt.Errorf("%w: xiaoyuzhou page: %s", domain.ErrFetch, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PodcastMeta{}, fmt.Errorf("%w: read xiaoyuzhou page: %v", domain.ErrFetch, err)
	}
	html := string(body)

	audioURL := xyzAudioPattern.FindString(html)
	if audioURL == "" {
		return domain.PodcastMeta{}, fmt.Errorf("%w: no audio URL in xiaoyuzhou page", domain.ErrNotFound)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.PodcastMeta{}, fmt.Errorf("%w: parse xiaoyuzhou page: %v", domain.ErrFetch, err)
	}

	title := metaProperty(doc, "og:title")
	if title == "" {
		title = "Untitled Episode"
	}

	description := ""
	if raw := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text()); raw != "" {
		var data nextData
		if err := json.Unmarshal([]byte(raw), &data); err == nil {
			ep := data.Props.PageProps.Episode
			switch {
			case ep.Description != "":
				description = ep.Description
			case ep.Shownotes != "":
				description = truncateRunes(stripTags(ep.Shownotes), descriptionLimit)
			}
		}
	}
	if description == "" {
		description = metaProperty(doc, "og:description")
	}

	return domain.PodcastMeta{
		Title:       title,
		Description: description,
		CoverImage:  metaProperty(doc, "og:image"),
		AudioURL:    audioURL,
		Platform:    domain.PlatformXiaoyuzhou,
	}, nil
}

func metaProperty(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property="%s"]`, property)).First().Attr("content")
	return strings.TrimSpace(content)
}

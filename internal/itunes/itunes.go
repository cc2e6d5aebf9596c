package itunes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"podnote/internal/domain"
)

// Client interacts with the iTunes Lookup API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client using the provided HTTP client. The baseURL can be
// overridden for testing; if empty the public API endpoint is used.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://itunes.apple.com"
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// Podcast is the show-level metadata needed to resolve an episode.
type Podcast struct {
	ID      string
	Title   string
	FeedURL string
	Artwork string
}

// LookupPodcast retrieves metadata for a single podcast by its collection ID.
func (c *Client) LookupPodcast(ctx context.Context, id string) (Podcast, error) {
	endpoint, err := url.Parse(c.baseURL + "/lookup")
	if err != nil {
		return Podcast{}, err
	}
	q := endpoint.Query()
	q.Set("id", id)
	q.Set("entity", "podcast")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Podcast{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Podcast{}, fmt.Errorf("%w: itunes lookup: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Podcast{}, fmt.Errorf("%w: itunes lookup failed: %s", domain.ErrFetch, resp.Status)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Podcast{}, fmt.Errorf("%w: decode lookup response: %v", domain.ErrFetch, err)
	}
	if len(payload.Results) == 0 {
		return Podcast{}, fmt.Errorf("%w: podcast %s", domain.ErrNotFound, id)
	}

	item := payload.Results[0]
	artwork := item.ArtworkURL600
	if artwork == "" {
		artwork = item.ArtworkURL100
	}
	return Podcast{
		ID:      strconv.FormatInt(item.CollectionID, 10),
		Title:   item.CollectionName,
		FeedURL: item.FeedURL,
		Artwork: artwork,
	}, nil
}

type lookupResponse struct {
	Results []podcastResult `json:"results"`
}

type podcastResult struct {
	CollectionID   int64  `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	FeedURL        string `json:"feedUrl"`
	ArtworkURL100  string `json:"artworkUrl100"`
	ArtworkURL600  string `json:"artworkUrl600"`
}

package contentstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v62/github"

	"podnote/internal/domain"
)

// GitHub stores files in a repository through the contents API. File blob
// SHAs serve as version tokens.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	branch string
}

// GitHubOptions configures a GitHub store. BaseURL overrides the API endpoint.
type GitHubOptions struct {
	HTTPClient *http.Client
	Token      string
	Owner      string
	Repo       string
	Branch     string
	BaseURL    string
}

func NewGitHub(opts GitHubOptions) (*GitHub, error) {
	if strings.TrimSpace(opts.Owner) == "" || strings.TrimSpace(opts.Repo) == "" {
		return nil, errors.New("github owner and repo are required")
	}
	client := github.NewClient(opts.HTTPClient)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = base
	}
	branch := opts.Branch
	if branch == "" {
		branch = "main"
	}
	return &GitHub{client: client, owner: opts.Owner, repo: opts.Repo, branch: branch}, nil
}

func (g *GitHub) Get(ctx context.Context, path string) (File, error) {
	file, _, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path, &github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return File{}, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return File{}, fmt.Errorf("%w: github get: %v", domain.ErrUpstream, err)
	}
	if file == nil {
		return File{}, fmt.Errorf("%w: %s is a directory", domain.ErrValidation, path)
	}

	content, err := file.GetContent()
	if err != nil {
		return File{}, fmt.Errorf("%w: decode %s: %v", domain.ErrUpstream, path, err)
	}
	return File{Path: path, Content: []byte(content), Version: file.GetSHA()}, nil
}

func (g *GitHub) Put(ctx context.Context, path string, content []byte, version, message string) (Entry, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(g.branch),
	}

	var (
		result *github.RepositoryContentResponse
		resp   *github.Response
		err    error
	)
	if version == "" {
		result, resp, err = g.client.Repositories.CreateFile(ctx, g.owner, g.repo, path, opts)
	} else {
		opts.SHA = github.String(version)
		result, resp, err = g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, path, opts)
	}
	if err != nil {
		if isVersionConflict(resp, err, version) {
			return Entry{}, fmt.Errorf("%w: %s", domain.ErrVersionConflict, path)
		}
		return Entry{}, fmt.Errorf("%w: github put %s: %s", domain.ErrUpstream, path, errorMessage(err))
	}

	entry := Entry{Path: path}
	if result != nil && result.Content != nil {
		entry.URL = result.Content.GetHTMLURL()
		entry.Version = result.Content.GetSHA()
		if p := result.Content.GetPath(); p != "" {
			entry.Path = p
		}
	}
	return entry, nil
}

// isVersionConflict reports whether a failed write lost a race. A stale sha
// yields 409; creating a file that now exists yields 422 asking for a sha.
// Any other 422 is a rejected request.
func isVersionConflict(resp *github.Response, err error, version string) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusConflict:
		return true
	case http.StatusUnprocessableEntity:
		return version == "" && strings.Contains(strings.ToLower(errorMessage(err)), "sha")
	}
	return false
}

func errorMessage(err error) string {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Message != "" {
		return ghErr.Message
	}
	return err.Error()
}

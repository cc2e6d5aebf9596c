package contentstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"podnote/internal/domain"
)

type fakeRepo struct {
	mu    sync.Mutex
	files map[string]fakeBlob
	seq   int
	puts  int
	// reject, when set, fails every PUT with 422 and this message.
	reject string
}

type fakeBlob struct {
	content []byte
	sha     string
}

func newFakeRepo(t *testing.T) (*fakeRepo, *httptest.Server) {
	t.Helper()
	repo := &fakeRepo{files: map[string]fakeBlob{}}
	server := httptest.NewServer(http.HandlerFunc(repo.serve(t)))
	t.Cleanup(server.Close)
	return repo, server
}

func (f *fakeRepo) serve(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/repos/owner/site/contents/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, prefix)

		f.mu.Lock()
		defer f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("ref") != "main" {
				t.Errorf("unexpected ref %q", r.URL.Query().Get("ref"))
			}
			blob, ok := f.files[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"message":"Not Found"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"type":     "file",
				"encoding": "base64",
				"path":     path,
				"sha":      blob.sha,
				"content":  base64.StdEncoding.EncodeToString(blob.content),
			})
		case http.MethodPut:
			if r.Header.Get("Authorization") != "Bearer secret-token" {
				t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
			}
			f.puts++
			if f.reject != "" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]string{"message": f.reject})
				return
			}
			var body struct {
				Message string `json:"message"`
				Content []byte `json:"content"`
				SHA     string `json:"sha"`
				Branch  string `json:"branch"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode put: %v", err)
			}
			current, exists := f.files[path]
			switch {
			case exists && body.SHA == "":
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"message":"sha wasn't supplied"}`))
				return
			case exists && body.SHA != current.sha, !exists && body.SHA != "":
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"message":"does not match"}`))
				return
			}
			f.seq++
			sha := fmt.Sprintf("sha-%d", f.seq)
			f.files[path] = fakeBlob{content: body.Content, sha: sha}
			json.NewEncoder(w).Encode(map[string]any{
				"content": map[string]any{
					"path":     path,
					"sha":      sha,
					"html_url": "https://github.com/owner/site/blob/main/" + path,
				},
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func newGitHubStore(t *testing.T, server *httptest.Server) *GitHub {
	t.Helper()
	store, err := NewGitHub(GitHubOptions{
		HTTPClient: server.Client(),
		Token:      "secret-token",
		Owner:      "owner",
		Repo:       "site",
		BaseURL:    server.URL,
	})
	if err != nil {
		t.Fatalf("NewGitHub() error = %v", err)
	}
	return store
}

func TestGitHubCreateThenUpdate(t *testing.T) {
	repo, server := newFakeRepo(t)
	store := newGitHubStore(t, server)
	ctx := context.Background()

	if _, err := store.Get(ctx, "content/a.md"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	entry, err := store.Put(ctx, "content/a.md", []byte("v1"), "", "create")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.URL != "https://github.com/owner/site/blob/main/content/a.md" || entry.Version != "sha-1" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	file, err := store.Get(ctx, "content/a.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(file.Content) != "v1" || file.Version != "sha-1" {
		t.Fatalf("unexpected file %+v", file)
	}

	if _, err := store.Put(ctx, "content/a.md", []byte("v2"), file.Version, "update"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if string(repo.files["content/a.md"].content) != "v2" {
		t.Fatalf("expected v2 stored")
	}
}

func TestGitHubConflictsMapToVersionConflict(t *testing.T) {
	_, server := newFakeRepo(t)
	store := newGitHubStore(t, server)
	ctx := context.Background()

	if _, err := store.Put(ctx, "a.md", []byte("v1"), "", "create"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Put(ctx, "a.md", []byte("x"), "", "create again"); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected conflict on create over existing file, got %v", err)
	}
	if _, err := store.Put(ctx, "a.md", []byte("x"), "stale", "update"); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected conflict on stale sha, got %v", err)
	}
}

func TestGitHubValidationFailureIsUpstream(t *testing.T) {
	repo, server := newFakeRepo(t)
	repo.reject = "path contains a malformed path component"
	store := newGitHubStore(t, server)

	_, err := Update(context.Background(), store, "content/a.md", "create", 2, appendLine("x\n"))
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if errors.Is(err, domain.ErrSaveFailed) || errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("validation failure reported as a conflict: %v", err)
	}
	if !strings.Contains(err.Error(), "malformed path component") {
		t.Fatalf("upstream message lost: %v", err)
	}
	if repo.puts != 1 {
		t.Fatalf("puts = %d, want 1 (no retry)", repo.puts)
	}

	if _, err := store.Put(context.Background(), "content/a.md", []byte("x"), "sha-9", "update"); errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("422 on update must not be a conflict: %v", err)
	}
}

func TestGitHubUpdateRoundTrip(t *testing.T) {
	repo, server := newFakeRepo(t)
	store := newGitHubStore(t, server)

	for _, line := range []string{"a\n", "b\n"} {
		if _, err := Update(context.Background(), store, "log.txt", "append", 2, appendLine(line)); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}
	if got := string(repo.files["log.txt"].content); got != "a\nb\n" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestNewGitHubRequiresRepository(t *testing.T) {
	if _, err := NewGitHub(GitHubOptions{Owner: "owner"}); err == nil {
		t.Fatalf("expected error without repo")
	}
}

package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"testpilot-backend/internal/config"
)

// Client is the slice of the GitHub REST API the test generation flow consumes.
// Every call takes the caller's token; the client never stores it.
type Client interface {
	ListRepos(ctx context.Context, token string) ([]Repo, error)
	ListDirectory(ctx context.Context, token, owner, repo, dir string) ([]DirEntry, error)
	GetFileContent(ctx context.Context, token, owner, repo, path string) (FileContent, error)
	Download(ctx context.Context, token, rawURL string) ([]byte, error)
	GetBranchSHA(ctx context.Context, token, owner, repo, branch string) (string, error)
	CreateBranch(ctx context.Context, token, owner, repo, branch, sha string) error
	PutFile(ctx context.Context, token, owner, repo string, req PutFileRequest) error
	OpenPullRequest(ctx context.Context, token, owner, repo string, req NewPullRequest) (PullRequest, error)
}

// PutFileRequest creates a file on a branch.
// Content is the raw file body; the client applies the base64 transport encoding.
type PutFileRequest struct {
	Path    string
	Branch  string
	Message string
	Content []byte
}

type NewPullRequest struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
}

// APIClient implements Client using direct GitHub REST API calls.
// Outbound calls share an optional token-bucket limiter; nothing is retried.
type APIClient struct {
	httpClient *http.Client
	baseAPI    string
	limiter    *rate.Limiter
}

func NewAPIClient(cfg config.Config) *APIClient {
	base := cfg.GitHubAPIURL
	if base == "" {
		base = "https://api.github.com"
	}
	c := &APIClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseAPI:    strings.TrimRight(base, "/"),
	}
	if cfg.GitHubRateLimit > 0 {
		burst := cfg.GitHubRateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.GitHubRateLimit), burst)
	}
	return c
}

// ---- Helpers ----

func (c *APIClient) do(ctx context.Context, token, method, target string, body any) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	if strings.HasPrefix(target, "/") {
		target = c.baseAPI + target
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	if token != "" && c.sendsToken(req.URL) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// sendsToken limits the credential to the API host and GitHub's raw content hosts.
func (c *APIClient) sendsToken(u *url.URL) bool {
	base, err := url.Parse(c.baseAPI)
	if err == nil && strings.EqualFold(base.Host, u.Host) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".githubusercontent.com")
}

// call performs one request and decodes a 2xx JSON body into out (if non-nil).
func (c *APIClient) call(ctx context.Context, op, token, method, target string, body, out any) error {
	resp, err := c.do(ctx, token, method, target, body)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{Op: op, Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// readErrorMessage prefers GitHub's {"message": ...} and falls back to the raw body.
func readErrorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var ghErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &ghErr) == nil && ghErr.Message != "" {
		return ghErr.Message
	}
	return strings.TrimSpace(string(b))
}

// escapePath escapes each segment of a repository path, keeping the separators.
func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

// ---- Implementations ----

type repoPayload struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (c *APIClient) ListRepos(ctx context.Context, token string) ([]Repo, error) {
	q := url.Values{}
	q.Set("per_page", "100")
	q.Set("sort", "updated")
	var payload []repoPayload
	if err := c.call(ctx, "list repos", token, http.MethodGet, "/user/repos?"+q.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	out := make([]Repo, 0, len(payload))
	for _, p := range payload {
		out = append(out, Repo{
			ID:            p.ID,
			Name:          p.Name,
			FullName:      p.FullName,
			Owner:         p.Owner.Login,
			DefaultBranch: p.DefaultBranch,
			Private:       p.Private,
		})
	}
	return out, nil
}

func (c *APIClient) ListDirectory(ctx context.Context, token, owner, repo, dir string) ([]DirEntry, error) {
	target := repoPath(owner, repo) + "/contents"
	if d := strings.Trim(dir, "/"); d != "" {
		target += "/" + escapePath(d)
	}
	var entries []DirEntry
	if err := c.call(ctx, "list directory", token, http.MethodGet, target, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *APIClient) GetFileContent(ctx context.Context, token, owner, repo, path string) (FileContent, error) {
	var fc FileContent
	target := repoPath(owner, repo) + "/contents/" + escapePath(path)
	if err := c.call(ctx, "get file content", token, http.MethodGet, target, nil, &fc); err != nil {
		return FileContent{}, err
	}
	return fc, nil
}

func (c *APIClient) Download(ctx context.Context, token, rawURL string) ([]byte, error) {
	resp, err := c.do(ctx, token, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &UpstreamError{Op: "download", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Op: "download", Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Op: "download", Status: resp.StatusCode, Err: err}
	}
	return b, nil
}

type refPayload struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

func (c *APIClient) GetBranchSHA(ctx context.Context, token, owner, repo, branch string) (string, error) {
	var ref refPayload
	target := repoPath(owner, repo) + "/git/ref/heads/" + escapePath(branch)
	if err := c.call(ctx, "get branch ref", token, http.MethodGet, target, nil, &ref); err != nil {
		return "", err
	}
	if ref.Object.SHA == "" {
		return "", &UpstreamError{Op: "get branch ref", Status: http.StatusOK, Message: "ref has no commit sha"}
	}
	return ref.Object.SHA, nil
}

func (c *APIClient) CreateBranch(ctx context.Context, token, owner, repo, branch, sha string) error {
	body := map[string]string{"ref": "refs/heads/" + branch, "sha": sha}
	return c.call(ctx, "create branch ref", token, http.MethodPost, repoPath(owner, repo)+"/git/refs", body, nil)
}

func (c *APIClient) PutFile(ctx context.Context, token, owner, repo string, req PutFileRequest) error {
	body := map[string]string{
		"message": req.Message,
		"content": base64Encode(req.Content),
		"branch":  req.Branch,
	}
	target := repoPath(owner, repo) + "/contents/" + escapePath(req.Path)
	return c.call(ctx, "put file content", token, http.MethodPut, target, body, nil)
}

func (c *APIClient) OpenPullRequest(ctx context.Context, token, owner, repo string, req NewPullRequest) (PullRequest, error) {
	var pr PullRequest
	if err := c.call(ctx, "open pull request", token, http.MethodPost, repoPath(owner, repo)+"/pulls", req, &pr); err != nil {
		return PullRequest{}, err
	}
	return pr, nil
}

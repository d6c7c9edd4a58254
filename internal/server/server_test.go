package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"testpilot-backend/internal/config"
	"testpilot-backend/internal/github"
	"testpilot-backend/internal/testgen"
	"testpilot-backend/internal/types"
)

type fakeHosting struct {
	mu        sync.Mutex
	files     map[string]string
	tokens    []string
	branchErr error
	calls     []string
}

func (f *fakeHosting) note(call, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.tokens = append(f.tokens, token)
}

func (f *fakeHosting) ListRepos(ctx context.Context, token string) ([]github.Repo, error) {
	f.note("ListRepos", token)
	return []github.Repo{{ID: 1, Name: "demo", FullName: "octo/demo", Owner: "octo", DefaultBranch: "main"}}, nil
}

func (f *fakeHosting) ListDirectory(ctx context.Context, token, owner, repo, dir string) ([]github.DirEntry, error) {
	f.note("ListDirectory:"+dir, token)
	return []github.DirEntry{
		{Name: "a.ts", Path: "a.ts", Type: "file"},
		{Name: "README.md", Path: "README.md", Type: "file"},
		{Name: "src", Path: "src", Type: "dir"},
	}, nil
}

func (f *fakeHosting) GetFileContent(ctx context.Context, token, owner, repo, path string) (github.FileContent, error) {
	f.note("GetFileContent:"+path, token)
	content, ok := f.files[path]
	if !ok {
		return github.FileContent{}, &github.UpstreamError{Op: "get file content", Status: http.StatusNotFound, Message: "Not Found"}
	}
	return github.FileContent{Type: "file", Encoding: "base64", Content: base64.StdEncoding.EncodeToString([]byte(content))}, nil
}

func (f *fakeHosting) Download(ctx context.Context, token, rawURL string) ([]byte, error) {
	return nil, nil
}

func (f *fakeHosting) GetBranchSHA(ctx context.Context, token, owner, repo, branch string) (string, error) {
	f.note("GetBranchSHA:"+branch, token)
	if f.branchErr != nil {
		return "", f.branchErr
	}
	return "sha", nil
}

func (f *fakeHosting) CreateBranch(ctx context.Context, token, owner, repo, branch, sha string) error {
	f.note("CreateBranch", token)
	return nil
}

func (f *fakeHosting) PutFile(ctx context.Context, token, owner, repo string, req github.PutFileRequest) error {
	f.note("PutFile:"+string(req.Content), token)
	return nil
}

func (f *fakeHosting) OpenPullRequest(ctx context.Context, token, owner, repo string, req github.NewPullRequest) (github.PullRequest, error) {
	f.note("OpenPullRequest", token)
	return github.PullRequest{Number: 3, HTMLURL: "https://github.com/octo/demo/pull/3"}, nil
}

type fakeCompleter struct {
	text string
	err  error
}

func (c *fakeCompleter) Model() string { return "fake" }

func (c *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return c.text, c.err
}

func newTestServer(t *testing.T, hosting *fakeHosting, completer *fakeCompleter, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.Config{
		AllowedOrigin:    "*",
		FrontendURL:      "http://app.local/",
		SourceExtensions: []string{".ts", ".py"},
		BaseBranch:       "main",
		TestDir:          "test",
		BranchPrefix:     "test-case-",
		FanOutLimit:      2,
		RequestTimeout:   5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg, Deps{
		Hosting:   hosting,
		Completer: completer,
		Logger:    zap.NewNop(),
		Branches:  testgen.NewBranchNamer("test-case-", func() time.Time { return time.Unix(0, 42) }),
	})
	require.NoError(t, err)
	return s.Router()
}

func doJSON(t *testing.T, h http.Handler, method, target, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeHosting{}, &fakeCompleter{}, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	h := newTestServer(t, &fakeHosting{}, &fakeCompleter{}, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/test-cases", "", types.TestCasesRequest{
		RepoTarget: types.RepoTarget{Owner: "octo", Repo: "demo"}, Files: []string{"a.ts"},
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBareSchemeWithoutFallbackIsUnauthorized(t *testing.T) {
	hosting := &fakeHosting{}
	h := newTestServer(t, hosting, &fakeCompleter{}, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/repos", "Bearer", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, hosting.calls)
}

func TestTokenSchemesAndFallback(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		fallback string
		want     string
	}{
		{name: "raw", header: "gho_raw", want: "gho_raw"},
		{name: "bearer", header: "Bearer gho_b", want: "gho_b"},
		{name: "token scheme", header: "token gho_t", want: "gho_t"},
		{name: "config fallback", fallback: "ghp_static", want: "ghp_static"},
		{name: "bare scheme falls back", header: "Bearer", fallback: "ghp_static", want: "ghp_static"},
		{name: "scheme with blank credential falls back", header: "token   ", fallback: "ghp_static", want: "ghp_static"},
		{name: "scheme-like raw token kept", header: "tokenish123", want: "tokenish123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hosting := &fakeHosting{}
			h := newTestServer(t, hosting, &fakeCompleter{}, func(c *config.Config) { c.GitHubToken = tt.fallback })

			rec := doJSON(t, h, http.MethodGet, "/api/repos", tt.header, nil)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{tt.want}, hosting.tokens)
		})
	}
}

func TestListFilesFiltersExtensions(t *testing.T) {
	hosting := &fakeHosting{}
	h := newTestServer(t, hosting, &fakeCompleter{}, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/repos/octo/demo/files?path=src", "tok", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"path":"a.ts","name":"a.ts"}]`, rec.Body.String())
	assert.Equal(t, []string{"ListDirectory:src"}, hosting.calls)
}

func TestTestCasesReturnsOneEntryPerFileUnderFailure(t *testing.T) {
	hosting := &fakeHosting{files: map[string]string{"a.ts": "export {}"}}
	h := newTestServer(t, hosting, &fakeCompleter{text: "not json"}, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/test-cases", "tok", types.TestCasesRequest{
		RepoTarget: types.RepoTarget{Owner: "octo", Repo: "demo"}, Files: []string{"a.ts", "gone.ts"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var got []types.TestCaseProposal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Default Test Case", got[0].Title)
	assert.Equal(t, "a.ts", got[0].FilePath)
	assert.Equal(t, testgen.ErrorTestCaseTitle, got[1].Title)
	assert.Equal(t, "gone.ts", got[1].FilePath)
}

func TestTestCasesValidation(t *testing.T) {
	h := newTestServer(t, &fakeHosting{}, &fakeCompleter{}, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/test-cases", "tok", map[string]any{"owner": "octo", "repo": "demo", "files": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Files")

	req := httptest.NewRequest(http.MethodPost, "/api/test-cases", strings.NewReader("{"))
	req.Header.Set("Authorization", "tok")
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestTestCode(t *testing.T) {
	hosting := &fakeHosting{files: map[string]string{"a.ts": "export const a = 1"}}
	h := newTestServer(t, hosting, &fakeCompleter{text: "```ts\ntest('a', () => {});\n```"}, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/test-code", "tok", types.TestCodeRequest{
		RepoTarget: types.RepoTarget{Owner: "octo", Repo: "demo"},
		TestCase:   types.TestCaseProposal{Title: "a", Summary: "s", FilePath: "a.ts"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":"test('a', () => {});"}`, rec.Body.String())
}

func TestTestCodeUpstreamNotFound(t *testing.T) {
	h := newTestServer(t, &fakeHosting{}, &fakeCompleter{text: "x"}, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/test-code", "tok", types.TestCodeRequest{
		RepoTarget: types.RepoTarget{Owner: "octo", Repo: "demo"},
		TestCase:   types.TestCaseProposal{Title: "a", FilePath: "missing.ts"},
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.UpstreamStatus)
}

func TestCreatePullRequestWithProvidedCode(t *testing.T) {
	hosting := &fakeHosting{}
	h := newTestServer(t, hosting, &fakeCompleter{}, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/pull-requests", "tok", types.PullRequestRequest{
		RepoTarget: types.RepoTarget{Owner: "octo", Repo: "demo"},
		TestCase:   types.TestCaseProposal{Title: "adds", Summary: "s", FilePath: "src/add.ts"},
		Code:       "test('adds')",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp types.PullRequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://github.com/octo/demo/pull/3", resp.PRURL)
	assert.Equal(t, "test-case-42", resp.Branch)
	assert.Equal(t, "test/src/add_test.ts", resp.Path)
	assert.Equal(t, []string{"GetBranchSHA:main", "CreateBranch", "PutFile:test('adds')", "OpenPullRequest"}, hosting.calls)
}

func TestCreatePullRequestGeneratesMissingCode(t *testing.T) {
	hosting := &fakeHosting{files: map[string]string{"a.py": "def f(): pass"}}
	h := newTestServer(t, hosting, &fakeCompleter{text: "```python\ndef test_f():\n    f()\n```"}, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/pull-requests", "tok", types.PullRequestRequest{
		RepoTarget: types.RepoTarget{Owner: "octo", Repo: "demo"},
		TestCase:   types.TestCaseProposal{Title: "f runs", FilePath: "a.py"},
		BaseBranch: "develop",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "GetFileContent:a.py", hosting.calls[0])
	assert.Equal(t, "GetBranchSHA:develop", hosting.calls[1])
	assert.Contains(t, hosting.calls, "PutFile:def test_f():\n    f()")
}

func TestCreatePullRequestReportsFailedStep(t *testing.T) {
	hosting := &fakeHosting{branchErr: &github.UpstreamError{Op: "get branch ref", Status: http.StatusUnauthorized, Message: "Bad credentials"}}
	h := newTestServer(t, hosting, &fakeCompleter{}, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/pull-requests", "tok", types.PullRequestRequest{
		RepoTarget: types.RepoTarget{Owner: "octo", Repo: "demo"},
		TestCase:   types.TestCaseProposal{Title: "t", FilePath: "a.ts"},
		Code:       "x",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testgen.StepResolveBase, resp.Step)
	assert.Equal(t, http.StatusUnauthorized, resp.UpstreamStatus)
	assert.Contains(t, resp.Error, "Bad credentials")
	assert.Equal(t, []string{"GetBranchSHA:main"}, hosting.calls)
}

func TestGitHubAuthNotConfigured(t *testing.T) {
	h := newTestServer(t, &fakeHosting{}, &fakeCompleter{}, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/github/auth", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGitHubOAuthFlow(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer"}`))
	}))
	t.Cleanup(tokenSrv.Close)

	cfg := config.Config{
		AllowedOrigin:      "*",
		FrontendURL:        "http://app.local/",
		GitHubClientID:     "cid",
		GitHubClientSecret: "secret",
		GitHubRedirectURL:  "http://api.local/api/github/callback",
		GitHubScopes:       []string{"public_repo"},
	}
	s, err := NewServer(cfg, Deps{Hosting: &fakeHosting{}, Completer: &fakeCompleter{}, Logger: zap.NewNop()})
	require.NoError(t, err)
	s.oauthCfg.Endpoint.TokenURL = tokenSrv.URL
	h := s.Router()

	start := doJSON(t, h, http.MethodGet, "/api/github/auth", "", nil)
	require.Equal(t, http.StatusFound, start.Code)
	loc, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", loc.Host)
	assert.Equal(t, "cid", loc.Query().Get("client_id"))
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	cookies := start.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, state, cookies[0].Value)

	callback := func(withCookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/github/callback?code=the-code&state="+url.QueryEscape(state), nil)
		if withCookie {
			req.AddCookie(cookies[0])
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, callback(false).Code)

	done := callback(true)
	require.Equal(t, http.StatusFound, done.Code)
	assert.Equal(t, "http://app.local/?token=gho_abc", done.Header().Get("Location"))

	assert.Equal(t, http.StatusBadRequest, callback(true).Code, "state is single-use")
}

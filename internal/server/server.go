package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"testpilot-backend/internal/config"
	"testpilot-backend/internal/github"
	"testpilot-backend/internal/llm"
	"testpilot-backend/internal/store"
	"testpilot-backend/internal/testgen"
	"testpilot-backend/internal/types"
)

// Deps are the collaborators the server wires into its handlers.
type Deps struct {
	Hosting   github.Client
	Completer llm.Completer
	Prompts   *llm.PromptSet
	Logger    *zap.Logger
	// Branches overrides the submission branch namer; nil uses the wall clock.
	Branches *testgen.BranchNamer
}

type Server struct {
	router    *chi.Mux
	cfg       config.Config
	logger    *zap.Logger
	hosting   github.Client
	pipeline  *testgen.Pipeline
	submitter *testgen.Submitter
	oauthCfg  *oauth2.Config
	states    *store.StateStore
	validate  *validator.Validate
}

func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Hosting == nil || deps.Completer == nil {
		return nil, fmt.Errorf("hosting client and completer are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prompts := deps.Prompts
	if prompts == nil {
		var err error
		prompts, err = llm.LoadPromptSet(cfg.PromptsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// OAuth2 config (may be partially empty if env not set; handlers will check)
	oCfg := &oauth2.Config{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURL:  cfg.GitHubRedirectURL,
		Scopes:       cfg.GitHubScopes,
		Endpoint:     oauthgithub.Endpoint,
	}

	s := &Server{
		router:    r,
		cfg:       cfg,
		logger:    logger,
		hosting:   deps.Hosting,
		pipeline:  testgen.NewPipeline(deps.Hosting, deps.Completer, prompts, cfg.FanOutLimit, logger),
		submitter: testgen.NewSubmitter(deps.Hosting, cfg, deps.Branches, logger),
		oauthCfg:  oCfg,
		states:    store.NewStateStore(StateCookieMaxAge),
		validate:  validator.New(),
	}
	r.Use(s.requestLogger)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	// GitHub OAuth
	s.router.Get("/api/github/auth", s.handleGitHubAuth)
	s.router.Get("/api/github/callback", s.handleGitHubCallback)
	// Repository browsing
	s.router.Get("/api/repos", s.handleListRepos)
	s.router.Get("/api/repos/{owner}/{repo}/files", s.handleListFiles)
	// Test generation
	s.router.Post("/api/test-cases", s.handleTestCases)
	s.router.Post("/api/test-code", s.handleTestCode)
	s.router.Post("/api/pull-requests", s.handleCreatePullRequest)
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, types.ErrorResponse{Error: msg})
}

// writeFailure maps pipeline and submission errors onto an HTTP answer. Credential
// and not-found answers from GitHub pass through; other upstream trouble is a 502.
func (s *Server) writeFailure(w http.ResponseWriter, err error, msg string) {
	resp := types.ErrorResponse{Error: msg + ": " + err.Error()}
	code := http.StatusBadGateway

	var se *testgen.SubmissionError
	if errors.As(err, &se) {
		resp.Step = se.Step
	}
	if st := github.StatusOf(err); st != 0 {
		resp.UpstreamStatus = st
		switch st {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			code = st
		}
	}
	switch {
	case errors.Is(err, testgen.ErrInvalidSubmission):
		code = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	s.writeJSON(w, code, resp)
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(fields, ", ")
}

// requestToken returns the caller's GitHub credential. The Authorization header is
// opaque apart from an optional "Bearer"/"token" scheme; GITHUB_TOKEN is the fallback.
func (s *Server) requestToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	for _, scheme := range []string{"bearer", "token"} {
		if len(h) < len(scheme) || !strings.EqualFold(h[:len(scheme)], scheme) {
			continue
		}
		rest := h[len(scheme):]
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			h = strings.TrimSpace(rest)
			break
		}
	}
	if h == "" {
		return s.cfg.GitHubToken
	}
	return h
}

// withToken resolves the credential or answers 401.
func (s *Server) withToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := s.requestToken(r)
	if token == "" {
		s.writeError(w, http.StatusUnauthorized, "not authenticated with GitHub")
		return "", false
	}
	return token, true
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
}

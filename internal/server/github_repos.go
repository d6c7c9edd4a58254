package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"testpilot-backend/internal/github"
)

// GET /api/repos
func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	token, ok := s.withToken(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	repos, err := s.hosting.ListRepos(ctx, token)
	if err != nil {
		s.logger.Warn("list repos failed", zap.Error(err))
		s.writeFailure(w, err, "failed to list repositories")
		return
	}
	s.writeJSON(w, http.StatusOK, repos)
}

// GET /api/repos/{owner}/{repo}/files?path=
// Lists the directory's files with recognized source extensions.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	token, ok := s.withToken(w, r)
	if !ok {
		return
	}
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")
	if owner == "" || repo == "" {
		s.writeError(w, http.StatusBadRequest, "invalid repo")
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	files, err := github.ListSourceFiles(ctx, s.hosting, token, owner, repo, r.URL.Query().Get("path"), s.cfg.SourceExtensions)
	if err != nil {
		s.logger.Warn("list files failed", zap.String("repo", owner+"/"+repo), zap.Error(err))
		s.writeFailure(w, err, "failed to list files")
		return
	}
	s.writeJSON(w, http.StatusOK, files)
}

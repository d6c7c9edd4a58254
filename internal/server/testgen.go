package server

import (
	"net/http"

	"go.uber.org/zap"

	"testpilot-backend/internal/types"
)

// POST /api/test-cases
// Always answers 200 for a valid request: failed files appear as fallback proposals.
func (s *Server) handleTestCases(w http.ResponseWriter, r *http.Request) {
	token, ok := s.withToken(w, r)
	if !ok {
		return
	}
	var req types.TestCasesRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	proposals := s.pipeline.SuggestTestCases(ctx, token, req.Owner, req.Repo, req.Files)
	s.writeJSON(w, http.StatusOK, proposals)
}

// POST /api/test-code
func (s *Server) handleTestCode(w http.ResponseWriter, r *http.Request) {
	token, ok := s.withToken(w, r)
	if !ok {
		return
	}
	var req types.TestCodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	code, err := s.pipeline.GenerateCode(ctx, token, req.Owner, req.Repo, req.TestCase)
	if err != nil {
		s.logger.Warn("code generation failed", zap.String("file", req.TestCase.FilePath), zap.Error(err))
		s.writeFailure(w, err, "failed to generate test code")
		return
	}
	s.writeJSON(w, http.StatusOK, code)
}

// POST /api/pull-requests
// Generates code first when the request carries none.
func (s *Server) handleCreatePullRequest(w http.ResponseWriter, r *http.Request) {
	token, ok := s.withToken(w, r)
	if !ok {
		return
	}
	var req types.PullRequestRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	code := req.Code
	if code == "" {
		gen, err := s.pipeline.GenerateCode(ctx, token, req.Owner, req.Repo, req.TestCase)
		if err != nil {
			s.logger.Warn("code generation failed", zap.String("file", req.TestCase.FilePath), zap.Error(err))
			s.writeFailure(w, err, "failed to generate test code")
			return
		}
		code = gen.Text
	}
	cr := s.submitter.Plan(req.Owner, req.Repo, req.BaseBranch, req.TestCase, code)
	res, err := s.submitter.Submit(ctx, token, cr)
	if err != nil {
		s.writeFailure(w, err, "failed to create pull request")
		return
	}
	s.writeJSON(w, http.StatusCreated, types.PullRequestResponse{
		PRURL:  res.PRURL,
		Number: res.Number,
		Branch: res.Branch,
		Path:   res.Path,
	})
}

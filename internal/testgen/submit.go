package testgen

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"testpilot-backend/internal/config"
	"testpilot-backend/internal/github"
	"testpilot-backend/internal/types"
)

// Submission workflow steps, in execution order.
const (
	StepResolveBase  = "resolve-base-ref"
	StepCreateBranch = "create-branch"
	StepCommitFile   = "commit-file"
	StepOpenPR       = "open-pull-request"
)

// SubmissionError reports the first failed step. Earlier steps are not undone, so a
// failure after StepCreateBranch leaves the new branch behind.
type SubmissionError struct {
	Step   string
	Branch string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed at %s: %v", e.Step, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

var ErrInvalidSubmission = errors.New("invalid submission")

// ChangeRequest is everything needed to land one generated test file.
type ChangeRequest struct {
	Owner         string
	Repo          string
	BaseBranch    string
	NewBranchName string
	TargetPath    string
	CommitMessage string
	Content       string
	PRTitle       string
	PRBody        string
}

type SubmitResult struct {
	PRURL  string
	Number int
	Branch string
	Path   string
}

// BranchNamer hands out branch names derived from a nanosecond timestamp. Names are
// strictly increasing within the process even if the clock stalls or steps back.
type BranchNamer struct {
	prefix string
	now    func() time.Time
	last   atomic.Int64
}

func NewBranchNamer(prefix string, now func() time.Time) *BranchNamer {
	if now == nil {
		now = time.Now
	}
	return &BranchNamer{prefix: prefix, now: now}
}

func (b *BranchNamer) Next() string {
	for {
		prev := b.last.Load()
		n := b.now().UnixNano()
		if n <= prev {
			n = prev + 1
		}
		if b.last.CompareAndSwap(prev, n) {
			return b.prefix + strconv.FormatInt(n, 10)
		}
	}
}

// TestFilePath maps a source path to its generated test file: the extension is
// replaced by "_test" plus the original extension and the result is placed under dir.
// Files without an extension get ".js".
func TestFilePath(dir, source string) string {
	source = strings.TrimPrefix(path.Clean("/"+source), "/")
	ext := path.Ext(source)
	stem := strings.TrimSuffix(source, ext)
	if ext == "" {
		ext = ".js"
	}
	return path.Join(dir, stem+"_test"+ext)
}

// Submitter lands generated test code as a branch, a commit and a pull request.
type Submitter struct {
	hosting    github.Client
	baseBranch string
	testDir    string
	branches   *BranchNamer
	logger     *zap.Logger
}

func NewSubmitter(hosting github.Client, cfg config.Config, branches *BranchNamer, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if branches == nil {
		branches = NewBranchNamer(cfg.BranchPrefix, nil)
	}
	base := cfg.BaseBranch
	if base == "" {
		base = "main"
	}
	return &Submitter{
		hosting:    hosting,
		baseBranch: base,
		testDir:    cfg.TestDir,
		branches:   branches,
		logger:     logger,
	}
}

// Plan derives the change request for one proposal. Each call picks a fresh branch name.
func (s *Submitter) Plan(owner, repo, baseBranch string, tc types.TestCaseProposal, code string) ChangeRequest {
	if baseBranch == "" {
		baseBranch = s.baseBranch
	}
	return ChangeRequest{
		Owner:         owner,
		Repo:          repo,
		BaseBranch:    baseBranch,
		NewBranchName: s.branches.Next(),
		TargetPath:    TestFilePath(s.testDir, tc.FilePath),
		CommitMessage: "Add test case for " + tc.Title,
		Content:       code,
		PRTitle:       "Add test case: " + tc.Title,
		PRBody:        fmt.Sprintf("Generated test case for %s\n\n%s", tc.FilePath, tc.Summary),
	}
}

// Submit runs resolve-base → create-branch → commit → open-PR, stopping at the first
// failure. Nothing is retried or rolled back.
func (s *Submitter) Submit(ctx context.Context, token string, cr ChangeRequest) (SubmitResult, error) {
	if cr.Owner == "" || cr.Repo == "" || cr.TargetPath == "" || strings.TrimSpace(cr.Content) == "" {
		return SubmitResult{}, fmt.Errorf("%w: owner, repo, target path and content are required", ErrInvalidSubmission)
	}
	log := s.logger.With(
		zap.String("repo", cr.Owner+"/"+cr.Repo),
		zap.String("branch", cr.NewBranchName),
		zap.String("path", cr.TargetPath),
	)
	fail := func(step string, err error) (SubmitResult, error) {
		log.Warn("submission step failed", zap.String("step", step), zap.Error(err))
		submissions.WithLabelValues(step).Inc()
		return SubmitResult{}, &SubmissionError{Step: step, Branch: cr.NewBranchName, Err: err}
	}

	sha, err := s.hosting.GetBranchSHA(ctx, token, cr.Owner, cr.Repo, cr.BaseBranch)
	if err != nil {
		return fail(StepResolveBase, err)
	}
	if err := s.hosting.CreateBranch(ctx, token, cr.Owner, cr.Repo, cr.NewBranchName, sha); err != nil {
		return fail(StepCreateBranch, err)
	}
	err = s.hosting.PutFile(ctx, token, cr.Owner, cr.Repo, github.PutFileRequest{
		Path:    cr.TargetPath,
		Branch:  cr.NewBranchName,
		Message: cr.CommitMessage,
		Content: []byte(cr.Content),
	})
	if err != nil {
		return fail(StepCommitFile, err)
	}
	pr, err := s.hosting.OpenPullRequest(ctx, token, cr.Owner, cr.Repo, github.NewPullRequest{
		Title: cr.PRTitle,
		Head:  cr.NewBranchName,
		Base:  cr.BaseBranch,
		Body:  cr.PRBody,
	})
	if err != nil {
		return fail(StepOpenPR, err)
	}
	submissions.WithLabelValues("ok").Inc()
	log.Info("pull request opened", zap.String("url", pr.HTMLURL), zap.Int("number", pr.Number))
	return SubmitResult{PRURL: pr.HTMLURL, Number: pr.Number, Branch: cr.NewBranchName, Path: cr.TargetPath}, nil
}

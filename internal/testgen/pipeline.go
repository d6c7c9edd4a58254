package testgen

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"testpilot-backend/internal/github"
	"testpilot-backend/internal/llm"
	"testpilot-backend/internal/types"
)

const ErrorTestCaseTitle = "Error Test Case"

// Pipeline runs fetch → prompt → completion → sanitize for source files.
type Pipeline struct {
	hosting   github.Client
	completer llm.Completer
	prompts   *llm.PromptSet
	// fanOut caps concurrent file pipelines per batch; <= 0 means one goroutine per file
	fanOut int
	logger *zap.Logger
}

func NewPipeline(hosting github.Client, completer llm.Completer, prompts *llm.PromptSet, fanOut int, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		hosting:   hosting,
		completer: completer,
		prompts:   prompts,
		fanOut:    fanOut,
		logger:    logger,
	}
}

// SuggestTestCases fans the per-file pipeline out over paths and returns every
// file's proposals concatenated in input order. A failing file contributes a single
// "Error Test Case" proposal instead of being dropped, so each path is represented
// at least once. Paths are not deduplicated.
func (p *Pipeline) SuggestTestCases(ctx context.Context, token, owner, repo string, paths []string) []types.TestCaseProposal {
	batchSize.Observe(float64(len(paths)))
	results := make([][]types.TestCaseProposal, len(paths))

	var g errgroup.Group
	if p.fanOut > 0 {
		g.SetLimit(p.fanOut)
	}
	for i, path := range paths {
		g.Go(func() error {
			results[i] = p.suggestForFile(ctx, token, owner, repo, path)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]types.TestCaseProposal, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (p *Pipeline) suggestForFile(ctx context.Context, token, owner, repo, path string) (out []types.TestCaseProposal) {
	log := p.logger.With(zap.String("repo", owner+"/"+repo), zap.String("file", path))
	defer func() {
		if r := recover(); r != nil {
			log.Error("file pipeline panicked", zap.Any("panic", r))
			filePipelines.WithLabelValues("error").Inc()
			out = errorProposal(path, fmt.Errorf("internal error: %v", r))
		}
	}()

	content, err := github.FetchFileText(ctx, p.hosting, token, owner, repo, path)
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		filePipelines.WithLabelValues("error").Inc()
		return errorProposal(path, err)
	}
	text, err := p.completer.Complete(ctx, p.prompts.SuggestionPrompt(content, llm.FileMeta{Path: path}))
	if err != nil {
		log.Warn("completion failed", zap.Error(err))
		filePipelines.WithLabelValues("error").Inc()
		return errorProposal(path, err)
	}
	proposals, err := llm.ParseProposals(text, path)
	var malformed *llm.MalformedResponseError
	if errors.As(err, &malformed) {
		log.Warn("unparseable suggestions, using default proposal", zap.String("reason", malformed.Reason))
		filePipelines.WithLabelValues("fallback").Inc()
		return proposals
	}
	filePipelines.WithLabelValues("ok").Inc()
	log.Debug("suggestions parsed", zap.Int("count", len(proposals)))
	return proposals
}

func errorProposal(path string, err error) []types.TestCaseProposal {
	return []types.TestCaseProposal{{
		Title:    ErrorTestCaseTitle,
		Summary:  "Failed to process file: " + err.Error(),
		FilePath: path,
	}}
}

// GenerateCode produces test code for one proposal. Failures are returned as-is:
// *github.UpstreamFetchError for the source read, *llm.CompletionError for the backend.
func (p *Pipeline) GenerateCode(ctx context.Context, token, owner, repo string, tc types.TestCaseProposal) (types.GeneratedCode, error) {
	content, err := github.FetchFileText(ctx, p.hosting, token, owner, repo, tc.FilePath)
	if err != nil {
		return types.GeneratedCode{}, err
	}
	text, err := p.completer.Complete(ctx, p.prompts.CodePrompt(tc, content))
	if err != nil {
		return types.GeneratedCode{}, err
	}
	code := llm.StripFences(text)
	if code == "" {
		return types.GeneratedCode{}, &llm.CompletionError{
			Provider: "completion",
			Model:    p.completer.Model(),
			Err:      errors.New("completion contained no code"),
		}
	}
	return types.GeneratedCode{Text: code}, nil
}

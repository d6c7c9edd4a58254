package types

// TestCaseProposal is one suggested test case for a source file.
// FilePath always names the file the suggestion was generated from.
type TestCaseProposal struct {
	Title    string `json:"title" validate:"required"`
	Summary  string `json:"summary"`
	FilePath string `json:"filePath" validate:"required"`
}

// GeneratedCode is test code with formatting artifacts removed.
type GeneratedCode struct {
	Text string `json:"code"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// Step names the failed submission step, when applicable.
	Step string `json:"step,omitempty"`
	// UpstreamStatus is the hosting API status behind the failure, when known.
	UpstreamStatus int `json:"upstreamStatus,omitempty"`
}

type RepoTarget struct {
	Owner string `json:"owner" validate:"required"`
	Repo  string `json:"repo" validate:"required"`
}

// TestCasesRequest asks for proposals covering every listed file.
// Paths are processed in order; duplicates are not removed.
type TestCasesRequest struct {
	RepoTarget
	Files []string `json:"files" validate:"required,min=1,dive,required"`
}

type TestCodeRequest struct {
	RepoTarget
	TestCase TestCaseProposal `json:"testCase"`
}

// PullRequestRequest submits one proposal. When Code is empty it is generated first.
type PullRequestRequest struct {
	RepoTarget
	TestCase   TestCaseProposal `json:"testCase"`
	Code       string           `json:"code,omitempty"`
	BaseBranch string           `json:"baseBranch,omitempty"`
}

type PullRequestResponse struct {
	PRURL  string `json:"prUrl"`
	Number int    `json:"number"`
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

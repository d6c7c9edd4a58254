package github

// FileRef identifies a repository file offered for test generation.
type FileRef struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Repo holds the repository fields the file picker needs.
type Repo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"fullName"`
	Owner         string `json:"owner"`
	DefaultBranch string `json:"defaultBranch"`
	Private       bool   `json:"private"`
}

// DirEntry is one item of a contents listing.
type DirEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // file | dir | symlink | submodule
	DownloadURL string `json:"download_url"`
}

// FileContent is the contents API payload for a single file.
type FileContent struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Type        string `json:"type"`
	Encoding    string `json:"encoding"` // base64 | none | ""
	Content     string `json:"content"`
	DownloadURL string `json:"download_url"`
}

// PullRequest is the subset of a created pull request returned to callers.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

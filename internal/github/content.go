package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// FetchFileText reads a file through the contents API and returns it as UTF-8 text.
// base64 payloads are decoded; files too large for inline content ("encoding": "none")
// are read from their download URL. Any failure comes back as *UpstreamFetchError.
func FetchFileText(ctx context.Context, c Client, token, owner, repo, filePath string) (string, error) {
	fail := func(err error) error {
		return &UpstreamFetchError{Owner: owner, Repo: repo, Path: filePath, Err: err}
	}
	fc, err := c.GetFileContent(ctx, token, owner, repo, filePath)
	if err != nil {
		return "", fail(err)
	}
	if fc.Type != "" && fc.Type != "file" {
		return "", fail(fmt.Errorf("path is a %s, not a file", fc.Type))
	}
	var raw []byte
	switch strings.ToLower(fc.Encoding) {
	case "base64":
		raw, err = decodeBase64(fc.Content)
		if err != nil {
			return "", fail(fmt.Errorf("decode base64 content: %w", err))
		}
	case "none":
		if fc.Content != "" || fc.DownloadURL == "" {
			raw = []byte(fc.Content)
			break
		}
		raw, err = c.Download(ctx, token, fc.DownloadURL)
		if err != nil {
			return "", fail(err)
		}
	default:
		raw = []byte(fc.Content)
	}
	if !utf8.Valid(raw) {
		return strings.ToValidUTF8(string(raw), "�"), nil
	}
	return string(raw), nil
}

// decodeBase64 tolerates the line breaks GitHub inserts every 60 characters.
func decodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	return base64.StdEncoding.DecodeString(clean)
}

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// ListSourceFiles lists a directory and keeps regular files whose extension is in exts
// (case-insensitive, dot-prefixed).
func ListSourceFiles(ctx context.Context, c Client, token, owner, repo, dir string, exts []string) ([]FileRef, error) {
	entries, err := c.ListDirectory(ctx, token, owner, repo, dir)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = struct{}{}
	}
	out := make([]FileRef, 0, len(entries))
	for _, e := range entries {
		if e.Type != "file" {
			continue
		}
		if _, ok := allowed[strings.ToLower(path.Ext(e.Name))]; !ok {
			continue
		}
		out = append(out, FileRef{Path: e.Path, Name: e.Name})
	}
	return out, nil
}

package llm

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"testpilot-backend/internal/types"
)

//go:embed prompts/testgen.yaml
var defaultPrompts []byte

type promptSection struct {
	Intro  string `yaml:"intro"`
	Format string `yaml:"format"`
}

// PromptSet holds the wording used to build suggestion and code prompts.
type PromptSet struct {
	Suggestion promptSection     `yaml:"suggestion"`
	Code       promptSection     `yaml:"code"`
	Frameworks map[string]string `yaml:"frameworks"`
	Style      struct {
		Temperature float32 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
	} `yaml:"style"`
}

// FileMeta describes the file a prompt is about.
type FileMeta struct {
	Path string
}

// LoadPromptSet parses the embedded templates and, when overridePath is set, lays the
// fields of that YAML file over them.
func LoadPromptSet(overridePath string) (*PromptSet, error) {
	var ps PromptSet
	if err := yaml.Unmarshal(defaultPrompts, &ps); err != nil {
		return nil, fmt.Errorf("parse embedded prompts: %w", err)
	}
	if overridePath == "" {
		return &ps, nil
	}
	b, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &ps); err != nil {
		return nil, fmt.Errorf("parse prompts %s: %w", overridePath, err)
	}
	return &ps, nil
}

// Options returns the generation settings declared in the style section.
func (p *PromptSet) Options() Options {
	return Options{Temperature: p.Style.Temperature, MaxTokens: p.Style.MaxTokens}
}

func (p *PromptSet) framework(filePath string) string {
	return p.Frameworks[strings.ToLower(path.Ext(filePath))]
}

// SuggestionPrompt asks for a JSON array of {title, summary} objects for one file.
func (p *PromptSet) SuggestionPrompt(content string, meta FileMeta) string {
	var b strings.Builder
	b.WriteString(p.Suggestion.Intro)
	if fw := p.framework(meta.Path); fw != "" {
		b.WriteString(" Target the ")
		b.WriteString(fw)
		b.WriteString(" test framework.")
	}
	b.WriteString("\n")
	b.WriteString(p.Suggestion.Format)
	b.WriteString("\n\nFile: ")
	b.WriteString(meta.Path)
	b.WriteString("\n\nCode:\n")
	b.WriteString(content)
	return b.String()
}

// CodePrompt asks for test code implementing one proposal.
func (p *PromptSet) CodePrompt(tc types.TestCaseProposal, content string) string {
	var b strings.Builder
	b.WriteString(p.Code.Intro)
	if fw := p.framework(tc.FilePath); fw != "" {
		b.WriteString(" Use ")
		b.WriteString(fw)
		b.WriteString(".")
	}
	b.WriteString("\n")
	b.WriteString(p.Code.Format)
	b.WriteString("\n\nTitle: ")
	b.WriteString(tc.Title)
	b.WriteString("\nSummary: ")
	b.WriteString(tc.Summary)
	b.WriteString("\n\nFile: ")
	b.WriteString(tc.FilePath)
	b.WriteString("\n\nCode:\n")
	b.WriteString(content)
	return b.String()
}

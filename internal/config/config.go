package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Port          string
	AllowedOrigin string
	FrontendURL   string
	LogLevel      string
	LogFormat     string
	// Completion backend
	LLMProvider  string
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string
	// Optional YAML file overriding the embedded prompt templates
	PromptsFile string
	// GitHub OAuth
	GitHubAPIURL       string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string
	GitHubScopes       []string
	// Optional static GitHub token (Personal Access Token) for local testing
	GitHubToken string
	// Marks the OAuth state cookie Secure; enable behind HTTPS
	CookieSecure bool
	// Outbound GitHub throttling; 0 disables the limiter
	GitHubRateLimit float64
	GitHubRateBurst int
	// Test generation
	SourceExtensions []string
	BaseBranch       string
	TestDir          string
	BranchPrefix     string
	// Max concurrent file pipelines per batch; 0 means unbounded
	FanOutLimit    int
	RequestTimeout time.Duration
}

// Load reads .env (plus any extra files) into the environment and builds a Config.
// Missing files are ignored, matching godotenv's usual local-dev behaviour.
func Load(envFiles ...string) Config {
	_ = godotenv.Load()
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	return Config{
		Port:               getEnvDefault("PORT", "4000"),
		AllowedOrigin:      getEnvDefault("ALLOWED_ORIGIN", "*"),
		FrontendURL:        getEnvDefault("FRONTEND_URL", "http://localhost:5173"),
		LogLevel:           getEnvDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvDefault("LOG_FORMAT", "json"),
		LLMProvider:        strings.ToLower(getEnvDefault("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnvDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		PromptsFile:        os.Getenv("PROMPTS_FILE"),
		GitHubAPIURL:       strings.TrimRight(getEnvDefault("GITHUB_API_URL", "https://api.github.com"), "/"),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubRedirectURL:  getEnvDefault("GITHUB_REDIRECT_URL", "http://localhost:4000/api/github/callback"),
		GitHubScopes:       getEnvListDefault("GITHUB_OAUTH_SCOPES", []string{"public_repo"}),
		GitHubToken:        os.Getenv("GITHUB_TOKEN"),
		CookieSecure:       getEnvBoolDefault("COOKIE_SECURE", false),
		GitHubRateLimit:    getEnvFloatDefault("GITHUB_RATE_LIMIT", 0),
		GitHubRateBurst:    getEnvIntDefault("GITHUB_RATE_BURST", 5),
		SourceExtensions:   normalizeExtensions(getEnvListDefault("SOURCE_EXTENSIONS", []string{".js", ".ts", ".tsx", ".py"})),
		BaseBranch:         getEnvDefault("BASE_BRANCH", "main"),
		TestDir:            strings.Trim(getEnvDefault("TEST_DIR", "test"), "/"),
		BranchPrefix:       getEnvDefault("BRANCH_PREFIX", "test-case-"),
		FanOutLimit:        getEnvIntDefault("FANOUT_LIMIT", 4),
		RequestTimeout:     getEnvDurationDefault("REQUEST_TIMEOUT", 120*time.Second),
	}
}

// Validate reports configuration that would make every request fail.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=%s", ProviderOpenAI)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=%s", ProviderGemini)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.FanOutLimit < 0 {
		return fmt.Errorf("FANOUT_LIMIT must be >= 0, got %d", c.FanOutLimit)
	}
	if c.GitHubRateLimit < 0 {
		return fmt.Errorf("GITHUB_RATE_LIMIT must be >= 0, got %v", c.GitHubRateLimit)
	}
	return nil
}

// OAuthConfigured reports whether the GitHub OAuth app credentials are present.
func (c Config) OAuthConfigured() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatDefault(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// normalizeExtensions lower-cases and dot-prefixes each extension.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

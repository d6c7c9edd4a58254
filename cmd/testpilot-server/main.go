package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"testpilot-backend/internal/config"
	"testpilot-backend/internal/github"
	"testpilot-backend/internal/llm"
	"testpilot-backend/internal/server"
)

var (
	envFiles []string
	port     string
)

var rootCmd = &cobra.Command{
	Use:   "testpilot-server",
	Short: "HTTP backend that proposes unit tests for GitHub repositories and opens PRs with them",
	Long: `testpilot-server reads source files from GitHub, asks a completion model
for test case ideas and test code, and lands the chosen test as a pull request.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringArrayVar(&envFiles, "env-file", nil, "dotenv file to load before reading the environment (repeatable)")
	rootCmd.Flags().StringVar(&port, "port", "", "listen port, overrides PORT")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load(envFiles...)
	if port != "" {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompts, err := llm.LoadPromptSet(cfg.PromptsFile)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}
	completer, err := llm.NewCompleter(ctx, cfg, prompts.Options())
	if err != nil {
		return fmt.Errorf("failed to create completer: %w", err)
	}

	s, err := server.NewServer(cfg, server.Deps{
		Hosting:   github.NewAPIClient(cfg),
		Completer: completer,
		Prompts:   prompts,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("testpilot server listening",
			zap.String("addr", srv.Addr),
			zap.String("provider", cfg.LLMProvider),
			zap.String("model", completer.Model()),
			zap.Int("fan_out_limit", cfg.FanOutLimit),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLogger builds a production zap logger; format "console" switches to the
// human-readable encoder.
func newLogger(level, format string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

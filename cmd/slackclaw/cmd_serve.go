package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/cobra"

	"github.com/user/slackclaw/internal/config"
	ctxengine "github.com/user/slackclaw/internal/context"
	"github.com/user/slackclaw/internal/gateway"
	"github.com/user/slackclaw/internal/ops"
	"github.com/user/slackclaw/internal/runtime"
	"github.com/user/slackclaw/internal/runtime/tools"
	"github.com/user/slackclaw/internal/slackbridge"
	"github.com/user/slackclaw/internal/store"
	"github.com/user/slackclaw/pkg/llm"
	"github.com/user/slackclaw/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the slackclaw daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "slackclaw.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		var missing *config.MissingCredentialsError
		if errors.As(err, &missing) && missing.Fatal {
			return err
		}
		slog.Warn("starting with incomplete credentials", "missing", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Thread store
	threads := store.NewThreadStore()

	// LLM provider
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	// Context engine
	engine, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return fmt.Errorf("create context engine: %w", err)
	}

	// Slack clients
	api := slack.New(cfg.Slack.BotToken, slack.OptionAppLevelToken(cfg.Slack.AppToken))
	chat := slackbridge.NewClient(api)

	// Tool registry
	registry := runtime.NewRegistry()
	registry.Register(tools.NewPostMessage())
	registry.Register(tools.NewUpdateMessage())
	registry.Register(tools.NewAddReaction())
	registry.Register(tools.NewReadURL())
	registry.Register(tools.NewFinish())

	// Runtime
	rt := runtime.New(provider, engine, threads, registry, chat, cfg.MaxIterations)
	rt.SetAccentColor(cfg.AccentColor)

	// Gateway
	gw := gateway.New(int64(cfg.MaxConcurrent))
	gw.Queue.SetProcessor(rt.ProcessRun)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	slog.Info("slackclaw started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"max_iterations", cfg.MaxIterations,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	// Slack adapter
	if cfg.Slack.BotToken != "" && cfg.Slack.AppToken != "" {
		auth, err := api.AuthTestContext(ctx)
		if err != nil {
			return fmt.Errorf("slack auth test: %w", err)
		}
		smClient := socketmode.New(api)
		adapter := slackbridge.New(smClient, chat, gw, threads, auth.UserID)
		go func() {
			if err := adapter.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("slack adapter stopped", "error", err)
			}
		}()
		slog.Info("slack adapter started", "bot_user", auth.UserID)
	} else {
		slog.Warn("slack adapter disabled (missing tokens)")
	}

	// Idle-thread sweeper
	sweeper := cron.New()
	_, err = sweeper.AddFunc("@every "+cfg.SweepEvery, func() {
		if n := threads.Sweep(cfg.MaxThreadIdle()); n > 0 {
			slog.Info("swept idle threads", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule thread sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Ops HTTP server
	if cfg.Ops.Listen != "" {
		opsSrv := &http.Server{
			Addr:    cfg.Ops.Listen,
			Handler: ops.NewServer(threads),
		}
		go func() {
			slog.Info("ops server started", "listen", cfg.Ops.Listen)
			if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("ops server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			opsSrv.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

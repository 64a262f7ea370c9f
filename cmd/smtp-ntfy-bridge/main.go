// Package main is the entry point for the SMTP to ntfy bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/emersion/go-message/charset"
	"github.com/spf13/cobra"

	"github.com/shineum/smtp-ntfy-bridge/internal/config"
	"github.com/shineum/smtp-ntfy-bridge/internal/email"
	"github.com/shineum/smtp-ntfy-bridge/internal/mbox"
	"github.com/shineum/smtp-ntfy-bridge/internal/notify"
	"github.com/shineum/smtp-ntfy-bridge/internal/notify/ntfy"
	"github.com/shineum/smtp-ntfy-bridge/internal/notify/stdout"
	"github.com/shineum/smtp-ntfy-bridge/internal/parser"
	"github.com/shineum/smtp-ntfy-bridge/internal/processor"
	"github.com/shineum/smtp-ntfy-bridge/internal/smtp"
	smtptls "github.com/shineum/smtp-ntfy-bridge/internal/tls"
	"github.com/shineum/smtp-ntfy-bridge/internal/webhook"
)

var (
	configPath string
	dryRun     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "smtp-ntfy-bridge",
		Short:         "Forward incoming email as ntfy push notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print notifications to stdout instead of posting them")

	rootCmd.AddCommand(serveCmd(), sendCmd(), replayCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the SMTP and webhook listeners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, proc, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return serve(ctx, cfg, proc)
		},
	}
}

func sendCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "send [file]",
		Short: "Process a single RFC 5322 message from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, proc, err := setup()
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open message: %w", err)
				}
				defer f.Close()
				r = f
			}

			raw, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read message: %w", err)
			}

			return proc.Process(cmd.Context(), parser.ReadEmail(raw, from, to))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "envelope sender (defaults to the From header)")
	cmd.Flags().StringVar(&to, "to", "", "envelope recipient (defaults to the To header)")
	return cmd
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <mbox>",
		Short: "Send a notification for every message of an mbox archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, proc, err := setup()
			if err != nil {
				return err
			}

			var index int
			n, err := mbox.Replay(cmd.Context(), args[0], smtp.HandlerFunc(func(ctx context.Context, msg *email.RawEmail) {
				index++
				slog.Debug("replaying message", "index", index, "from", msg.From, "to", msg.To)
				proc.Handle(ctx, msg)
			}))
			slog.Info("mbox replay finished", "path", args[0], "messages", n)
			return err
		},
	}
}

// setup loads and validates configuration, configures logging and builds
// the processor shared by every command.
func setup() (*config.Config, *processor.Processor, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogger(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		if !dryRun || !errors.Is(err, config.ErrMissingNtfyServer) {
			return nil, nil, err
		}
	}

	notifier, err := selectNotifier(cfg)
	if err != nil {
		return nil, nil, err
	}

	proc, err := processor.New(processor.Options{
		Notifier:      notifier,
		MaxBodyLength: cfg.Body.MaxLength,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, proc, nil
}

// serve runs the enabled listeners until ctx is cancelled or one of them
// fails.
func serve(ctx context.Context, cfg *config.Config, proc *processor.Processor) error {
	if cfg.SMTP.Listen == "" && cfg.Webhook.Listen == "" {
		return errors.New("no listener configured (set smtp.listen or webhook.listen)")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 2)
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	if cfg.SMTP.Listen != "" {
		tlsConfig, err := smtptls.LoadOrGenerate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.SMTP.Hostname)
		if err != nil {
			return fmt.Errorf("failed to setup TLS: %w", err)
		}

		tlsMode := "self-signed"
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
			tlsMode = "file"
		}
		slog.Info("starting SMTP listener",
			"listen", cfg.SMTP.Listen,
			"auth_enabled", cfg.AuthEnabled(),
			"tls_mode", tlsMode,
		)

		server := smtp.New(smtp.ServerConfig{
			ListenAddr:     cfg.SMTP.Listen,
			Hostname:       cfg.SMTP.Hostname,
			Handler:        proc,
			TLSConfig:      tlsConfig,
			AuthUsername:   cfg.SMTP.Username,
			AuthPassword:   cfg.SMTP.Password,
			MaxMessageSize: cfg.SMTP.MaxMessageSize,
		})
		run("smtp", server.ListenAndServe)
	}

	if cfg.Webhook.Listen != "" {
		server := webhook.New(webhook.Config{
			ListenAddr:  cfg.Webhook.Listen,
			Handler:     proc,
			MaxBodySize: cfg.SMTP.MaxMessageSize,
		})
		run("webhook", server.ListenAndServe)
	}

	wg.Wait()
	close(errs)

	var err error
	for e := range errs {
		err = errors.Join(err, e)
	}
	if err == nil {
		slog.Info("smtp-ntfy-bridge stopped")
	}
	return err
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectNotifier chooses where notifications go: stdout in dry-run mode,
// the configured ntfy server otherwise.
func selectNotifier(cfg *config.Config) (notify.Notifier, error) {
	if dryRun {
		slog.Info("dry run: printing notifications to stdout")
		return stdout.New(), nil
	}

	sender, err := ntfy.New(ntfy.Config{
		ServerURL: cfg.Ntfy.Server,
		Token:     cfg.Ntfy.Token,
		Timeout:   cfg.Ntfy.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ntfy sender: %w", err)
	}
	slog.Info("using ntfy notifier",
		"server", cfg.Ntfy.Server,
		"token_set", cfg.Ntfy.Token != "",
	)
	return sender, nil
}

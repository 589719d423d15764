package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/ttbridge/internal/app"
	"github.com/vovakirdan/ttbridge/internal/auth"
	"github.com/vovakirdan/ttbridge/internal/config"
	"github.com/vovakirdan/ttbridge/internal/log"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFormat  string
	)

	root := &cobra.Command{
		Use:          "ttbridge",
		Short:        "Bridge between a talk server and Telegram",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log format (console, json)")

	run := &cobra.Command{
		Use:   "run",
		Short: "Connect to the talk server and start the bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd.Context(), configPath, logLevel, logFormat)
		},
	}

	hash := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for http.admin_password_hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				var err error
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			hashed, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password (min %d chars): %w", auth.MinPasswordLength, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	}

	ver := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	root.AddCommand(run, hash, ver)
	return root
}

func runBridge(parent context.Context, configPath, logLevel, logFormat string) error {
	bootLogger := log.New(logLevel, logFormat)

	cfg, resolvedPath, err := config.Load(bootLogger, configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Str("config", resolvedPath).Str("version", version).Msg("starting ttbridge")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize")
		return err
	}

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("bridge exited with error")
		return err
	}
	logger.Info().Msg("bridge stopped")
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

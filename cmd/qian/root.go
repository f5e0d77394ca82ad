package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"qian/internal/server"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var flags server.FlagValues
	cmd := &cobra.Command{
		Use:           "qian",
		Short:         "Local file browser bridge",
		Long:          "qian serves directory snapshots, change notifications and shell actions for a browser front end over HTTP and WebSocket.",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), flags, cmd.Flags().Changed)
		},
	}
	bindFlags(cmd, &flags)
	return cmd
}

func bindFlags(cmd *cobra.Command, flags *server.FlagValues) {
	set := cmd.Flags()
	set.StringVar(&flags.EnvFile, "env-file", "", "dotenv file with QIAN_* settings")
	set.StringVar(&flags.Addr, "addr", "127.0.0.1:7410", "listen address")
	set.StringVar(&flags.StartDir, "start-dir", "", "directory opened at start-up (default home)")
	set.StringVar(&flags.ConfigDir, "config-dir", "", "preferences directory (default ~/.qian)")
	set.StringVar(&flags.Token, "token", "", "bearer token required by HTTP and WebSocket clients")
	set.StringSliceVar(&flags.AllowedOrigins, "allowed-origins", nil, "extra WebSocket origins")
	set.DurationVar(&flags.Debounce, "debounce", 0, "watcher debounce, negative disables")
	set.DurationVar(&flags.ChangeWindow, "change-window", 0, "change notification window, negative sends immediately")
	set.IntVar(&flags.MaxWatches, "max-watches", 16, "maximum concurrent filesystem watches")
	set.Float64Var(&flags.MessagesPerSecond, "ws-rate", 20, "inbound WebSocket messages per second, negative disables")
	set.IntVar(&flags.MessageBurst, "ws-burst", 40, "inbound WebSocket burst")
	set.BoolVar(&flags.RuntimeMetrics, "runtime-metrics", false, "export Go runtime and process collectors")
	set.StringVar(&flags.LogLevel, "log-level", "info", "log level: debug, info, warning, error")
	set.StringVar(&flags.LogFormat, "log-format", "json", "log format: json or console")
	set.BoolVarP(&flags.Verbose, "verbose", "v", false, "shorthand for --log-level debug")
}

func runServer(parent context.Context, flags server.FlagValues, changed func(string) bool) error {
	cfg, err := server.LoadConfig(flags, changed)
	if err != nil {
		return err
	}
	logger := server.NewLogger(cfg, os.Stdout)
	server.LogStartupFlags(logger, cfg)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopWatching := watchShutdownSignals(logger, cancel, signalCh)
	defer stopWatching()

	app, err := server.New(ctx, cfg, logger, server.Options{Version: version})
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

package main

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"qian/internal/logging"
)

func TestRootCommandFlagDefaults(t *testing.T) {
	cmd := newRootCommand()
	if err := cmd.ParseFlags([]string{"--addr", "127.0.0.1:0", "-v"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if !cmd.Flags().Changed("addr") || !cmd.Flags().Changed("verbose") {
		t.Fatal("expected addr and verbose to be changed")
	}
	if cmd.Flags().Changed("max-watches") {
		t.Fatal("expected max-watches untouched")
	}
	if value, _ := cmd.Flags().GetString("addr"); value != "127.0.0.1:0" {
		t.Fatalf("unexpected addr %q", value)
	}
}

func TestRootCommandRejectsArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("QIAN_LOG_LEVEL", "error")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--addr", "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if _, err := os.Stat(home + "/.qian/profil.json"); err != nil {
		t.Fatalf("expected preferences file: %v", err)
	}
}

func TestWatchShutdownSignalsCancelsOnce(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 2)
	stop := watchShutdownSignals(logger, cancel, signalCh)
	defer stop()

	signalCh <- syscall.SIGTERM
	signalCh <- syscall.SIGTERM
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected cancel")
	}

	deadline := time.Now().Add(time.Second)
	for len(buffer.List()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	entries := buffer.List()
	if len(entries) != 2 || entries[1].Message != "shutdown already in progress; ignoring signal" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

// Copyright (c) 2023 BVK Chaitanya

// Package daemonize restarts the current program as a background process.
package daemonize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// CheckFunc verifies that the background process has initialized. Returning
// true with an error asks for the check to be retried.
type CheckFunc func(ctx context.Context, child *os.Process) (retry bool, err error)

// Daemonize uses the envKey environment variable to tell the parent process
// from the background process. Variable must not be set by anything else.
//
// In the parent process, Daemonize respawns the program with the same
// arguments, waits for the check function to succeed and exits; it returns
// only with an error. In the background process, Daemonize detaches from the
// controlling terminal and returns nil.
//
// Daemonize must be called before opening databases or starting servers.
func Daemonize(ctx context.Context, envKey string, check CheckFunc) error {
	if len(envKey) == 0 {
		return fmt.Errorf("daemonize environment key cannot be empty: %w", os.ErrInvalid)
	}
	if v := os.Getenv(envKey); len(v) != 0 {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("unexpected value %q for %s: %w", v, envKey, os.ErrInvalid)
		}
		if _, err := unix.Setsid(); err != nil {
			return fmt.Errorf("could not set session id: %w", err)
		}
		return nil
	}
	if err := startChild(ctx, envKey, check); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}

func startChild(ctx context.Context, envKey string, check CheckFunc) error {
	binary, err := exec.LookPath(os.Args[0])
	if err != nil {
		return fmt.Errorf("could not lookup binary: %w", err)
	}
	binaryPath, err := filepath.Abs(binary)
	if err != nil {
		return fmt.Errorf("could not determine absolute path for binary: %w", err)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	// Receive a signal when the child process dies.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGCHLD, os.Interrupt)
	defer stop()

	attr := &os.ProcAttr{
		Dir:   "/",
		Env:   append(os.Environ(), fmt.Sprintf("%s=%d", envKey, os.Getpid())),
		Files: []*os.File{devnull, devnull, devnull},
	}
	child, err := os.StartProcess(binaryPath, os.Args, attr)
	if err != nil {
		return fmt.Errorf("could not start process: %w", err)
	}
	defer child.Release()

	if check == nil {
		return nil
	}
	for ctx.Err() == nil {
		time.Sleep(time.Second)
		retry, err := check(ctx, child)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		slog.Warn("background process is not yet initialized", "pid", child.Pid, "err", err)
	}
	return fmt.Errorf("could not initialize the background process: %w", context.Cause(ctx))
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/PiranhaCodes/webpty-term/internal/logging"
	"github.com/PiranhaCodes/webpty-term/terminal"
)

func main() {
	command := flag.String("cmd", terminal.DefaultShell(), "Command to run inside the PTY")
	flag.Parse()

	cfg, err := logging.Load("webpty")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*command, logger); err != nil {
		logger.Error("session failed", zap.Error(err))
		os.Exit(1)
	}
}

// run attaches the local terminal to a fresh PTY session running command
// and blocks until the session's output ends.
func run(command string, logger *zap.Logger) error {
	sess, err := terminal.Open(command, terminal.WithLogger(logger))
	if err != nil {
		return err
	}
	defer sess.Close()

	stdin := int(os.Stdin.Fd())
	if term.IsTerminal(stdin) {
		oldState, err := term.MakeRaw(stdin)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer term.Restore(stdin, oldState)

		resize := func() {
			cols, rows, err := term.GetSize(stdin)
			if err != nil {
				logger.Warn("failed to read local terminal size", zap.Error(err))
				return
			}
			if err := sess.SetSize(uint16(rows), uint16(cols)); err != nil {
				logger.Warn("failed to resize session", zap.Error(err))
			}
		}
		resize()

		winch := make(chan os.Signal, 1)
		signal.Notify(winch, unix.SIGWINCH)
		defer signal.Stop(winch)
		go func() {
			for range winch {
				resize()
			}
		}()
	}

	go func() {
		_, _ = io.Copy(sess, os.Stdin)
	}()

	// The read half reaches EOF once the child exits.
	_, err = io.Copy(os.Stdout, sess)
	return err
}

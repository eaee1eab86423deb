// Command opsconsole is the operator console CLI: credential and biometric sign-in,
// the employee directory and the postgres store schema.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/target/opsconsole/config"
	"github.com/target/opsconsole/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	usage       string
	description string
	run         commandFn
}

// consoleFactory builds the service graph; tests swap it for one wired to stubs.
type consoleFactory func(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*bootstrap.Console, error)

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	in         *bufio.Reader
	newConsole consoleFactory
	console    *bootstrap.Console
}

// usageError marks a command-line mistake; it exits with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code) //nolint:forbidigo // CLI must propagate command status to callers
}

// run executes one command and returns the process exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, factory consoleFactory) int {
	// Capture listeners report progress from timer goroutines.
	stderr = &syncWriter{w: stderr}
	logger := bootstrap.InitLogger(slog.LevelWarn, stderr)

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stdout)
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	name := args[0]
	cmd, ok := commands()[name]
	if !ok {
		writef(stderr, "unknown command %q\n\n", name)
		printUsage(stderr)
		return 2
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(ctx, "load config", "error", err)
		return 1
	}
	logger = bootstrap.InitLogger(cfg.SlogLevel(), stderr)

	if factory == nil {
		factory = func(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*bootstrap.Console, error) {
			return bootstrap.NewConsole(ctx, cfg, logger)
		}
	}
	cmdCtx := &commandContext{
		Ctx:        ctx,
		Logger:     logger,
		Config:     cfg,
		Stdin:      stdin,
		Stdout:     stdout,
		Stderr:     stderr,
		in:         bufio.NewReader(stdin),
		newConsole: factory,
	}
	defer cmdCtx.close()

	runErr := cmd.run(cmdCtx, args[1:])
	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, pflag.ErrHelp):
		return 0
	case errors.As(runErr, new(usageError)):
		writef(stderr, "%s: %v\nusage: opsconsole %s %s\n", name, runErr, name, cmd.usage)
		return 2
	default:
		writef(stderr, "%s: %v\n", name, runErr)
		logger.DebugContext(ctx, "command failed", "command", name, "error", runErr)
		return 1
	}
}

func commands() map[string]command {
	return map[string]command{
		"whoami": {
			name:        "whoami",
			description: "Show the persisted session, if any",
			run:         runWhoami,
		},
		"login": {
			name:        "login",
			usage:       "[--key KEY] [--secret-file FILE]",
			description: "Sign in with an employee key and secret",
			run:         runLogin,
		},
		"logout": {
			name:        "logout",
			description: "Sign out and clear the persisted session",
			run:         runLogout,
		},
		"passwd": {
			name:        "passwd",
			usage:       "[--key KEY]",
			description: "Change the secret of the signed-in (or given) key",
			run:         runPasswd,
		},
		"biometric": {
			name:        "biometric",
			usage:       "[--timeout DURATION] [--no-fallback]",
			description: "Sign in by face; falls back to credentials when capture gives up",
			run:         runBiometric,
		},
		"directory": {
			name:        "directory",
			usage:       "list|add|update|remove [flags]",
			description: "List and edit the employee directory",
			run:         runDirectory,
		},
		"resolve": {
			name:        "resolve",
			usage:       "KEY",
			description: "Resolve a recognized key against the fallback and user directories",
			run:         runResolve,
		},
		"migrate": {
			name:        "migrate",
			usage:       "[--timeout DURATION]",
			description: "Apply the postgres store schema",
			run:         runMigrate,
		},
	}
}

func printUsage(w io.Writer) {
	writef(w, "Usage: opsconsole <command> [flags]\n\nAvailable commands:\n")
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writef(w, "  %-12s %s\n", name, cmds[name].description)
	}
}

// consoleFor builds the console on first use.
func (c *commandContext) consoleFor() (*bootstrap.Console, error) {
	if c.console != nil {
		return c.console, nil
	}
	console, err := c.newConsole(c.Ctx, c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	c.console = console
	return console, nil
}

func (c *commandContext) close() {
	if c.console == nil {
		return
	}
	if err := c.console.Close(); err != nil {
		c.Logger.Warn("close console", "error", err)
	}
}

func newFlagSet(c *commandContext, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageError{err}
	}
	return nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

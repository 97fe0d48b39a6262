package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// ErrNoOpener is returned when no URL-opening command exists on this system.
var ErrNoOpener = errors.New("no URL opener available")

// Opener hands a URL to something that can show it.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// FuncOpener adapts a function to Opener.
type FuncOpener func(ctx context.Context, url string) error

// Open calls f.
func (f FuncOpener) Open(ctx context.Context, url string) error { return f(ctx, url) }

// LogOpener only logs the URL. Used for dry runs and headless hosts.
type LogOpener struct {
	Logger *slog.Logger
}

// Open logs url at info level.
func (o LogOpener) Open(_ context.Context, url string) error {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Would open URL", "url", url)
	return nil
}

// CommandOpener starts an external command with the URL as last argument.
// The process is not waited on by the caller and its exit status is ignored.
type CommandOpener struct {
	Name string
	Args []string

	// start launches the command; replaced in tests.
	start func(cmd *exec.Cmd) error
}

// Command returns the argv used for url.
func (o *CommandOpener) Command(url string) []string {
	argv := make([]string, 0, len(o.Args)+2)
	argv = append(argv, o.Name)
	argv = append(argv, o.Args...)
	return append(argv, url)
}

// Open starts the command detached.
func (o *CommandOpener) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	argv := o.Command(url)
	cmd := exec.Command(argv[0], argv[1:]...)
	start := o.start
	if start == nil {
		start = startDetached
	}
	if err := start(cmd); err != nil {
		return fmt.Errorf("failed to start %s: %w", o.Name, err)
	}
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	// reap the child
	go func() { _ = cmd.Wait() }()
	return nil
}

// String describes the opener for logs.
func (o *CommandOpener) String() string {
	return strings.Join(o.Command("<url>"), " ")
}

// NewSystemOpener picks the platform URL opener once: xdg-open on Linux and
// the BSDs, open on macOS, start via cmd on Windows. Other systems probe the
// three commands in that order.
func NewSystemOpener() (Opener, error) {
	return systemOpener(runtime.GOOS, exec.LookPath)
}

func systemOpener(goos string, lookPath func(string) (string, error)) (Opener, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly", "solaris", "illumos":
		return &CommandOpener{Name: "xdg-open"}, nil
	case "darwin":
		return &CommandOpener{Name: "open"}, nil
	case "windows":
		return &CommandOpener{Name: "cmd", Args: []string{"/c", "start", ""}}, nil
	}

	for _, name := range []string{"xdg-open", "open", "start"} {
		if _, err := lookPath(name); err == nil {
			return &CommandOpener{Name: name}, nil
		}
	}
	return nil, fmt.Errorf("%w on %s", ErrNoOpener, goos)
}

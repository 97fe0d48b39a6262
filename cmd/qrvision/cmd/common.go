package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MeKo-Tech/qrvision/internal/config"
	"github.com/MeKo-Tech/qrvision/internal/robot"
	"github.com/MeKo-Tech/qrvision/internal/trigger"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// errNoAddress is returned by commands that need a remote host.
var errNoAddress = errors.New("robot address is required (--address, ROBOT_ADDRESS or robot.address)")

// signalContext is cmd's context, cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

// addRobotFlags registers the connection flags shared by watch, scan and upload.
func addRobotFlags(fs *pflag.FlagSet) {
	fs.String("address", "", "robot address (host:port or URL)")
	bindFlag(fs, "address", "robot.address")
	fs.String("api-key", "", "robot API key")
	bindFlag(fs, "api-key", "robot.api_key")
	fs.String("api-key-id", "", "robot API key ID")
	bindFlag(fs, "api-key-id", "robot.api_key_id")
	fs.Duration("robot-timeout", 0, "timeout for each request to the robot")
	bindFlag(fs, "robot-timeout", "robot.timeout")
}

// dialRobot connects to the configured remote host.
func dialRobot(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*robot.Client, error) {
	if cfg.Robot.Address == "" {
		return nil, errNoAddress
	}
	client, err := robot.Dial(ctx, cfg.Robot.Address, robot.Options{
		APIKey:   cfg.Robot.APIKey,
		APIKeyID: cfg.Robot.APIKeyID,
		Timeout:  cfg.Robot.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to robot: %w", err)
	}
	logger.Info("Connected to robot", "address", client.Address(), "resources", len(client.ResourceNames()))
	return client, nil
}

// newOpener returns the opener for a trigger mode, or nil for "none".
func newOpener(mode string, logger *slog.Logger) trigger.Opener {
	switch mode {
	case vision.TriggerNone:
		return nil
	case vision.TriggerLog:
		return trigger.LogOpener{Logger: logger}
	}
	opener, err := trigger.NewSystemOpener()
	if err != nil {
		logger.Warn("No system URL opener, logging URLs instead", "error", err)
		return trigger.LogOpener{Logger: logger}
	}
	return opener
}

// quitOnKey returns a channel that is closed when a line reading "q" arrives
// on r. End of input leaves the channel open.
func quitOnKey(r io.Reader) <-chan struct{} {
	quit := make(chan struct{})
	if r == nil {
		return quit
	}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
				close(quit)
				return
			}
		}
	}()
	return quit
}

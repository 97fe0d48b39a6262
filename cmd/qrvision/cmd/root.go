package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/qrvision/internal/config"
	"github.com/MeKo-Tech/qrvision/internal/version"
)

const (
	// viperKeyAnnotation ties a flag to the configuration key it overrides.
	viperKeyAnnotation = "qrvision/viper-key"

	// skipValidationAnnotation marks commands that must run on an invalid configuration.
	skipValidationAnnotation = "qrvision/skip-validation"
)

// app is the state shared by one command tree.
type app struct {
	loader  *config.Loader
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

// NewRootCommand builds the command tree. Every call gets its own viper
// instance, so trees can be executed side by side in tests.
func NewRootCommand() *cobra.Command {
	a := &app{loader: config.NewLoaderWithViper(viper.New())}

	rootCmd := &cobra.Command{
		Use:   "qrvision",
		Short: "QR code detection vision service and robot tools",
		Long: `qrvision detects QR codes in camera frames and opens the URLs they carry.

It provides:
- A vision service (joyce:vision:pyzbar) served over HTTP and WebSocket
- A watcher that polls a remote vision service and opens the first URL found
- A local scanner with preprocessing, cooldown and overlay output
- Batch decoding of image files and batch upload to a remote host

Examples:
  qrvision serve --source file --path ./frames
  qrvision watch --address robot.local:8080
  qrvision scan --source http --url http://cam.local/snapshot.jpg --once
  qrvision decode ./qr_dataset --format json
  qrvision upload ./qr_dataset --part-id part-1`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "qrvision version %s\n", version.String())
				return nil
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/qrvision, /etc/qrvision)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	bindFlag(pf, "verbose", "verbose")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	bindFlag(pf, "log-level", "log_level")
	pf.Bool("version", false, "print version information and exit")

	rootCmd.AddCommand(
		newServeCommand(a),
		newWatchCommand(a),
		newScanCommand(a),
		newDecodeCommand(a),
		newUploadCommand(a),
		newConfigCommand(a),
	)
	return rootCmd
}

// Execute runs the command tree. This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// bindFlag records the configuration key a flag overrides. Bindings are
// applied only for the command being executed.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, viperKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// init binds the executing command's flags, loads the configuration and
// sets up structured logging.
func (a *app) init(cmd *cobra.Command) error {
	v := a.loader.GetViper()
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[viperKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(keys[0], f)
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	var err error
	if skipsValidation(cmd) {
		a.cfg, err = a.loader.LoadWithFileWithoutValidation(a.cfgFile)
	} else {
		a.cfg, err = a.loader.LoadWithFile(a.cfgFile)
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	// Logs go to stderr so that command output on stdout stays parseable.
	a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: a.cfg.SlogLevel(),
	}))
	slog.SetDefault(a.logger)

	if used := a.loader.GetConfigFileUsed(); used != "" {
		a.logger.Debug("Loaded configuration file", "file", used)
	}
	return nil
}

func skipsValidation(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipValidationAnnotation] == "true" {
			return true
		}
	}
	return false
}

package commands

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xupit3r/psinterop/internal/config"
	"github.com/xupit3r/psinterop/internal/logging"
)

// Version is the psinterop release
const Version = "0.1.0"

// app holds state shared by all subcommands of one root command
type app struct {
	cfgFile  string
	verbose  bool
	logLevel string
	noColor  bool
	backend  string

	cfg *config.Config
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "psinterop",
		Short: "Push GPU arrays into OpenGL buffers through CUDA interop",
		Long: `psinterop bridges device arrays into OpenGL attribute buffers using
CUDA/OpenGL interop: a graphics buffer is registered with the CUDA runtime,
mapped, filled with a device-to-device copy and unmapped again.

Without a GPU the emulated backend and runtime run the same code paths in
host memory.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Close()
		},
	}

	// Global flags
	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.psinterop/config.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	flags.StringVar(&a.backend, "backend", "", "emulated backend name to report (overrides emulator.backend_name)")

	root.AddCommand(
		a.newCheckCommand(),
		a.newPushCommand(),
		a.newDeviceCommand(),
		newVersionCommand(),
	)
	return root
}

// setup loads configuration and initializes logging before any subcommand
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	if a.backend != "" {
		cfg.Emulator.BackendName = a.backend
	}
	if a.noColor || !cfg.CLI.Color {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		return err
	}
	logging.WithFields(logrus.Fields{
		"command": cmd.Name(),
		"level":   cfg.Logging.Level,
	}).Debug("configuration loaded")

	a.cfg = cfg
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hjbyt/adb/common"
	"github.com/hjbyt/adb/config"
	"github.com/hjbyt/adb/connector"
	"github.com/hjbyt/adb/logger"
	"github.com/hjbyt/adb/shell"
)

type rootOptions struct {
	configPath    string
	serial        string
	transport     string
	adb           string
	localShell    string
	remoteTmpDir  string
	verbose       bool
	logDir        string
	randomMarkers bool

	cfg *config.DeviceConfig
	// dial is replaced in tests.
	dial func(cfg *config.DeviceConfig) (connector.Device, error)
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// NewRootCmd builds the adb command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{dial: connector.Dial})
}

func newRootCmd(o *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   common.AppName,
		Short: "Run batched shell commands on a device",
		Long: `Run shell commands on an Android device (through adb), an SSH host or the
local machine. Commands given together are sent in a single round trip and
their outputs and exit statuses are reported separately.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.complete()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "device configuration file")
	flags.StringVarP(&o.serial, "serial", "s", "", "device serial passed to adb -s")
	flags.StringVarP(&o.transport, "transport", "t", "", "transport: adb, ssh or local")
	flags.StringVar(&o.adb, "adb", "", "path to the adb executable")
	flags.StringVar(&o.localShell, "local-shell", "", "shell used by the local transport")
	flags.StringVar(&o.remoteTmpDir, "remote-tmp", "", "directory for scratch files on the device")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&o.logDir, "log-dir", "", "write logs to rotated files in this directory")
	flags.BoolVar(&o.randomMarkers, "random-markers", false, "use a random marker token for every session")

	root.AddCommand(
		newShellCmd(o),
		newBatchCmd(o),
		newScriptCmd(o),
		newPushCmd(o),
		newPullCmd(o),
		newWaitCmd(o),
		newRebootCmd(o),
	)
	return root
}

// Execute runs the command line and returns the process exit status.
// An interrupt cancels the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return run(ctx, NewRootCmd(), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "error:", ee.err)
		}
		return ee.code
	}
	var ce *shell.CommandError
	if errors.As(err, &ce) {
		fmt.Fprintln(stderr, "error:", err)
		return ce.Status
	}
	fmt.Fprintln(stderr, "error:", err)
	return 1
}

// complete loads the device configuration, applies flag overrides and
// initializes logging.
func (o *rootOptions) complete() error {
	var cfg *config.DeviceConfig
	if o.configPath != "" {
		loaded, err := config.NewLoader(o.configPath).Load()
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.NewDefault()
	}

	spec := &cfg.Spec
	if o.transport != "" {
		spec.Transport = o.transport
	}
	if o.serial != "" {
		spec.Bridge.Serial = o.serial
	}
	if o.adb != "" {
		spec.Bridge.Executable = o.adb
	}
	if o.localShell != "" {
		spec.Local.Shell = o.localShell
	}
	if o.remoteTmpDir != "" {
		spec.RemoteTmpDir = o.remoteTmpDir
	}
	if o.randomMarkers {
		spec.Markers.Random = true
	}
	if o.verbose {
		spec.Logging.Verbose = true
	}
	if o.logDir != "" {
		spec.Logging.Dir = o.logDir
	}

	config.SetDefaults(spec)
	if err := config.Validate(spec); err != nil {
		return errors.Wrapf(err, "invalid configuration for device %s", cfg.Metadata.Name)
	}
	if err := logger.InitGlobalLogger(spec.Logging.Dir, spec.Logging.Verbose, spec.Logging.LogLevel()); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}

	o.cfg = cfg
	return nil
}

// connect dials the configured device and opens a shell session on it. The
// caller closes the returned device.
func (o *rootOptions) connect() (connector.Device, *shell.Session, error) {
	spec := o.cfg.Spec

	opts := []shell.SessionOption{
		shell.WithRemoteTmpDir(spec.RemoteTmpDir),
		shell.WithLogger(logger.Log.Entry("shell").WithField(common.DeviceName, o.cfg.Metadata.Name)),
	}
	switch {
	case spec.Markers.Random:
		opts = append(opts, shell.WithRandomMarkers())
	case spec.Markers.Token != "":
		m, err := shell.NewMarkers(spec.Markers.Token)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, shell.WithMarkers(m))
	}

	name := o.cfg.Metadata.Name
	dev, err := o.dial(o.cfg)
	if err != nil {
		logger.Log.ErrorDevice(name, err, "Failed to connect")
		return nil, nil, err
	}
	logger.Log.DebugDevice(name, "Connected", logrus.Fields{"transport": spec.Transport})
	return dev, shell.NewSession(dev, opts...), nil
}

func (o *rootOptions) closeDevice(dev connector.Device) {
	if err := dev.Close(); err != nil {
		logger.Log.WarnfDevice(o.cfg.Metadata.Name, "Failed to close device connection: %v", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

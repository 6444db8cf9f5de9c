package connector

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hjbyt/adb/common"
	"github.com/hjbyt/adb/logger"
	"github.com/hjbyt/adb/shell"
)

// waitDelay bounds how long a killed process may keep its output pipe open
// through orphaned children.
const waitDelay = time.Second

var _ Device = (*Bridge)(nil)
var _ Puller = (*Bridge)(nil)
var _ PowerController = (*Bridge)(nil)

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// Executable is the bridge binary, "adb" by default.
	Executable string
	// Serial selects a device when several are attached.
	Serial string
	// Timeout bounds every bridge invocation; zero means no limit.
	Timeout time.Duration
}

// Bridge drives a device through an external bridge executable such as adb.
type Bridge struct {
	config BridgeConfig
	log    *logrus.Entry
}

// NewBridge returns a Bridge. The executable is resolved lazily, on the
// first invocation.
func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Executable == "" {
		cfg.Executable = common.DefaultBridgeCommand
	}
	device := cfg.Serial
	if device == "" {
		device = "default"
	}
	return &Bridge{
		config: cfg,
		log:    logger.Log.WithField(common.DeviceName, device),
	}
}

func (b *Bridge) args(extra ...string) []string {
	args := make([]string, 0, len(extra)+2)
	if b.config.Serial != "" {
		args = append(args, "-s", b.config.Serial)
	}
	return append(args, extra...)
}

// run invokes the bridge and returns its combined stdout and stderr. A
// non-zero bridge exit becomes a *shell.TransportError.
func (b *Bridge) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, b.config.Executable, b.args(args...)...)
	cmd.WaitDelay = waitDelay
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	b.log.Debugf("Running %s %s", b.config.Executable, op)
	err := cmd.Run()
	if err == nil {
		return out.Bytes(), nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Wrapf(ctxErr, "%s %s interrupted", b.config.Executable, op)
	}
	b.log.WithError(err).Debugf("%s %s exited with code %d", b.config.Executable, op, exitCode)
	return nil, &shell.TransportError{Op: op, ExitCode: exitCode, Output: out.Bytes(), Err: err}
}

// RunRemoteShell runs script with `<bridge> shell <script>`. Old bridge
// versions turn "\n" into "\r\r\n"; that is undone here.
func (b *Bridge) RunRemoteShell(ctx context.Context, script string) ([]byte, error) {
	out, err := b.run(ctx, "shell", "shell", script)
	if err != nil {
		return nil, err
	}
	return bytes.ReplaceAll(out, []byte("\r\r\n"), []byte("\n")), nil
}

// CopyToRemote pushes a local file to remotePath.
func (b *Bridge) CopyToRemote(ctx context.Context, localPath, remotePath string) error {
	_, err := b.run(ctx, "push", "push", localPath, remotePath)
	return err
}

// RemoveRemote deletes remotePath on the device.
func (b *Bridge) RemoveRemote(ctx context.Context, remotePath string) error {
	_, err := b.run(ctx, "remove", "shell", "rm -f "+shell.Quote(shell.Arg(remotePath)))
	return err
}

// Pull copies remotePath from the device to localPath.
func (b *Bridge) Pull(ctx context.Context, remotePath, localPath string) error {
	_, err := b.run(ctx, "pull", "pull", remotePath, localPath)
	return err
}

// WaitForDevice blocks until the device is online.
func (b *Bridge) WaitForDevice(ctx context.Context) error {
	_, err := b.run(ctx, "wait-for-device", "wait-for-device")
	return err
}

// Reboot restarts the device, optionally into "bootloader", "recovery" or
// another mode understood by the bridge.
func (b *Bridge) Reboot(ctx context.Context, option string) error {
	args := []string{"reboot"}
	if option != "" {
		args = append(args, option)
	}
	_, err := b.run(ctx, "reboot", args...)
	return err
}

// Close is a no-op; every bridge invocation is a separate process.
func (b *Bridge) Close() error { return nil }

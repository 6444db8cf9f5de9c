package connector

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/hjbyt/adb/common"
	"github.com/hjbyt/adb/file"
	"github.com/hjbyt/adb/shell"
)

var _ Device = (*Local)(nil)
var _ Puller = (*Local)(nil)

// Local treats the host itself as the device: scripts run under a local
// shell and remote paths are host paths.
type Local struct {
	// Shell is invoked as `<Shell> -c <script>`.
	Shell string
}

// NewLocal returns a Local using shellPath, or common.DefaultLocalShell.
func NewLocal(shellPath string) *Local {
	if shellPath == "" {
		shellPath = common.DefaultLocalShell
	}
	return &Local{Shell: shellPath}
}

func (l *Local) RunRemoteShell(ctx context.Context, script string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, l.Shell, "-c", script)
	cmd.WaitDelay = waitDelay
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &shell.TransportError{Op: "shell", ExitCode: exitCode, Output: out.Bytes(), Err: err}
	}
	return out.Bytes(), nil
}

func (l *Local) CopyToRemote(ctx context.Context, localPath, remotePath string) error {
	if err := copyFile(localPath, remotePath); err != nil {
		return &shell.TransportError{Op: "copy", ExitCode: -1, Err: err}
	}
	return nil
}

func (l *Local) RemoveRemote(ctx context.Context, remotePath string) error {
	if err := os.Remove(remotePath); err != nil && !os.IsNotExist(err) {
		return &shell.TransportError{Op: "remove", ExitCode: -1, Err: err}
	}
	return nil
}

func (l *Local) Pull(ctx context.Context, remotePath, localPath string) error {
	if err := copyFile(remotePath, localPath); err != nil {
		return &shell.TransportError{Op: "pull", ExitCode: -1, Err: err}
	}
	return nil
}

func (l *Local) Close() error { return nil }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", src)
	}
	if err := file.CreateFileDir(dst); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", dst)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "failed to copy %s to %s", src, dst)
	}
	return errors.Wrapf(out.Close(), "failed to close %s", dst)
}

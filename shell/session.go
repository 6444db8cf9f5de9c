package shell

import (
	"context"
	"os"
	"path"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hjbyt/adb/common"
	"github.com/hjbyt/adb/file"
	"github.com/hjbyt/adb/hook"
	"github.com/hjbyt/adb/logger"
)

// FS holds local scratch files. Tests replace it with an in-memory filesystem.
var FS = afero.NewOsFs()

// TempName returns a unique file name with the given suffix. It is a
// variable so tests can make names predictable.
var TempName = func(suffix string) string {
	return common.AppName + "-" + uuid.NewString() + suffix
}

// Session owns one remote shell channel. Remote state such as the working
// directory is shared by every batch, so a session runs one batch at a time.
type Session struct {
	transport Transport
	markers   Markers
	tmpDir    string
	log       *logrus.Entry
	busy      atomic.Bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the entry the session logs through.
func WithLogger(log *logrus.Entry) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithMarkers sets the marker vocabulary.
func WithMarkers(m Markers) SessionOption {
	return func(s *Session) { s.markers = m }
}

// WithRandomMarkers gives the session a fresh random marker token.
func WithRandomMarkers() SessionOption {
	return func(s *Session) { s.markers = RandomMarkers() }
}

// WithRemoteTmpDir sets where temporary files are placed on the device.
func WithRemoteTmpDir(dir string) SessionOption {
	return func(s *Session) { s.tmpDir = dir }
}

// NewSession creates a session over t.
func NewSession(t Transport, opts ...SessionOption) *Session {
	s := &Session{
		transport: t,
		markers:   DefaultMarkers(),
		tmpDir:    common.GetRemoteTmpDir(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Log.Entry("shell")
	}
	return s
}

// Markers returns the session's marker vocabulary.
func (s *Session) Markers() Markers { return s.markers }

// RunResult runs a single command and returns its output and status.
func (s *Session) RunResult(ctx context.Context, cmd Command) (CommandResult, error) {
	outcome, err := s.Execute(ctx, []Command{cmd})
	if err != nil {
		return CommandResult{}, err
	}
	if len(outcome.Results) != 1 {
		return CommandResult{}, &ProtocolError{Reason: "single command produced no result", Partial: outcome.Results}
	}
	return outcome.Results[0], nil
}

// Run runs a single command and returns its output. A non-zero status is
// returned as a *CommandError carrying the output.
func (s *Session) Run(ctx context.Context, cmd Command) ([]byte, error) {
	res, err := s.RunResult(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if res.Status != 0 {
		s.log.WithField(common.CommandName, cmd.String()).Debugf("Command exited with status %d", res.Status)
		return res.Output, &CommandError{Command: cmd.String(), Output: res.Output, Status: res.Status}
	}
	return res.Output, nil
}

// RunSequence runs cmds as one batch, stopping at the first failure unless
// ContinueOnError is given.
func (s *Session) RunSequence(ctx context.Context, cmds []Command, opts ...ExecOption) (*Outcome, error) {
	return s.Execute(ctx, cmds, opts...)
}

// ExecuteScriptFile copies a local script to a temporary remote path, makes
// it executable and runs it with args. The remote copy is removed exactly
// once on every path, including a failed copy or a failing script.
func (s *Session) ExecuteScriptFile(ctx context.Context, localPath string, args ...string) ([]byte, error) {
	remotePath := path.Join(s.tmpDir, TempName(".sh"))
	log := s.log.WithField("script", remotePath)

	var output []byte
	var cleanupErr error
	err := hook.Call(hook.Funcs{
		TryFunc: func() error {
			if err := s.transport.CopyToRemote(ctx, localPath, remotePath); err != nil {
				return asTransportError("copy", err)
			}
			if _, err := s.Run(ctx, Args("chmod", "700", remotePath)); err != nil {
				return errors.Wrapf(err, "failed to make %s executable", remotePath)
			}
			out, err := s.Run(ctx, Args(append([]string{remotePath}, args...)...))
			output = out
			return err
		},
		FinallyFunc: func() {
			cleanupErr = s.removeRemote(ctx, remotePath)
		},
	})
	if cleanupErr != nil {
		log.WithError(cleanupErr).Warn("Failed to remove remote script")
		err = multierror.Append(err, cleanupErr).ErrorOrNil()
	}
	return output, err
}

// ExecuteScript writes body to a local scratch file and runs it like
// ExecuteScriptFile. The scratch file is deleted on every path.
func (s *Session) ExecuteScript(ctx context.Context, body string, args ...string) ([]byte, error) {
	scratch, err := afero.TempFile(FS, "", common.AppName+"-*.sh")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create local scratch script")
	}
	defer s.removeLocal(scratch.Name())

	_, err = scratch.WriteString(body)
	if closeErr := scratch.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to write local scratch script %s", scratch.Name())
	}
	return s.ExecuteScriptFile(ctx, scratch.Name(), args...)
}

// PushTree copies the contents of localDir into remoteDir in one transfer:
// the tree is packed into a gzipped tarball, copied, then extracted on the
// device with a stop-on-first-error batch.
func (s *Session) PushTree(ctx context.Context, localDir, remoteDir string) error {
	remoteArchive := path.Join(s.tmpDir, TempName(".tar.gz"))

	archive, err := afero.TempFile(FS, "", common.AppName+"-*.tar.gz")
	if err != nil {
		return errors.Wrap(err, "failed to create local archive")
	}
	localArchive := archive.Name()
	defer s.removeLocal(localArchive)

	err = file.TarTo(localDir, archive)
	if closeErr := archive.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "failed to pack %s", localDir)
	}

	var cleanupErr error
	err = hook.Call(hook.Funcs{
		TryFunc: func() error {
			if err := s.transport.CopyToRemote(ctx, localArchive, remoteArchive); err != nil {
				return asTransportError("copy", err)
			}
			_, err := s.Execute(ctx, []Command{
				Args("mkdir", "-p", remoteDir),
				Args("tar", "-xzf", remoteArchive, "-C", remoteDir),
			}, Strict())
			return err
		},
		FinallyFunc: func() {
			cleanupErr = s.removeRemote(ctx, remoteArchive)
		},
	})
	if cleanupErr != nil {
		err = multierror.Append(err, cleanupErr).ErrorOrNil()
	}
	return err
}

// removeRemote is attempted even when ctx is already cancelled.
func (s *Session) removeRemote(ctx context.Context, remotePath string) error {
	if err := s.transport.RemoveRemote(context.WithoutCancel(ctx), remotePath); err != nil {
		return asTransportError("remove", err)
	}
	return nil
}

func (s *Session) removeLocal(name string) {
	if err := FS.Remove(name); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).Warnf("Failed to remove local scratch file %s", name)
	}
}

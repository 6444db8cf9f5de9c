package shell

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hjbyt/adb/common"
	xtime "github.com/hjbyt/adb/time"
)

type execConfig struct {
	mode   Mode
	strict bool
}

// ExecOption configures one Execute call.
type ExecOption func(*execConfig)

// ContinueOnError runs every command of the batch regardless of failures.
func ContinueOnError() ExecOption {
	return func(c *execConfig) { c.mode = ModeContinueOnError }
}

// Strict turns the first non-zero command status into a *CommandError.
// The parsed Outcome is still returned alongside the error.
func Strict() ExecOption {
	return func(c *execConfig) { c.strict = true }
}

// WithMode sets the batch mode explicitly.
func WithMode(mode Mode) ExecOption {
	return func(c *execConfig) { c.mode = mode }
}

// Execute compiles batch into one script, runs it in a single round trip
// and demultiplexes the per-command results. An empty batch returns an
// empty Outcome without contacting the transport.
func (s *Session) Execute(ctx context.Context, batch []Command, opts ...ExecOption) (*Outcome, error) {
	cfg := execConfig{mode: ModeStopOnFirstError}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(batch) == 0 {
		return &Outcome{}, nil
	}

	script, err := s.markers.Compile(batch, cfg.mode)
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		common.BatchName: len(batch),
		"mode":           cfg.mode.String(),
	})
	raw, err := s.send(ctx, log, script)
	if err != nil {
		return nil, err
	}

	outcome, err := s.markers.Parse(raw, len(batch), cfg.mode)
	if err != nil {
		log.WithError(err).Error("Failed to parse batch output")
		return nil, err
	}
	if len(outcome.Results) < len(batch) {
		log.Debugf("Batch aborted after %d of %d commands with status %d",
			len(outcome.Results), len(batch), outcome.Status)
	}

	if cfg.strict {
		if i := outcome.FirstFailure(); i >= 0 {
			r := outcome.Results[i]
			return outcome, &CommandError{Command: batch[i].String(), Index: i, Output: r.Output, Status: r.Status}
		}
	}
	return outcome, nil
}

// SendRaw joins the prepared commands with the statement separator and
// sends them without markers or trap. Commands are not required.
func (s *Session) SendRaw(ctx context.Context, cmds ...Command) ([]byte, error) {
	script, err := JoinCommands(cmds)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, s.log.WithField(common.BatchName, len(cmds)), script)
}

// send performs the single transport call of a batch. A session serves one
// batch at a time; a concurrent caller gets ErrSessionBusy.
func (s *Session) send(ctx context.Context, log *logrus.Entry, script string) ([]byte, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrSessionBusy
	}
	defer s.busy.Store(false)

	start := time.Now()
	log.Debugf("Sending %d bytes of script", len(script))
	raw, err := s.transport.RunRemoteShell(ctx, script)
	if err != nil {
		err = asTransportError("shell", err)
		log.WithError(err).Error("Remote shell invocation failed")
		return nil, err
	}
	log.WithField("duration", xtime.ShortDur(time.Since(start))).Debugf("Received %d bytes", len(raw))
	return raw, nil
}

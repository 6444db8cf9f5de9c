package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hjbyt/adb/logger"
	"github.com/hjbyt/adb/shell"
)

func newShellCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell <command> [args...]",
		Short: "Run one command on the device",
		Long: `Run one command on the device and print its output. The arguments are
joined and passed to the remote shell unchanged, so pipes and redirections
work. The exit status of the command becomes the exit status of adb.

Examples:
  adb shell getprop ro.build.version.release
  adb shell "ls /sdcard | wc -l"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, sess, err := o.connect()
			if err != nil {
				return err
			}
			defer o.closeDevice(dev)

			line := strings.Join(args, " ")
			res, err := sess.RunResult(commandContext(cmd), shell.RawUnquoted(line))
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(res.Output); err != nil {
				return err
			}
			if res.Status != 0 {
				logger.Log.WarnCommand(line, "Command exited non-zero", logrus.Fields{"status": res.Status})
				return &exitError{code: res.Status}
			}
			return nil
		},
	}
}

type batchOptions struct {
	continueOnError bool
	file            string
	quiet           bool
}

func newBatchCmd(o *rootOptions) *cobra.Command {
	bo := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch [command...]",
		Short: "Run several commands in one round trip",
		Long: `Run several commands in a single round trip and report each command's
output and exit status. By default the batch stops at the first failing
command; --continue runs every command.

Commands come from the arguments, one per argument, or from --file, one per
line ("-" reads standard input). Blank lines and lines starting with '#' in
the file are skipped.

Examples:
  adb batch "pm list packages" "dumpsys battery"
  adb batch --continue --file setup.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := bo.commands(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return errors.New("no commands given")
			}

			batch := make([]shell.Command, len(lines))
			for i, l := range lines {
				batch[i] = shell.RawUnquoted(l)
			}

			dev, sess, err := o.connect()
			if err != nil {
				return err
			}
			defer o.closeDevice(dev)

			var opts []shell.ExecOption
			if bo.continueOnError {
				opts = append(opts, shell.ContinueOnError())
			}
			name := fmt.Sprintf("%d commands", len(batch))
			logger.Log.DebugfBatch(name, "Running in %s mode", batchMode(opts))
			outcome, err := sess.Execute(commandContext(cmd), batch, opts...)
			if err != nil {
				return err
			}
			if outcome.Failed {
				logger.Log.WarnfBatch(name, "Finished with status %d after %d command(s)", outcome.Status, len(outcome.Results))
			}
			if err := bo.report(cmd.OutOrStdout(), lines, outcome); err != nil {
				return err
			}

			switch {
			case outcome.Status != 0:
				return &exitError{code: outcome.Status}
			case outcome.Failed:
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&bo.continueOnError, "continue", false, "keep running after a command fails")
	cmd.Flags().StringVarP(&bo.file, "file", "f", "", "read commands from a file, one per line")
	cmd.Flags().BoolVarP(&bo.quiet, "quiet", "q", false, "print command outputs only")
	return cmd
}

func batchMode(opts []shell.ExecOption) shell.Mode {
	if len(opts) > 0 {
		return shell.ModeContinueOnError
	}
	return shell.ModeStopOnFirstError
}

func (bo *batchOptions) commands(stdin io.Reader, args []string) ([]string, error) {
	if bo.file == "" {
		return args, nil
	}
	if len(args) > 0 {
		return nil, errors.New("commands cannot be given both as arguments and with --file")
	}

	r := stdin
	if bo.file != "-" {
		f, err := os.Open(bo.file)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open command file %s", bo.file)
		}
		defer f.Close()
		r = f
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, errors.Wrapf(scanner.Err(), "failed to read commands from %s", bo.file)
}

func (bo *batchOptions) report(w io.Writer, lines []string, outcome *shell.Outcome) error {
	bw := bufio.NewWriter(w)
	for i, r := range outcome.Results {
		if !bo.quiet {
			fmt.Fprintf(bw, "=== [%d] %s (status %d)\n", i, lines[i], r.Status)
		}
		bw.Write(r.Output)
		if !bo.quiet && len(r.Output) > 0 && r.Output[len(r.Output)-1] != '\n' {
			bw.WriteByte('\n')
		}
	}
	if !bo.quiet {
		if skipped := len(lines) - len(outcome.Results); skipped > 0 {
			fmt.Fprintf(bw, "=== %d command(s) not run\n", skipped)
		}
	}
	return bw.Flush()
}

func newScriptCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "script <local-script> [args...]",
		Short: "Copy a local script to the device and run it",
		Long: `Copy a local script to a temporary file on the device, run it with the
given arguments and remove it afterwards, whether or not it succeeded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, sess, err := o.connect()
			if err != nil {
				return err
			}
			defer o.closeDevice(dev)

			out, err := sess.ExecuteScriptFile(commandContext(cmd), args[0], args[1:]...)
			if err != nil {
				logger.Log.ErrorfCommand(args[0], err, "Script failed")
			}
			if _, werr := cmd.OutOrStdout().Write(out); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}
}

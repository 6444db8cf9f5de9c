package shell

import (
	"strings"

	"github.com/pkg/errors"
)

// StatementSeparator joins the statements of a compiled batch.
const StatementSeparator = " ; "

// stopGuard follows every command in ModeStopOnFirstError. It uses only
// POSIX syntax, since dash has no ERR trap.
var stopGuard = []string{"st=$?", "[ $st -eq 0 ] || exit $st"}

// trap returns the statement installed at the start of every batch. It
// reports the final status through the global marker and exits 0, so the
// bridge itself never reports a command failure as its own.
func (m Markers) trap() string {
	return "trap 'st=$?; echo -n " + m.status + "$st; exit 0' EXIT"
}

// Compile turns a batch into a single script. An empty batch compiles to an
// empty script.
func (m Markers) Compile(batch []Command, mode Mode) (string, error) {
	if len(batch) == 0 {
		return "", nil
	}

	stmts := make([]string, 0, 1+4*len(batch))
	stmts = append(stmts, m.trap())
	for i, c := range batch {
		line, err := PrepareCommand(c)
		if err != nil {
			return "", errors.Wrapf(err, "command %d", i)
		}
		stmts = append(stmts, "echo -n "+m.Begin(i))
		// An empty statement between separators is a shell syntax error.
		if strings.TrimSpace(line) != "" {
			stmts = append(stmts, line)
		}
		if mode == ModeContinueOnError {
			stmts = append(stmts, "echo -n "+m.Exit(i)+"$?")
		} else {
			stmts = append(stmts, stopGuard...)
		}
	}
	return strings.Join(stmts, StatementSeparator), nil
}

// JoinCommands prepares each command and joins the lines without markers.
func JoinCommands(cmds []Command) (string, error) {
	lines := make([]string, 0, len(cmds))
	for i, c := range cmds {
		line, err := PrepareCommand(c)
		if err != nil {
			return "", errors.Wrapf(err, "command %d", i)
		}
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, StatementSeparator), nil
}

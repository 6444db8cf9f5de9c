package shell

// Mode selects how a batch reacts to a command exiting non-zero.
type Mode int

const (
	// ModeStopOnFirstError aborts the batch at the first non-zero exit. Commands
	// after the failing one never run and are absent from the Outcome.
	ModeStopOnFirstError Mode = iota
	// ModeContinueOnError runs every command and records each exit status.
	ModeContinueOnError
)

func (m Mode) String() string {
	switch m {
	case ModeStopOnFirstError:
		return "stop-on-first-error"
	case ModeContinueOnError:
		return "continue-on-error"
	default:
		return "unknown"
	}
}

// CommandResult is the output and exit status of one command that started.
type CommandResult struct {
	Output []byte
	Status int
}

// Outcome is the parsed result of one batch.
type Outcome struct {
	// Results are in submission order. In stop mode the slice is
	// shorter than the batch when a command aborted it.
	Results []CommandResult
	// Status is the status reported by the trap when the script ended.
	Status int
	// Failed is set when Status or any result status is non-zero.
	Failed bool
	// Preamble holds bytes the remote shell printed before the first command
	// marker, such as login banners or trap warnings.
	Preamble []byte
}

// FirstFailure returns the index of the first result with a non-zero status,
// or -1.
func (o *Outcome) FirstFailure() int {
	for i, r := range o.Results {
		if r.Status != 0 {
			return i
		}
	}
	return -1
}

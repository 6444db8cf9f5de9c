package shell

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultMarkerToken is the opaque part of every marker. Peers that parse
// the raw stream themselves rely on this exact value.
const DefaultMarkerToken = "QTMALS12K"

// Markers is the sentinel vocabulary of one session:
//
//	__STATUS_<token>__=<status>   emitted once by the trap when the script ends
//	__BEGIN_<token>__<i>:         emitted right before command i
//	__EXIT_<token>__<i>=<status>  emitted right after command i (ModeContinueOnError only)
type Markers struct {
	token  string
	status string
}

// DefaultMarkers uses DefaultMarkerToken.
func DefaultMarkers() Markers {
	m, _ := NewMarkers(DefaultMarkerToken)
	return m
}

// RandomMarkers derives a fresh token from a UUID, making a collision with
// command output practically impossible.
func RandomMarkers() Markers {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	m, _ := NewMarkers(token)
	return m
}

// NewMarkers validates token. It is embedded unquoted in the script and in
// a single-quoted trap, so only ASCII letters, digits and '_' are allowed.
func NewMarkers(token string) (Markers, error) {
	if token == "" {
		return Markers{}, errors.New("marker token cannot be empty")
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return Markers{}, errors.Errorf("marker token %q contains invalid character %q", token, c)
		}
	}
	return Markers{token: token, status: "__STATUS_" + token + "__="}, nil
}

// Token returns the opaque token.
func (m Markers) Token() string { return m.token }

// Status returns the global status marker prefix.
func (m Markers) Status() string { return m.status }

// Begin returns the boundary marker of batch position i.
func (m Markers) Begin(i int) string {
	return "__BEGIN_" + m.token + "__" + strconv.Itoa(i) + ":"
}

// Exit returns the per-command exit marker prefix of batch position i.
func (m Markers) Exit(i int) string {
	return "__EXIT_" + m.token + "__" + strconv.Itoa(i) + "="
}

// Parse recovers the per-command results of a batch of expected commands
// compiled with the same markers and mode.
func (m Markers) Parse(raw []byte, expected int, mode Mode) (*Outcome, error) {
	out := &Outcome{}
	live := raw

	if idx := bytes.LastIndex(raw, []byte(m.status)); idx >= 0 {
		status, err := parseStatus(raw[idx+len(m.status):])
		if err != nil {
			return nil, &ProtocolError{Reason: "global status: " + err.Error(), Raw: raw}
		}
		out.Status = status
		live = raw[:idx]
	}
	out.Failed = out.Status != 0

	if expected <= 0 {
		if len(live) > 0 {
			out.Preamble = live
		}
		return out, nil
	}

	// Markers are searched in order from a moving cursor so that a marker
	// for position i is only accepted after the one for i-1.
	var markerAt, contentAt []int
	cursor := 0
	for i := 0; i < expected; i++ {
		marker := []byte(m.Begin(i))
		idx := bytes.Index(live[cursor:], marker)
		if idx < 0 {
			break
		}
		markerAt = append(markerAt, cursor+idx)
		cursor += idx + len(marker)
		contentAt = append(contentAt, cursor)
	}
	if len(markerAt) == 0 {
		return nil, &ProtocolError{
			Reason: fmt.Sprintf("none of the %d command markers found; the remote shell did not run the batch", expected),
			Raw:    raw,
		}
	}
	if markerAt[0] > 0 {
		out.Preamble = live[:markerAt[0]]
	}

	token := []byte(m.token)
	results := make([]CommandResult, 0, len(markerAt))
	for i := range markerAt {
		end := len(live)
		if i+1 < len(markerAt) {
			end = markerAt[i+1]
		}
		segment := live[contentAt[i]:end]
		last := i == len(markerAt)-1

		var res CommandResult
		switch mode {
		case ModeContinueOnError:
			exitMarker := []byte(m.Exit(i))
			j := bytes.LastIndex(segment, exitMarker)
			switch {
			case j >= 0:
				status, err := parseStatus(segment[j+len(exitMarker):])
				if err != nil {
					return nil, &ProtocolError{Reason: fmt.Sprintf("command %d status: %v", i, err), Raw: raw, Partial: results}
				}
				res = CommandResult{Output: segment[:j], Status: status}
			case last:
				// The command ended the script itself, e.g. with exit.
				res = CommandResult{Output: segment, Status: out.Status}
			default:
				return nil, &ProtocolError{Reason: fmt.Sprintf("command %d has no exit marker", i), Raw: raw, Partial: results}
			}
		default:
			res = CommandResult{Output: segment}
			if last {
				res.Status = out.Status
			}
		}

		if bytes.Contains(res.Output, token) {
			return nil, &ProtocolError{
				Reason:  fmt.Sprintf("output of command %d contains the marker token %q", i, m.token),
				Raw:     raw,
				Partial: results,
			}
		}
		if res.Status != 0 {
			out.Failed = true
		}
		results = append(results, res)
	}
	// Commands only go missing when the script ended with a failure.
	if len(results) < expected && out.Status == 0 {
		return nil, &ProtocolError{
			Reason:  fmt.Sprintf("batch ended after %d of %d commands with status 0", len(results), expected),
			Raw:     raw,
			Partial: results,
		}
	}
	out.Results = results
	return out, nil
}

func parseStatus(b []byte) (int, error) {
	text := strings.TrimSpace(string(b))
	status, err := strconv.Atoi(text)
	if err != nil {
		return 0, errors.Errorf("invalid status %q", text)
	}
	return status, nil
}

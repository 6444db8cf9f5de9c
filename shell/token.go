package shell

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Token is a single argument atom. A PreQuoted token is already shell-safe
// and is never escaped again.
type Token struct {
	Text      string
	PreQuoted bool
}

// Arg returns a token that will be escaped.
func Arg(text string) Token { return Token{Text: text} }

// Unquoted returns a token passed to the remote shell verbatim, so that
// redirections, pipes and variable expansion keep their meaning.
func Unquoted(text string) Token { return Token{Text: text, PreQuoted: true} }

// Command is a logical command: either a raw string that is word-split
// before quoting, or an explicit token sequence. The zero value is an empty
// command, which compiles to an empty line.
type Command struct {
	raw       string
	isRaw     bool
	preQuoted bool
	tokens    []Token
}

// Raw returns a command that is word-split with POSIX rules and then quoted
// token by token.
func Raw(command string) Command {
	return Command{raw: command, isRaw: true}
}

// RawUnquoted is like Raw, but every word produced by the split is passed
// through verbatim.
func RawUnquoted(command string) Command {
	return Command{raw: command, isRaw: true, preQuoted: true}
}

// Tokens returns a command made of the given tokens.
func Tokens(tokens ...Token) Command {
	return Command{tokens: append([]Token(nil), tokens...)}
}

// Args returns a command made of plain argument tokens.
func Args(args ...string) Command {
	tokens := make([]Token, len(args))
	for i, a := range args {
		tokens[i] = Arg(a)
	}
	return Command{tokens: tokens}
}

// String renders the command for logs and error messages. It is not the
// compiled line.
func (c Command) String() string {
	if c.isRaw {
		return c.raw
	}
	parts := make([]string, len(c.tokens))
	for i, t := range c.tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// Quote escapes a token so that a POSIX shell word splitter reproduces
// exactly its text. PreQuoted tokens are returned unchanged.
func Quote(t Token) string {
	if t.PreQuoted {
		return t.Text
	}
	if t.Text == "" {
		return "''"
	}
	if isShellSafe(t.Text) {
		return t.Text
	}
	return "'" + strings.ReplaceAll(t.Text, "'", `'\''`) + "'"
}

func isShellSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("_@%+=:,./-", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// PrepareCommand turns a logical command into one shell-safe line.
func PrepareCommand(c Command) (string, error) {
	tokens := c.tokens
	if c.isRaw {
		words, err := shellquote.Split(c.raw)
		if err != nil {
			return "", &MalformedCommandError{Command: c.raw, Err: err}
		}
		tokens = make([]Token, len(words))
		for i, w := range words {
			tokens[i] = Token{Text: w, PreQuoted: c.preQuoted}
		}
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = Quote(t)
	}
	return strings.Join(quoted, " "), nil
}

package shell

import (
	"bufio"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// LineReader supplies input lines. Readline returns io.EOF at the end of
// input and readline.ErrInterrupt when the user cancels the current line.
// *readline.Instance implements it.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

// NewTerminalReader returns a readline instance with history kept in
// historyFile, if set.
func NewTerminalReader(historyFile string, maxHistory int) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:            "gpkg> ",
		HistoryFile:       historyFile,
		HistoryLimit:      maxHistory,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      readline.NewPrefixCompleter(metaCompletions()...),
	})
}

func metaCompletions() []readline.PrefixCompleterInterface {
	items := make([]readline.PrefixCompleterInterface, 0, len(metaCommands))
	for _, m := range metaCommands {
		items = append(items, readline.PcItem(m.name))
	}
	return items
}

// Feed reads lines from r without line editing, for piped input and
// tests.
type Feed struct {
	scanner *bufio.Scanner
}

// NewFeed returns a Feed over r.
func NewFeed(r io.Reader) *Feed {
	return &Feed{scanner: bufio.NewScanner(r)}
}

// Lines returns a Feed over the given lines.
func Lines(lines ...string) *Feed {
	return NewFeed(strings.NewReader(strings.Join(lines, "\n")))
}

func (f *Feed) Readline() (string, error) {
	if f.scanner.Scan() {
		return f.scanner.Text(), nil
	}
	if err := f.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (f *Feed) SetPrompt(string) {}

func (f *Feed) Close() error { return nil }

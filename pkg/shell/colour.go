package shell

import (
	"os"

	"golang.org/x/term"
)

// palette holds the ANSI sequences used for output. All fields are empty
// when colour is off.
type palette struct {
	reset, bold, dim, red, green string
}

// newPalette resolves a colour mode of "auto", "always" or "never".
// In auto mode colour is on when f is a terminal, unless NO_COLOR or a
// dumb TERM says otherwise; FORCE_COLOR and CLICOLOR_FORCE turn it on.
func newPalette(mode string, f *os.File) palette {
	var on bool
	switch mode {
	case "always":
		on = true
	case "never":
		on = false
	default:
		on = f != nil && term.IsTerminal(int(f.Fd()))
		if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
			on = false
		}
		if os.Getenv("FORCE_COLOR") != "" || os.Getenv("CLICOLOR_FORCE") != "" {
			on = true
		}
	}
	if !on {
		return palette{}
	}
	return palette{
		reset: "\033[0m",
		bold:  "\033[1m",
		dim:   "\033[2m",
		red:   "\033[31m",
		green: "\033[32m",
	}
}

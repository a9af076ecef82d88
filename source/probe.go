package source

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Capabilities describes what the host environment can provide. It is
// computed once at startup and passed down, never re-queried.
type Capabilities struct {
	// Terminal is true when stdin is an interactive terminal.
	Terminal bool
	// StdinCapture is true when stdin is redirected, so an image data URL
	// can be read from it.
	StdinCapture bool
}

// Probe inspects stdin. A nil file yields no capabilities.
func Probe(stdin *os.File) Capabilities {
	if stdin == nil {
		return Capabilities{}
	}
	fd := stdin.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return Capabilities{
		Terminal:     tty,
		StdinCapture: !tty,
	}
}

package report

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// colorsDisabledByEnv reports whether NO_COLOR is set to a non-empty value.
func colorsDisabledByEnv() bool {
	return os.Getenv("NO_COLOR") != ""
}

package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/preflight/pkg/domain"
	"github.com/muesli/termenv"
)

func output(w io.Writer) *termenv.Output {
	if IsTerminal(w) {
		return termenv.NewOutput(w)
	}
	return termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))
}

// PrintBanner writes the server banner.
func PrintBanner(w io.Writer, version string) {
	out := output(w)
	name := out.String("preflight").Bold().Foreground(out.Color("#818cf8"))
	ver := out.String("v" + version).Foreground(out.Color("#c084fc"))
	fmt.Fprintf(w, "\n  %s %s\n\n", name, ver)
}

// Verdict returns a one-line, colored summary of a run.
func Verdict(w io.Writer, res *domain.RunResult) string {
	out := output(w)
	switch {
	case res.Blocked():
		reasons := 0
		if res.Gate != nil {
			reasons = len(res.Gate.Reasons)
		}
		return out.String(fmt.Sprintf("BLOCKED  %d reason(s)  run %s", reasons, res.RunID)).
			Foreground(out.Color("1")).Bold().String()
	case res.Compose != nil && res.Compose.RecoveredFrom != "":
		return out.String(fmt.Sprintf("COMPOSED (recovered from %s)  run %s", res.Compose.RecoveredFrom, res.RunID)).
			Foreground(out.Color("3")).Bold().String()
	default:
		return out.String(fmt.Sprintf("COMPOSED  run %s", res.RunID)).
			Foreground(out.Color("2")).Bold().String()
	}
}

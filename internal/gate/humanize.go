package gate

import (
	"fmt"
	"strings"

	"github.com/aretw0/preflight/pkg/domain"
)

// Humanize renders a gate outcome as Markdown. It depends only on its arguments:
// no reasons means the request passed.
func Humanize(reasons []domain.Reason, actions []string) string {
	var b strings.Builder
	if len(reasons) == 0 {
		b.WriteString("**PreCheck result: PASSED**\n")
	} else {
		b.WriteString("**PreCheck result: BLOCKED**\n")
	}

	b.WriteString("\n### Problems\n\n")
	if len(reasons) == 0 {
		b.WriteString("- none\n")
	}
	for _, r := range reasons {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", r.Severity, r.Code, r.Message)
	}

	b.WriteString("\n### Suggested actions\n\n")
	if len(actions) == 0 {
		b.WriteString("- none\n")
	}
	for _, a := range actions {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	return b.String()
}

package classify

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// CommandClassifier runs an external program with the artifact path appended
// to its arguments. The last non-empty stdout line must hold the histogram.
type CommandClassifier struct {
	Argv []string
}

func NewCommandClassifier(argv []string) *CommandClassifier {
	return &CommandClassifier{Argv: append([]string(nil), argv...)}
}

func (c *CommandClassifier) Classify(ctx context.Context, artifactPath string) (domain.Histogram, error) {
	if len(c.Argv) == 0 {
		return nil, domain.ClassifyError("no classifier command configured")
	}
	args := append(append([]string(nil), c.Argv[1:]...), artifactPath)
	cmd := exec.CommandContext(ctx, c.Argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, domain.ClassifyError("%s interrupted: %v", c.Argv[0], ctx.Err())
		}
		return nil, domain.ClassifyError("%s: %v: %s", c.Argv[0], err, strings.TrimSpace(stderr.String()))
	}

	line := lastNonEmpty(stdout.String())
	if line == "" {
		return nil, domain.ClassifyError("%s printed nothing", c.Argv[0])
	}
	h, err := parseHistogram([]byte(line))
	if err != nil {
		// scripts commonly print a dict literal with single quotes
		return parseHistogram([]byte(strings.ReplaceAll(line, "'", `"`)))
	}
	return h, nil
}

func lastNonEmpty(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

var _ ports.Classifier = (*CommandClassifier)(nil)

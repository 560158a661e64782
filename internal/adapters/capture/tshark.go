package capture

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

// Tshark captures with `tshark -i IFACE -a duration:N -w PATH`.
type Tshark struct {
	Tool      string
	Interface string
}

func NewTshark(tool, iface string) *Tshark {
	if tool == "" {
		tool = "tshark"
	}
	return &Tshark{Tool: tool, Interface: iface}
}

func (t *Tshark) args(duration time.Duration, outputPath string) []string {
	secs := int(math.Ceil(duration.Seconds()))
	if secs < 1 {
		secs = 1
	}
	var args []string
	if t.Interface != "" {
		args = append(args, "-i", t.Interface)
	}
	return append(args, "-q", "-a", fmt.Sprintf("duration:%d", secs), "-w", outputPath)
}

func (t *Tshark) Capture(ctx context.Context, duration time.Duration, outputPath string) error {
	// a stale artifact must never be classified as the new capture
	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		return domain.CaptureError("remove stale %s: %v", outputPath, err)
	}

	cmd := exec.CommandContext(ctx, t.Tool, t.args(duration, outputPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return domain.CaptureError("%s interrupted: %v", t.Tool, ctx.Err())
		}
		return domain.CaptureError("%s: %v: %s", t.Tool, err, lastLine(stderr.String()))
	}
	if _, err := os.Stat(outputPath); err != nil {
		return domain.CaptureError("%s wrote no artifact: %v", t.Tool, err)
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

var _ ports.Capturer = (*Tshark)(nil)

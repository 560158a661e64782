package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

const maxResponseBytes = 1 << 20

// HTTPClassifier posts the artifact path to a model service and reads back
// a JSON object of label -> packet count.
type HTTPClassifier struct {
	URL    string
	Client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{URL: url, Client: &http.Client{Timeout: timeout}}
}

type classifyRequest struct {
	Path string `json:"path"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, artifactPath string) (domain.Histogram, error) {
	body, err := json.Marshal(classifyRequest{Path: artifactPath})
	if err != nil {
		return nil, domain.ClassifyError("encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, domain.ClassifyError("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.ClassifyError("post %s: %v", c.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.ClassifyError("read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.ClassifyError("classifier returned %s: %s", resp.Status, bytes.TrimSpace(raw))
	}
	return parseHistogram(raw)
}

// parseHistogram accepts a flat object or one wrapped in {"histogram": ...}.
func parseHistogram(raw []byte) (domain.Histogram, error) {
	var wrapped struct {
		Histogram map[string]float64 `json:"histogram"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Histogram != nil {
		return toHistogram(wrapped.Histogram)
	}
	var flat map[string]float64
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, domain.ClassifyError("decode histogram: %v", err)
	}
	return toHistogram(flat)
}

func toHistogram(m map[string]float64) (domain.Histogram, error) {
	h := make(domain.Histogram, len(m))
	for label, v := range m {
		if v < 0 || v > math.MaxInt32 || v != math.Trunc(v) {
			return nil, domain.ClassifyError("label %q has invalid count %v", label, v)
		}
		h[label] = int(v)
	}
	return h, nil
}

func (c *HTTPClassifier) String() string {
	return fmt.Sprintf("http(%s)", c.URL)
}

var _ ports.Classifier = (*HTTPClassifier)(nil)

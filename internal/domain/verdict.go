package domain

import "sort"

// NormalLabel is the classifier label for benign traffic.
const NormalLabel = "Normal"

// Histogram maps a traffic category label to a packet count. A fresh one is
// produced per capture and never merged with another.
type Histogram map[string]int

// LabelCount is one histogram entry.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Normal returns the packet count classified as benign.
func (h Histogram) Normal() int {
	return h[NormalLabel]
}

// AttackTotal sums every non-Normal label.
func (h Histogram) AttackTotal() int {
	total := 0
	for label, n := range h {
		if label == NormalLabel {
			continue
		}
		total += n
	}
	return total
}

// Total sums every label.
func (h Histogram) Total() int {
	return h.Normal() + h.AttackTotal()
}

// Dominant returns up to n non-Normal labels with a positive count, ordered by
// descending count and then by label.
func (h Histogram) Dominant(n int) []LabelCount {
	out := make([]LabelCount, 0, len(h))
	for label, count := range h {
		if label == NormalLabel || count <= 0 {
			continue
		}
		out = append(out, LabelCount{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Clone returns an independent copy.
func (h Histogram) Clone() Histogram {
	if h == nil {
		return nil
	}
	out := make(Histogram, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Verdict is the outcome of classifying one capture.
type Verdict struct {
	AttackDetected bool      `json:"attack_detected"`
	Details        *string   `json:"details,omitempty"`
	CycleID        string    `json:"cycle_id,omitempty"`
	Histogram      Histogram `json:"histogram,omitempty"`
}

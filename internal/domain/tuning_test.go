package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTuningEventCarriesSeconds(t *testing.T) {
	st := TuningState{CaptureDuration: 63 * time.Second, CycleInterval: 16500 * time.Millisecond, PreviousAttackDetected: true}
	raw, err := json.Marshal(NewTuningEvent(st, time.Unix(1700000000, 0)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, want := range []string{`"capture_duration_seconds":63`, `"cycle_interval_seconds":16.5`, `"previous_attack_detected":true`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}

	var back Event
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Tuning == nil || *back.Tuning != st {
		t.Fatalf("tuning state changed on the way back: %+v", back.Tuning)
	}
}

package types

import "testing"

func TestMaxRiskMonotonicAnyOrder(t *testing.T) {
	levels := []RiskLevel{RiskLow, RiskHigh, RiskMedium}

	orders := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for _, order := range orders {
		merged := RiskLow
		for _, i := range order {
			merged = MaxRisk(merged, levels[i])
		}
		if merged != RiskHigh {
			t.Fatalf("order %v: merged=%s, want HIGH", order, merged)
		}
	}
}

func TestMaxRiskNeverDowngrades(t *testing.T) {
	if got := MaxRisk(RiskCritical, RiskLow); got != RiskCritical {
		t.Fatalf("got %s, want CRITICAL", got)
	}
	if got := MaxRisk(RiskMedium, RiskMedium); got != RiskMedium {
		t.Fatalf("got %s, want MEDIUM", got)
	}
}

func TestParseRiskLevelCaseInsensitive(t *testing.T) {
	for raw, want := range map[string]RiskLevel{
		"high":     RiskHigh,
		"HIGH":     RiskHigh,
		" Critical ": RiskCritical,
		"low":      RiskLow,
	} {
		got, err := ParseRiskLevel(raw)
		if err != nil {
			t.Fatalf("ParseRiskLevel(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseRiskLevel(%q)=%s, want %s", raw, got, want)
		}
	}

	if _, err := ParseRiskLevel("severe"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestBackendForRoom(t *testing.T) {
	if got := BackendForRoom("sip-bridge-abc123"); got != BackendBridge {
		t.Fatalf("got %s, want bridge", got)
	}
	if got := BackendForRoom("call-room-42"); got != BackendMediaRoom {
		t.Fatalf("got %s, want media_room", got)
	}
}

package macro

import (
	"time"

	"probable-pancake/internal/domain"
)

// GateResult is the macro gate verdict for a proposed entry.
type GateResult struct {
	Allowed        bool
	SizeMultiplier float64
	Reason         string
}

// AllowTrade applies the macro bias to a proposed entry. A stale or missing
// snapshot never blocks: the deterministic engine keeps working when FRED is
// down. A high-confidence opposing bias blocks everything except grade A
// setups, which trade at half size; medium opposition trims size; anything
// else passes at full size.
func AllowTrade(snapshot *domain.MacroSnapshot, direction domain.Direction, grade string, now time.Time, ttl time.Duration) GateResult {
	if !direction.IsEntry() {
		return GateResult{Allowed: true, SizeMultiplier: 1.0, Reason: "no entry"}
	}
	if snapshot == nil || snapshot.Stale(now, ttl) {
		return GateResult{Allowed: true, SizeMultiplier: 1.0, Reason: "macro stale"}
	}
	if !snapshot.Opposes(direction) {
		return GateResult{Allowed: true, SizeMultiplier: 1.0, Reason: "macro aligned"}
	}

	switch snapshot.Confidence {
	case domain.MacroConfidenceHigh:
		if grade == "A" {
			return GateResult{Allowed: true, SizeMultiplier: 0.5, Reason: "macro opposed, grade A at half size"}
		}
		return GateResult{Allowed: false, SizeMultiplier: 0, Reason: "macro opposed with high confidence"}
	case domain.MacroConfidenceMedium:
		return GateResult{Allowed: true, SizeMultiplier: 0.75, Reason: "macro opposed, reduced size"}
	}
	return GateResult{Allowed: true, SizeMultiplier: 1.0, Reason: "macro opposed, low confidence"}
}

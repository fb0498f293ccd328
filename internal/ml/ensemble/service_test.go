package ensemble

import (
	"testing"

	"probable-pancake/internal/domain"
)

func TestScoreAndDirection(t *testing.T) {
	s := NewService()
	score := s.Score(Components{
		ClassicScore: 0.5,
		LogRegProb:   0.7,
		XGBoostProb:  0.8,
	})
	if score <= 0.15 {
		t.Fatalf("expected bullish score > 0.15, got %.4f", score)
	}
	if dir := Direction(score); dir != domain.DirectionBuy {
		t.Fatalf("expected buy direction, got %s", dir)
	}

	score = s.Score(Components{
		ClassicScore: -0.7,
		LogRegProb:   0.3,
		XGBoostProb:  0.2,
	})
	if score >= -0.15 {
		t.Fatalf("expected bearish score < -0.15, got %.4f", score)
	}
	if dir := Direction(score); dir != domain.DirectionSell {
		t.Fatalf("expected sell direction, got %s", dir)
	}

	if dir := Direction(0.05); dir != domain.DirectionHold {
		t.Fatalf("expected hold inside the dead band, got %s", dir)
	}
}

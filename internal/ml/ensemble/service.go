package ensemble

import "probable-pancake/internal/domain"

// Components are the three score sources blended into the ensemble: the
// deterministic engine's confluence read and the two model probabilities.
type Components struct {
	ClassicScore float64
	LogRegProb   float64
	XGBoostProb  float64
}

type Service struct{}

func NewService() *Service { return &Service{} }

// Score blends the components into [-1, 1]. The probabilities are recentered
// so 0.5 contributes nothing.
func (s *Service) Score(c Components) float64 {
	logRegScore := 2*c.LogRegProb - 1
	xgbScore := 2*c.XGBoostProb - 1
	return 0.30*c.ClassicScore + 0.35*logRegScore + 0.35*xgbScore
}

// Direction thresholds the blended score.
func Direction(score float64) domain.Direction {
	if score > 0.15 {
		return domain.DirectionBuy
	}
	if score < -0.15 {
		return domain.DirectionSell
	}
	return domain.DirectionHold
}

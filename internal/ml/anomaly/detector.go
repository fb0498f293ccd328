package anomaly

import (
	"errors"

	"probable-pancake/internal/domain"
	"probable-pancake/internal/ml/common"

	"github.com/narumiruna/go-iforest/pkg/iforest"
)

// MinFitSamples is the smallest history a forest is grown on.
const MinFitSamples = 64

// Detector scores feature rows against an isolation forest grown on recent
// history. High scores mark regime conditions the model has rarely seen.
type Detector struct {
	forest *iforest.IsolationForest
}

// Fit grows a forest on the given rows.
func Fit(rows []domain.MLFeatureRow) (*Detector, error) {
	if len(rows) < MinFitSamples {
		return nil, errors.New("not enough rows to fit anomaly detector")
	}
	samples := make([][]float64, 0, len(rows))
	for i := range rows {
		samples = append(samples, common.FeatureVector(rows[i]))
	}
	forest := iforest.New()
	forest.Fit(samples)
	return &Detector{forest: forest}, nil
}

// Score returns the anomaly score for a single row, in [0, 1] with higher
// meaning more anomalous.
func (d *Detector) Score(row domain.MLFeatureRow) float64 {
	scores := d.forest.Score([][]float64{common.FeatureVector(row)})
	if len(scores) == 0 {
		return 0
	}
	return scores[0]
}

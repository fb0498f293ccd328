package domain

import "time"

// MLFeatureRow is one labeled observation for the auxiliary classifier lane.
// The target is whether close was higher targetBars later; it stays nil for
// rows whose horizon has not elapsed yet.
type MLFeatureRow struct {
	Pair          string
	Granularity   string
	OpenTime      time.Time
	Ret1          float64
	Ret4          float64
	Ret16         float64
	Ret96         float64
	Volatility24  float64
	Volatility96  float64
	VolumeZ96     float64
	RSI14         float64
	MACDLine      float64
	MACDSignal    float64
	MACDHist      float64
	BBPos         float64
	BBWidth       float64
	ATRRatio      float64
	ADX14         float64
	TargetUp      *bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type MLModelVersion struct {
	ID                 int64
	ModelKey           string
	Version            int
	FeatureSpecVersion string
	Pair               string
	TrainedFrom        time.Time
	TrainedTo          time.Time
	TrainedAt          time.Time
	HyperparamsJSON    string
	MetricsJSON        string
	ArtifactFormat     string
	ArtifactBlob       []byte
	IsActive           bool
	ActivatedAt        *time.Time
	CreatedAt          time.Time
}

type MLPrediction struct {
	ID             int64
	Pair           string
	Granularity    string
	OpenTime       time.Time
	TargetTime     time.Time
	ModelKey       string
	ModelVersion   int
	ProbUp         float64
	Confidence     float64
	Direction      Direction
	AnomalyScore   *float64
	DetailsJSON    string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
	ActualUp       *bool
	IsCorrect      *bool
	RealizedReturn *float64
}

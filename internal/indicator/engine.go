package indicator

import (
	"math"
	"sort"

	"probable-pancake/internal/config"
	"probable-pancake/internal/domain"
	"probable-pancake/internal/ta"
)

type Config struct {
	EMAFast      int
	EMASlow      int
	EMATrend     int
	HTFEMAPeriod int
	HTFRSIPeriod int
	ATRPeriod    int
	ATRMAFast    int
	ATRMASlow    int
	RSIPeriod    int
	ADXPeriod    int
	ChopPeriod   int
	MACDFast     int
	MACDSlow     int
	MACDSignal   int
	BBPeriod     int
	BBStdDevs    float64
}

func DefaultConfig() Config {
	return Config{
		EMAFast:      9,
		EMASlow:      21,
		EMATrend:     200,
		HTFEMAPeriod: 800,
		HTFRSIPeriod: 56,
		ATRPeriod:    14,
		ATRMAFast:    20,
		ATRMASlow:    50,
		RSIPeriod:    14,
		ADXPeriod:    14,
		ChopPeriod:   14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		BBPeriod:     20,
		BBStdDevs:    2.0,
	}
}

// FromConfig overlays the env-configurable periods onto the defaults. The
// diagnostic column periods (ADX, chop, MACD, Bollinger) are fixed.
func FromConfig(cfg *config.Config) Config {
	c := DefaultConfig()
	c.EMAFast = cfg.EMAFast
	c.EMASlow = cfg.EMASlow
	c.EMATrend = cfg.EMATrend
	c.HTFEMAPeriod = cfg.HTFEMAPeriod
	c.HTFRSIPeriod = cfg.HTFRSIPeriod
	c.ATRPeriod = cfg.ATRPeriod
	c.RSIPeriod = cfg.RSIPeriod
	return c
}

type Features struct {
	Bars []domain.Bar

	EMAFast  []float64
	EMASlow  []float64
	EMATrend []float64

	// Higher-timeframe trend is proxied with longer periods on the same
	// series instead of resampling to a coarser granularity.
	HTFEMA []float64
	HTFRSI []float64

	ATR       []float64
	ATRMAFast []float64
	ATRMASlow []float64
	RSI       []float64
	PlusDI    []float64
	MinusDI   []float64
	ADX       []float64
	Chop      []float64

	MACDLine   []float64
	MACDSignal []float64
	BBUpper    []float64
	BBMiddle   []float64
	BBLower    []float64
}

type Row struct {
	Bar domain.Bar

	EMAFast  float64
	EMASlow  float64
	EMATrend float64
	HTFEMA   float64
	HTFRSI   float64

	ATR       float64
	ATRMAFast float64
	ATRMASlow float64
	RSI       float64
	PlusDI    float64
	MinusDI   float64
	ADX       float64
	Chop      float64

	MACDLine   float64
	MACDSignal float64
	MACDHist   float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.EMAFast <= 0 {
		cfg.EMAFast = def.EMAFast
	}
	if cfg.EMASlow <= 0 {
		cfg.EMASlow = def.EMASlow
	}
	if cfg.EMATrend <= 0 {
		cfg.EMATrend = def.EMATrend
	}
	if cfg.HTFEMAPeriod <= 0 {
		cfg.HTFEMAPeriod = def.HTFEMAPeriod
	}
	if cfg.HTFRSIPeriod <= 0 {
		cfg.HTFRSIPeriod = def.HTFRSIPeriod
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = def.ATRPeriod
	}
	if cfg.ATRMAFast <= 0 {
		cfg.ATRMAFast = def.ATRMAFast
	}
	if cfg.ATRMASlow <= 0 {
		cfg.ATRMASlow = def.ATRMASlow
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.ADXPeriod <= 0 {
		cfg.ADXPeriod = def.ADXPeriod
	}
	if cfg.ChopPeriod <= 0 {
		cfg.ChopPeriod = def.ChopPeriod
	}
	if cfg.MACDFast <= 0 {
		cfg.MACDFast = def.MACDFast
	}
	if cfg.MACDSlow <= 0 {
		cfg.MACDSlow = def.MACDSlow
	}
	if cfg.MACDSignal <= 0 {
		cfg.MACDSignal = def.MACDSignal
	}
	if cfg.BBPeriod <= 0 {
		cfg.BBPeriod = def.BBPeriod
	}
	if cfg.BBStdDevs <= 0 {
		cfg.BBStdDevs = def.BBStdDevs
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Compute(bars []domain.Bar) *Features {
	ordered := normalizeBars(bars)
	n := len(ordered)

	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := range ordered {
		highs[i] = ordered[i].High
		lows[i] = ordered[i].Low
		closes[i] = ordered[i].Close
	}

	f := &Features{Bars: ordered}
	f.EMAFast = emaOrNaN(closes, e.cfg.EMAFast)
	f.EMASlow = emaOrNaN(closes, e.cfg.EMASlow)
	f.EMATrend = emaOrNaN(closes, e.cfg.EMATrend)
	f.HTFEMA = emaOrNaN(closes, e.cfg.HTFEMAPeriod)
	f.HTFRSI = ta.RollingRSISeries(closes, e.cfg.HTFRSIPeriod)

	f.ATR = ta.ATRSeries(highs, lows, closes, e.cfg.ATRPeriod)
	f.ATRMAFast = ta.SMASeries(f.ATR, e.cfg.ATRMAFast)
	f.ATRMASlow = ta.SMASeries(f.ATR, e.cfg.ATRMASlow)
	f.RSI = ta.RollingRSISeries(closes, e.cfg.RSIPeriod)
	f.PlusDI, f.MinusDI, f.ADX = ta.DirectionalSeries(highs, lows, closes, e.cfg.ADXPeriod)
	f.Chop = ta.ChoppinessSeries(highs, lows, closes, e.cfg.ChopPeriod)

	macdLine, macdSignal := ta.MACDSeries(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	if macdLine == nil {
		macdLine = nanSeries(n)
		macdSignal = nanSeries(n)
	}
	f.MACDLine = macdLine
	f.MACDSignal = macdSignal
	bbMiddle, bbUpper, bbLower := ta.BollingerSeries(closes, e.cfg.BBPeriod, e.cfg.BBStdDevs)
	if bbMiddle == nil {
		bbMiddle = nanSeries(n)
		bbUpper = nanSeries(n)
		bbLower = nanSeries(n)
	}
	f.BBMiddle = bbMiddle
	f.BBUpper = bbUpper
	f.BBLower = bbLower
	return f
}

func (f *Features) Len() int {
	return len(f.Bars)
}

// Ready reports whether every decision-path feature at index i has left its
// warmup padding. Diagnostic columns (MACD, Bollinger) are not required.
func (f *Features) Ready(i int) bool {
	if i < 0 || i >= len(f.Bars) {
		return false
	}
	for _, series := range [][]float64{
		f.EMAFast, f.EMASlow, f.EMATrend, f.HTFEMA, f.HTFRSI,
		f.ATR, f.ATRMAFast, f.ATRMASlow, f.RSI, f.ADX, f.Chop,
	} {
		if i >= len(series) || math.IsNaN(series[i]) {
			return false
		}
	}
	return true
}

func (f *Features) Row(i int) Row {
	return Row{
		Bar:        f.Bars[i],
		EMAFast:    f.EMAFast[i],
		EMASlow:    f.EMASlow[i],
		EMATrend:   f.EMATrend[i],
		HTFEMA:     f.HTFEMA[i],
		HTFRSI:     f.HTFRSI[i],
		ATR:        f.ATR[i],
		ATRMAFast:  f.ATRMAFast[i],
		ATRMASlow:  f.ATRMASlow[i],
		RSI:        f.RSI[i],
		PlusDI:     f.PlusDI[i],
		MinusDI:    f.MinusDI[i],
		ADX:        f.ADX[i],
		Chop:       f.Chop[i],
		MACDLine:   f.MACDLine[i],
		MACDSignal: f.MACDSignal[i],
		MACDHist:   f.MACDLine[i] - f.MACDSignal[i],
		BBUpper:    f.BBUpper[i],
		BBMiddle:   f.BBMiddle[i],
		BBLower:    f.BBLower[i],
	}
}

func normalizeBars(in []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpenTime.Before(out[j].OpenTime)
	})
	return out
}

func emaOrNaN(values []float64, period int) []float64 {
	out := ta.EMASeries(values, period)
	if out == nil {
		return nanSeries(len(values))
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"probable-pancake/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const oandaDefaultBaseURL = "https://api-fxpractice.oanda.com"

// defaultBarVolume substitutes for candles the feed reports without volume.
const defaultBarVolume = 1

// OandaProvider fetches mid-price candles from the OANDA v20 REST API.
type OandaProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewOandaProvider creates a provider with built-in rate limiting.
// Rate limited to 2 requests per second, well under the v20 ceiling.
func NewOandaProvider(tracer trace.Tracer, apiKey, baseURL string) *OandaProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = oandaDefaultBaseURL
	}
	return &OandaProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		tracer:  tracer,
		limiter: NewRateLimiter(2, 500*time.Millisecond),
	}
}

// FetchBars returns up to count completed bars for the instrument,
// oldest first. Incomplete (still-forming) candles are skipped.
func (p *OandaProvider) FetchBars(ctx context.Context, pair, granularity string, count int) ([]domain.Bar, error) {
	_, span := p.tracer.Start(ctx, "oanda.fetch-bars")
	defer span.End()

	if count <= 0 {
		count = 500
	}
	url := fmt.Sprintf("%s/v3/instruments/%s/candles?granularity=%s&count=%d&price=M",
		p.baseURL, pair, granularity, count)

	body, err := p.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch bars for %s %s: %w", pair, granularity, err)
	}

	var raw struct {
		Instrument  string `json:"instrument"`
		Granularity string `json:"granularity"`
		Candles     []struct {
			Complete bool    `json:"complete"`
			Volume   float64 `json:"volume"`
			Time     string  `json:"time"`
			Mid      struct {
				O string `json:"o"`
				H string `json:"h"`
				L string `json:"l"`
				C string `json:"c"`
			} `json:"mid"`
		} `json:"candles"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse candles for %s: %w", pair, err)
	}

	bars := make([]domain.Bar, 0, len(raw.Candles))
	for _, c := range raw.Candles {
		if !c.Complete {
			continue
		}
		openTime, err := time.Parse(time.RFC3339Nano, c.Time)
		if err != nil {
			continue
		}
		o, err1 := strconv.ParseFloat(c.Mid.O, 64)
		h, err2 := strconv.ParseFloat(c.Mid.H, 64)
		l, err3 := strconv.ParseFloat(c.Mid.L, 64)
		cl, err4 := strconv.ParseFloat(c.Mid.C, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		volume := c.Volume
		if volume <= 0 {
			volume = defaultBarVolume
		}
		bars = append(bars, domain.Bar{
			Pair:        pair,
			Granularity: granularity,
			OpenTime:    openTime.UTC(),
			Open:        o,
			High:        h,
			Low:         l,
			Close:       cl,
			Volume:      volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
	return bars, nil
}

func (p *OandaProvider) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("oanda API error %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

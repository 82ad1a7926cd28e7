package forecaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	svcmetrics "PriceCast/internal/service/metrics"
	"PriceCast/internal/services/calendar"
	"PriceCast/pkg/config"
	xhttp "PriceCast/pkg/http"
)

// HTTPModel delegates fit and predict to a remote model service.
// The service returns an opaque JSON state on /fit and expects it back on /predict.
type HTTPModel struct {
	baseURL     string
	client      *xhttp.Client
	season      time.Duration
	width       float64
	upperWindow int
}

// NewHTTPModel builds the client from the model section. The service fixes the
// interval width when it builds the model at fit time, and flags upperWindow
// days after each holiday as the local features do. A zero timeout leaves calls
// bounded only by the caller's context.
func NewHTTPModel(cfg config.Model, upperWindow int) *HTTPModel {
	svcmetrics.Register()
	season := cfg.LongestSeason
	if season <= 0 {
		season = week
	}
	return &HTTPModel{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		client:      xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		season:      season,
		width:       cfg.IntervalWidth,
		upperWindow: upperWindow,
	}
}

type fitReq struct {
	Rows          []calendar.Row     `json:"rows"`
	Holidays      []calendar.Holiday `json:"holidays"`
	UpperWindow   int                `json:"upper_window"`
	IntervalWidth float64            `json:"interval_width"`
}

type fitResp struct {
	Model string          `json:"model"`
	State json.RawMessage `json:"state"`
}

type predictReq struct {
	State         json.RawMessage `json:"state"`
	Rows          []calendar.Row  `json:"rows"`
	IntervalWidth float64         `json:"interval_width"`
}

type predictResp struct {
	Predictions []Prediction `json:"predictions"`
}

func (m *HTTPModel) Name() string { return "remote" }

func (m *HTTPModel) LongestSeasonality() time.Duration { return m.season }

func (m *HTTPModel) Fit(ctx context.Context, rows []calendar.Row, holidays []calendar.Holiday) ([]byte, error) {
	var fr fitResp
	if err := m.post(ctx, "/fit", fitReq{
		Rows:          rows,
		Holidays:      holidays,
		UpperWindow:   m.upperWindow,
		IntervalWidth: m.width,
	}, &fr); err != nil {
		return nil, err
	}
	if len(fr.State) == 0 || string(fr.State) == "null" {
		return nil, errors.New("model service returned empty state")
	}
	return fr.State, nil
}

func (m *HTTPModel) Predict(ctx context.Context, state []byte, rows []calendar.Row, confidence float64) ([]Prediction, error) {
	var pr predictResp
	if err := m.post(ctx, "/predict", predictReq{State: state, Rows: rows, IntervalWidth: confidence}, &pr); err != nil {
		return nil, err
	}
	return pr.Predictions, nil
}

func (m *HTTPModel) post(ctx context.Context, path string, payload, dest interface{}) error {
	if m.baseURL == "" {
		return errors.New("model service url not configured")
	}
	start := time.Now()
	err := m.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    m.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	svcmetrics.ModelLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		svcmetrics.ModelErrors.WithLabelValues(path).Inc()
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

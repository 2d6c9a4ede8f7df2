package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aquilu/jacobo/internal/table"
)

const defaultRemoteTimeout = 30 * time.Second

// Remote delegates scoring to an HTTP service exposing POST /predict.
type Remote struct {
	baseURL string
	name    string
	client  *http.Client
}

// NewRemote builds a client for baseURL.
func NewRemote(baseURL, name string, timeout time.Duration) (*Remote, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote model url is not configured")
	}
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	if name == "" {
		name = DefaultName
	}
	return &Remote{
		baseURL: baseURL,
		name:    name,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type PredictRequest struct {
	Rows []table.Record `json:"rows"`
}

type PredictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Error         string    `json:"error,omitempty"`
}

func (r *Remote) Name() string { return r.name }

func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// Predict posts the records and returns the service's probabilities.
func (r *Remote) Predict(ctx context.Context, records []table.Record) ([]float64, error) {
	jsonData, err := json.Marshal(PredictRequest{Rows: records})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/predict", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var predResp PredictResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &predResp) == nil && predResp.Error != "" {
			return nil, fmt.Errorf("scoring service returned status %d: %s", resp.StatusCode, predResp.Error)
		}
		return nil, fmt.Errorf("scoring service returned status: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &predResp); err != nil {
		return nil, fmt.Errorf("decode scoring response: %w", err)
	}
	return predResp.Probabilities, nil
}

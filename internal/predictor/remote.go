package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultRemoteTimeout bounds one remote prediction.
const DefaultRemoteTimeout = 5 * time.Second

// PredictRequest is the TensorFlow Serving REST "row" request body.
type PredictRequest struct {
	Instances [][]int `json:"instances"`
}

// PredictResponse is the TensorFlow Serving REST response body.
type PredictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// Remote calls a model server speaking the TensorFlow Serving REST API, e.g.
// http://localhost:8501/v1/models/names:predict, so a trained Keras model
// can be served as exported.
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote returns a client for url. A zero timeout uses
// DefaultRemoteTimeout.
func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Predict implements Predictor.
func (p *Remote) Predict(ctx context.Context, window []int) ([]float64, error) {
	data, err := json.Marshal(PredictRequest{Instances: [][]int{window}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, Error{Code: Unavailable, Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, Error{Code: Unavailable, Msg: fmt.Sprintf("model server returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))}
	}

	var predResp PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&predResp); err != nil {
		return nil, Error{Code: BadOutput, Msg: fmt.Sprintf("failed to decode prediction response: %v", err)}
	}
	if predResp.Error != "" {
		return nil, Error{Code: BadOutput, Msg: predResp.Error}
	}
	if len(predResp.Predictions) != 1 {
		return nil, Error{Code: BadOutput, Msg: fmt.Sprintf("got %d predictions, want 1", len(predResp.Predictions))}
	}
	return predResp.Predictions[0], nil
}

// Package modelclient talks to a TensorFlow Serving REST endpoint hosting the classifier.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/mri-check/internal/classifier"
	"github.com/example/mri-check/internal/logging"
)

type predictRequest struct {
	Instances [][classifier.InputSize][classifier.InputSize][3]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error"`
}

// Client implements classifier.Model over the :predict REST API.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// New builds a client for model name served at baseURL.
func New(baseURL, model string, timeout time.Duration, logger *zap.Logger) *Client {
	endpoint := fmt.Sprintf("%s/v1/models/%s:predict", strings.TrimRight(baseURL, "/"), url.PathEscape(model))
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.Named("modelclient"),
	}
}

// Ping checks that the model is loaded by querying its status resource.
func (c *Client) Ping(ctx context.Context) error {
	statusURL := strings.TrimSuffix(c.endpoint, ":predict")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return logging.NewOperationError("modelclient.ping", "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return logging.NewOperationError("modelclient.ping", "", fmt.Errorf("model status %s", resp.Status))
	}
	return nil
}

// Predict sends the tensor and returns the first row of predictions.
func (c *Client) Predict(ctx context.Context, input *classifier.Tensor) ([]float32, error) {
	body, err := json.Marshal(predictRequest{Instances: input[:]})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError("modelclient.predict", "", err)
		c.logger.Error("model server call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer resp.Body.Close()

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, logging.NewOperationError("modelclient.decode", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		reason := out.Error
		if reason == "" {
			reason = resp.Status
		}
		return nil, logging.NewOperationError("modelclient.predict", "", fmt.Errorf("model server: %s", reason))
	}
	if len(out.Predictions) == 0 {
		return nil, logging.NewOperationError("modelclient.predict", "", errors.New("model server returned no predictions"))
	}

	c.logger.Debug("model server replied", zap.Duration("latency", time.Since(start)))
	return out.Predictions[0], nil
}

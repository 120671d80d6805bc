// Package classifier is the client for the external attack-classification
// service. The RPC is bounded and retry-free: on any failure the
// deterministic fallback is returned so ingestion never blocks on the model.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/decoyverse/decoyverse/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Timeout is the hard RPC deadline. No retries.
const Timeout = 3 * time.Second

var fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "decoyverse_classifier_fallbacks_total",
	Help: "Classifier calls that returned the deterministic fallback.",
})

// Client calls the classifier's /predict endpoint. It is stateless and safe
// for concurrent use.
type Client struct {
	predictURL string
	httpc      *http.Client
	logger     *zap.Logger
}

// New creates a Client for the given base URL.
func New(baseURL string, logger *zap.Logger) *Client {
	predictURL := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(predictURL, "/predict") {
		predictURL += "/predict"
	}
	return &Client{
		predictURL: predictURL,
		httpc:      &http.Client{Timeout: Timeout},
		logger:     logger,
	}
}

// Fallback is the deterministic classification used when the model cannot be
// reached: the event is stored with minimal risk scoring so it is not lost.
func Fallback() events.Classification {
	return events.Classification{
		AttackType: "unknown",
		RiskScore:  0,
		Confidence: 0,
		IsAnomaly:  false,
	}
}

// Classify sends the feature vector to the classifier and returns its
// verdict. Timeouts, transport errors, non-success statuses, and malformed
// responses all yield the fallback; the error is logged, never returned.
func (c *Client) Classify(ctx context.Context, features FeatureVector) events.Classification {
	out, err := c.predict(ctx, features.Clamp())
	if err != nil {
		fallbacksTotal.Inc()
		c.logger.Warn("classifier unavailable, using fallback prediction", zap.Error(err))
		return Fallback()
	}
	return out
}

func (c *Client) predict(ctx context.Context, features FeatureVector) (events.Classification, error) {
	var zero events.Classification

	body, err := json.Marshal(features)
	if err != nil {
		return zero, fmt.Errorf("marshal features: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.predictURL, bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return zero, fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var out events.Classification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("decode classifier response: %w", err)
	}
	if out.AttackType == "" {
		return zero, fmt.Errorf("classifier response missing attack_type")
	}
	if out.RiskScore < 0 || out.RiskScore > 10 {
		return zero, fmt.Errorf("classifier risk_score %d out of range", out.RiskScore)
	}
	return out, nil
}

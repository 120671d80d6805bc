package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestClassifySuccess(t *testing.T) {
	var gotPath string
	var gotBody FeatureVector
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"attack_type": "BruteForce",
			"risk_score":  3,
			"confidence":  0.6,
			"is_anomaly":  false,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, zap.NewNop())
	out := c.Classify(context.Background(), FeatureVector{FailedLogins: 5, RequestRate: 10, SessionTime: 60})

	if gotPath != "/predict" {
		t.Errorf("request path = %q, want /predict", gotPath)
	}
	if gotBody.FailedLogins != 5 {
		t.Errorf("request failed_logins = %d, want 5", gotBody.FailedLogins)
	}
	if out.AttackType != "BruteForce" || out.RiskScore != 3 || out.Confidence != 0.6 || out.IsAnomaly {
		t.Errorf("Classify = %+v", out)
	}
}

func TestClassifyExplicitPredictURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"attack_type": "PortScan", "risk_score": 2, "confidence": 0.4, "is_anomaly": false})
	}))
	defer srv.Close()

	c := New(srv.URL+"/predict", zap.NewNop())
	if out := c.Classify(context.Background(), FeatureVector{}); out.AttackType != "PortScan" {
		t.Errorf("Classify = %+v, want PortScan", out)
	}
}

func TestClassifyNonSuccessFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, zap.NewNop())
	if out := c.Classify(context.Background(), FeatureVector{}); out != Fallback() {
		t.Errorf("Classify = %+v, want fallback", out)
	}
}

func TestClassifyMalformedResponseFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"attack_type": `))
	}))
	defer srv.Close()

	c := New(srv.URL, zap.NewNop())
	if out := c.Classify(context.Background(), FeatureVector{}); out != Fallback() {
		t.Errorf("Classify = %+v, want fallback", out)
	}
}

func TestClassifyOutOfRangeRiskFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"attack_type": "X", "risk_score": 42, "confidence": 0.1, "is_anomaly": false})
	}))
	defer srv.Close()

	c := New(srv.URL, zap.NewNop())
	if out := c.Classify(context.Background(), FeatureVector{}); out != Fallback() {
		t.Errorf("Classify = %+v, want fallback", out)
	}
}

func TestClassifyUnreachableFallsBack(t *testing.T) {
	// Port is closed immediately; the dial fails fast.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, zap.NewNop())
	start := time.Now()
	out := c.Classify(context.Background(), FeatureVector{})
	if out != Fallback() {
		t.Errorf("Classify = %+v, want fallback", out)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("fallback took %v, want < 4s", elapsed)
	}
}

func TestClassifyCancelledContextFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL, zap.NewNop())
	if out := c.Classify(ctx, FeatureVector{}); out != Fallback() {
		t.Errorf("Classify = %+v, want fallback", out)
	}
}

package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/decoyverse/decoyverse/internal/alerts"
	"github.com/decoyverse/decoyverse/internal/classifier"
	"github.com/decoyverse/decoyverse/internal/decoys"
	"github.com/decoyverse/decoyverse/internal/events"
	"github.com/decoyverse/decoyverse/internal/nodes"
	"github.com/decoyverse/decoyverse/internal/profiles"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ── Stubs ─────────────────────────────────────────────────────────────────

type stubNodeAuth struct {
	node     *nodes.Node
	authErr  error
	lastSeen []time.Time
}

func (s *stubNodeAuth) Authenticate(_ context.Context, nodeID, key string) (*nodes.Node, error) {
	if s.authErr != nil {
		return nil, s.authErr
	}
	return s.node, nil
}

func (s *stubNodeAuth) BumpLastSeen(_ context.Context, nodeID string, seen time.Time) error {
	s.lastSeen = append(s.lastSeen, seen)
	return nil
}

type stubClassifier struct {
	out      events.Classification
	features []classifier.FeatureVector
}

func (s *stubClassifier) Classify(_ context.Context, f classifier.FeatureVector) events.Classification {
	s.features = append(s.features, f)
	return s.out
}

type stubEventStore struct {
	fail   bool
	logs   []*events.HoneypotLog
	agents []*events.AgentEvent
}

func (s *stubEventStore) AppendHoneypotLog(_ context.Context, l *events.HoneypotLog) error {
	if s.fail {
		return errors.New("connection refused")
	}
	l.ID = uuid.New()
	s.logs = append(s.logs, l)
	return nil
}

func (s *stubEventStore) AppendAgentEvent(_ context.Context, e *events.AgentEvent) error {
	if s.fail {
		return errors.New("connection refused")
	}
	e.ID = uuid.New()
	s.agents = append(s.agents, e)
	return nil
}

type stubDecoyStore struct {
	fail     bool
	triggers map[string]int
}

func (s *stubDecoyStore) UpsertTrigger(_ context.Context, nodeID, name string, kind decoys.Kind, _ time.Time) error {
	if s.fail {
		return errors.New("connection refused")
	}
	if s.triggers == nil {
		s.triggers = make(map[string]int)
	}
	s.triggers[nodeID+"/"+name]++
	return nil
}

type stubAlertStore struct {
	fail    bool
	created []*alerts.Alert
}

func (s *stubAlertStore) Create(_ context.Context, a *alerts.Alert) error {
	if s.fail {
		return errors.New("connection refused")
	}
	s.created = append(s.created, a)
	return nil
}

type stubProfileStore struct {
	mu       sync.Mutex
	fail     bool
	profiles map[string]*profiles.Profile
}

func (s *stubProfileStore) Upsert(_ context.Context, sourceIP string, u profiles.Update) error {
	if s.fail {
		return errors.New("connection refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles == nil {
		s.profiles = make(map[string]*profiles.Profile)
	}
	p, ok := s.profiles[sourceIP]
	if !ok {
		p = &profiles.Profile{SourceIP: sourceIP}
		s.profiles[sourceIP] = p
	}
	profiles.Apply(p, u)
	return nil
}

type fixture struct {
	pipeline *Pipeline
	nodeAuth *stubNodeAuth
	cls      *stubClassifier
	events   *stubEventStore
	decoys   *stubDecoyStore
	alerts   *stubAlertStore
	profiles *stubProfileStore
}

func newFixture(cls events.Classification) *fixture {
	f := &fixture{
		nodeAuth: &stubNodeAuth{node: &nodes.Node{
			NodeID: "n1", UserID: uuid.New(), Status: nodes.StatusActive,
		}},
		cls:      &stubClassifier{out: cls},
		events:   &stubEventStore{},
		decoys:   &stubDecoyStore{},
		alerts:   &stubAlertStore{},
		profiles: &stubProfileStore{},
	}
	f.pipeline = New(f.nodeAuth, f.cls, f.events, f.decoys, f.alerts, f.profiles, 0, zap.NewNop())
	return f
}

func honeypotInput() HoneypotLogInput {
	return HoneypotLogInput{
		Service:   "SSH",
		SourceIP:  "1.2.3.4",
		Activity:  "login_attempt",
		Payload:   "user=root pass=wrong",
		Timestamp: time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC),
	}
}

func agentInput() AgentEventInput {
	return AgentEventInput{
		Hostname:     "WORKSTATION-7",
		Username:     "jdoe",
		FileAccessed: "aws_keys.txt",
		FilePath:     `C:\Users\jdoe\Documents\aws_keys.txt`,
		Action:       "ACCESSED",
		Severity:     "critical",
		AlertType:    "honeytoken_access",
		Timestamp:    time.Date(2026, 2, 4, 11, 0, 0, 0, time.UTC),
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestHoneypotBelowThreshold(t *testing.T) {
	f := newFixture(events.Classification{AttackType: "BruteForce", RiskScore: 3, Confidence: 0.6})

	res, err := f.pipeline.IngestHoneypotLog(context.Background(), "n1", "nk_x", honeypotInput())
	if err != nil {
		t.Fatalf("IngestHoneypotLog: %v", err)
	}

	if len(f.events.logs) != 1 {
		t.Fatalf("raw logs = %d, want 1", len(f.events.logs))
	}
	if len(f.alerts.created) != 0 {
		t.Errorf("alerts = %d, want 0 (risk 3 < 7)", len(f.alerts.created))
	}
	if res.AlertCreated {
		t.Error("result reports alert created")
	}

	p := f.profiles.profiles["1.2.3.4"]
	if p == nil {
		t.Fatal("no profile for 1.2.3.4")
	}
	if p.TotalAttacks != 1 || p.AverageRisk != 3.0 {
		t.Errorf("profile total=%d avg=%v, want 1/3.0", p.TotalAttacks, p.AverageRisk)
	}
	if p.ServicesTargeted["SSH"] != 1 {
		t.Errorf("services = %v, want SSH:1", p.ServicesTargeted)
	}
	if len(f.nodeAuth.lastSeen) != 1 {
		t.Errorf("last-seen bumps = %d, want 1", len(f.nodeAuth.lastSeen))
	}
}

func TestAgentAboveThreshold(t *testing.T) {
	f := newFixture(events.Classification{AttackType: "DataExfil", RiskScore: 9, Confidence: 0.92, IsAnomaly: true})

	res, err := f.pipeline.IngestAgentEvent(context.Background(), "n1", "nk_x", agentInput())
	if err != nil {
		t.Fatalf("IngestAgentEvent: %v", err)
	}

	if len(f.events.agents) != 1 {
		t.Fatalf("raw agent events = %d, want 1", len(f.events.agents))
	}
	if len(f.alerts.created) != 1 {
		t.Fatalf("alerts = %d, want 1", len(f.alerts.created))
	}
	if !res.AlertCreated {
		t.Error("result does not report alert created")
	}

	a := f.alerts.created[0]
	if a.UserID != f.nodeAuth.node.UserID {
		t.Error("alert user_id not denormalised from node owner")
	}
	if a.Service != "endpoint_agent" || a.SourceIP != "WORKSTATION-7" {
		t.Errorf("alert service/source = %s/%s", a.Service, a.SourceIP)
	}
	if alerts.Severity(a.RiskScore) != "critical" {
		t.Errorf("severity = %s, want critical", alerts.Severity(a.RiskScore))
	}

	if f.decoys.triggers["n1/aws_keys.txt"] != 1 {
		t.Errorf("decoy triggers = %v, want n1/aws_keys.txt:1", f.decoys.triggers)
	}
	if len(f.cls.features) != 1 || f.cls.features[0] != classifier.AgentFeatures() {
		t.Errorf("classifier features = %+v, want pinned agent vector", f.cls.features)
	}
}

func TestThresholdBoundary(t *testing.T) {
	for risk, wantAlert := range map[int]bool{6: false, 7: true} {
		f := newFixture(events.Classification{AttackType: "BruteForce", RiskScore: risk, Confidence: 0.8})
		if _, err := f.pipeline.IngestHoneypotLog(context.Background(), "n1", "nk_x", honeypotInput()); err != nil {
			t.Fatalf("risk %d: %v", risk, err)
		}
		if got := len(f.alerts.created) == 1; got != wantAlert {
			t.Errorf("risk %d: alert created = %v, want %v", risk, got, wantAlert)
		}
	}
}

func TestAuthErrorsPassThrough(t *testing.T) {
	f := newFixture(events.Classification{})
	f.nodeAuth.authErr = nodes.ErrUnauthenticated
	if _, err := f.pipeline.IngestHoneypotLog(context.Background(), "n1", "nk_bad", honeypotInput()); !errors.Is(err, nodes.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}

	f.nodeAuth.authErr = nodes.ErrInactive
	if _, err := f.pipeline.IngestAgentEvent(context.Background(), "n1", "nk_x", agentInput()); !errors.Is(err, nodes.ErrInactive) {
		t.Errorf("err = %v, want ErrInactive", err)
	}
	if len(f.events.logs)+len(f.events.agents) != 0 {
		t.Error("events persisted despite auth failure")
	}
}

func TestRawEventWriteFailureFailsCall(t *testing.T) {
	f := newFixture(events.Classification{AttackType: "BruteForce", RiskScore: 9, Confidence: 0.9})
	f.events.fail = true

	if _, err := f.pipeline.IngestHoneypotLog(context.Background(), "n1", "nk_x", honeypotInput()); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
	if len(f.alerts.created) != 0 {
		t.Error("alert created despite raw-event write failure")
	}
	if len(f.profiles.profiles) != 0 {
		t.Error("profile updated despite raw-event write failure")
	}
}

func TestBestEffortStepFailuresAbsorbed(t *testing.T) {
	f := newFixture(events.Classification{AttackType: "DataExfil", RiskScore: 9, Confidence: 0.9})
	f.decoys.fail = true
	f.alerts.fail = true
	f.profiles.fail = true

	res, err := f.pipeline.IngestAgentEvent(context.Background(), "n1", "nk_x", agentInput())
	if err != nil {
		t.Fatalf("best-effort failures surfaced: %v", err)
	}
	if len(f.events.agents) != 1 {
		t.Error("raw event missing")
	}
	if res.EventID == uuid.Nil {
		t.Error("result has no event id")
	}
}

func TestClassifierFallbackTransparency(t *testing.T) {
	// Fallback classification: risk 0 → no alert, profile still updated.
	f := newFixture(classifier.Fallback())

	res, err := f.pipeline.IngestHoneypotLog(context.Background(), "n1", "nk_x", honeypotInput())
	if err != nil {
		t.Fatalf("IngestHoneypotLog: %v", err)
	}
	if res.Classification.AttackType != "unknown" {
		t.Errorf("classification = %+v, want fallback", res.Classification)
	}
	if len(f.alerts.created) != 0 {
		t.Error("alert created from fallback classification")
	}
	p := f.profiles.profiles["1.2.3.4"]
	if p == nil || p.AttackTypes["unknown"] != 1 {
		t.Errorf("profile = %+v, want unknown:1", p)
	}
}

func TestPayloadBoundary(t *testing.T) {
	f := newFixture(events.Classification{AttackType: "BruteForce", RiskScore: 1})

	in := honeypotInput()
	in.Payload = strings.Repeat("a", MaxPayloadLen)
	if _, err := f.pipeline.IngestHoneypotLog(context.Background(), "n1", "nk_x", in); err != nil {
		t.Errorf("payload at exactly 10 KiB rejected: %v", err)
	}

	in.Payload = strings.Repeat("a", MaxPayloadLen+1)
	if _, err := f.pipeline.IngestHoneypotLog(context.Background(), "n1", "nk_x", in); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("payload at 10 KiB + 1: err = %v, want ErrInvalidInput", err)
	}
}

func TestOverLimitFieldsRejectedBeforePipeline(t *testing.T) {
	f := newFixture(events.Classification{AttackType: "X", RiskScore: 9})

	in := honeypotInput()
	in.Service = strings.Repeat("s", MaxServiceLen+1)
	if _, err := f.pipeline.IngestHoneypotLog(context.Background(), "n1", "nk_x", in); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("over-limit service err = %v, want ErrInvalidInput", err)
	}

	ae := agentInput()
	ae.Severity = "urgent"
	if _, err := f.pipeline.IngestAgentEvent(context.Background(), "n1", "nk_x", ae); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown severity err = %v, want ErrInvalidInput", err)
	}

	if len(f.events.logs)+len(f.events.agents) != 0 {
		t.Error("invalid input reached the store")
	}
	if len(f.cls.features) != 0 {
		t.Error("invalid input reached the classifier")
	}
}

func TestExtraMapBoundary(t *testing.T) {
	f := newFixture(events.Classification{AttackType: "X", RiskScore: 1})

	in := honeypotInput()
	in.Extra = map[string]string{"k": strings.Repeat("v", MaxExtraLen)}
	if _, err := f.pipeline.IngestHoneypotLog(context.Background(), "n1", "nk_x", in); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("oversized extra err = %v, want ErrInvalidInput", err)
	}
}

func TestDecoyTriggerCountsAccumulate(t *testing.T) {
	f := newFixture(events.Classification{AttackType: "DataExfil", RiskScore: 9, Confidence: 0.9})

	for i := 0; i < 3; i++ {
		if _, err := f.pipeline.IngestAgentEvent(context.Background(), "n1", "nk_x", agentInput()); err != nil {
			t.Fatalf("ingest #%d: %v", i+1, err)
		}
	}
	if f.decoys.triggers["n1/aws_keys.txt"] != 3 {
		t.Errorf("trigger count = %d, want 3", f.decoys.triggers["n1/aws_keys.txt"])
	}
}

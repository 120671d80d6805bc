// Package ingest implements the shared event-ingestion pipeline: node
// authentication, feature derivation, classification, raw-event persistence,
// decoy bookkeeping, alert materialisation, attacker profiling, and node
// housekeeping.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/decoyverse/decoyverse/internal/alerts"
	"github.com/decoyverse/decoyverse/internal/classifier"
	"github.com/decoyverse/decoyverse/internal/decoys"
	"github.com/decoyverse/decoyverse/internal/events"
	"github.com/decoyverse/decoyverse/internal/nodes"
	"github.com/decoyverse/decoyverse/internal/profiles"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// ErrInvalidInput is returned before the pipeline begins when a field is
// missing, malformed, or over its limit.
var ErrInvalidInput = errors.New("invalid input")

// ErrStorageUnavailable is returned when the primary raw-event write fails.
// Later steps failing never produce it; they are absorbed.
var ErrStorageUnavailable = errors.New("storage unavailable")

// DefaultRiskThreshold is Θ: the risk score at or above which an alert is
// materialised.
const DefaultRiskThreshold = 7

// Field limits (bytes for payload/extra, characters otherwise).
const (
	MaxServiceLen  = 50
	MaxSourceIDLen = 64
	MaxActivityLen = 100
	MaxPayloadLen  = 10 * 1024
	MaxExtraLen    = 4 * 1024
	MaxHostnameLen = 255
	MaxUsernameLen = 100
	MaxFileLen     = 255
	MaxPathLen     = 1024
)

var (
	eventsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decoyverse_events_ingested_total",
		Help: "Raw events persisted by the ingestion pipeline, by kind.",
	}, []string{"kind"})

	alertsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decoyverse_alerts_created_total",
		Help: "Alerts materialised by the ingestion pipeline.",
	})
)

// ── Dependencies ──────────────────────────────────────────────────────────

type nodeAuthenticator interface {
	Authenticate(ctx context.Context, nodeID, presentedKey string) (*nodes.Node, error)
	BumpLastSeen(ctx context.Context, nodeID string, seen time.Time) error
}

type classifierClient interface {
	Classify(ctx context.Context, features classifier.FeatureVector) events.Classification
}

type eventStore interface {
	AppendHoneypotLog(ctx context.Context, l *events.HoneypotLog) error
	AppendAgentEvent(ctx context.Context, e *events.AgentEvent) error
}

type decoyStore interface {
	UpsertTrigger(ctx context.Context, nodeID, name string, kind decoys.Kind, triggeredAt time.Time) error
}

type alertStore interface {
	Create(ctx context.Context, a *alerts.Alert) error
}

type profileStore interface {
	Upsert(ctx context.Context, sourceIP string, u profiles.Update) error
}

// Pipeline is the shared ingestion flow for both entry points.
type Pipeline struct {
	nodes      nodeAuthenticator
	classifier classifierClient
	events     eventStore
	decoys     decoyStore
	alerts     alertStore
	profiles   profileStore
	threshold  int
	logger     *zap.Logger
}

// New creates a Pipeline. threshold ≤ 0 selects the default Θ.
func New(
	nodeAuth nodeAuthenticator,
	cls classifierClient,
	eventRepo eventStore,
	decoyRepo decoyStore,
	alertRepo alertStore,
	profileRepo profileStore,
	threshold int,
	logger *zap.Logger,
) *Pipeline {
	if threshold <= 0 {
		threshold = DefaultRiskThreshold
	}
	return &Pipeline{
		nodes:      nodeAuth,
		classifier: cls,
		events:     eventRepo,
		decoys:     decoyRepo,
		alerts:     alertRepo,
		profiles:   profileRepo,
		threshold:  threshold,
		logger:     logger,
	}
}

// ── Inputs and result ─────────────────────────────────────────────────────

// HoneypotLogInput is a validated honeypot submission.
type HoneypotLogInput struct {
	Service   string
	SourceIP  string
	Activity  string
	Payload   string
	Extra     map[string]string
	Timestamp time.Time
}

// AgentEventInput is a validated endpoint-agent submission.
type AgentEventInput struct {
	Hostname     string
	Username     string
	FileAccessed string
	FilePath     string
	Action       string
	Severity     string
	AlertType    string
	Timestamp    time.Time
}

// Result reports the outcome of one ingest call.
type Result struct {
	EventID        uuid.UUID             `json:"event_id"`
	Classification events.Classification `json:"classification"`
	AlertCreated   bool                  `json:"alert_created"`
}

// ── Honeypot entry point ──────────────────────────────────────────────────

// IngestHoneypotLog runs the full pipeline for a honeypot log.
func (p *Pipeline) IngestHoneypotLog(ctx context.Context, nodeID, presentedKey string, in HoneypotLogInput) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	node, err := p.nodes.Authenticate(ctx, nodeID, presentedKey)
	if err != nil {
		return nil, err
	}

	features := classifier.HoneypotFeatures(in.Activity, in.Payload, in.Extra)
	cls := p.classifier.Classify(ctx, features)

	log := &events.HoneypotLog{
		NodeID:         node.NodeID,
		Service:        in.Service,
		SourceIP:       in.SourceIP,
		Activity:       in.Activity,
		Payload:        in.Payload,
		Extra:          in.Extra,
		Timestamp:      in.Timestamp,
		Classification: cls,
	}
	if err := p.events.AppendHoneypotLog(ctx, log); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	eventsIngestedTotal.WithLabelValues(events.KindHoneypot).Inc()

	// The raw event is durable; the remaining steps are best-effort and must
	// survive a client disconnect.
	tail := context.WithoutCancel(ctx)
	p.materialiseAlert(tail, &alerts.Alert{
		Timestamp:  in.Timestamp,
		SourceIP:   in.SourceIP,
		Service:    in.Service,
		Activity:   in.Activity,
		AttackType: cls.AttackType,
		RiskScore:  cls.RiskScore,
		Confidence: cls.Confidence,
		Payload:    in.Payload,
		NodeID:     node.NodeID,
		UserID:     node.UserID,
	}, cls)
	p.updateProfile(tail, in.SourceIP, in.Service, cls, in.Timestamp)
	p.bumpLastSeen(tail, node.NodeID)

	return &Result{
		EventID:        log.ID,
		Classification: cls,
		AlertCreated:   cls.RiskScore >= p.threshold,
	}, nil
}

// ── Agent entry point ─────────────────────────────────────────────────────

// IngestAgentEvent runs the full pipeline for an endpoint-agent event,
// including decoy bookkeeping for the accessed honeytoken.
func (p *Pipeline) IngestAgentEvent(ctx context.Context, nodeID, presentedKey string, in AgentEventInput) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	node, err := p.nodes.Authenticate(ctx, nodeID, presentedKey)
	if err != nil {
		return nil, err
	}

	cls := p.classifier.Classify(ctx, classifier.AgentFeatures())

	event := &events.AgentEvent{
		NodeID:         node.NodeID,
		Hostname:       in.Hostname,
		Username:       in.Username,
		FileAccessed:   in.FileAccessed,
		FilePath:       in.FilePath,
		Action:         in.Action,
		Severity:       in.Severity,
		AlertType:      in.AlertType,
		Timestamp:      in.Timestamp,
		Classification: cls,
	}
	if err := p.events.AppendAgentEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	eventsIngestedTotal.WithLabelValues(events.KindAgent).Inc()

	tail := context.WithoutCancel(ctx)

	if err := p.decoys.UpsertTrigger(tail, node.NodeID, in.FileAccessed, decoys.KindHoneytoken, in.Timestamp); err != nil {
		p.logger.Warn("decoy bookkeeping failed",
			zap.String("node_id", node.NodeID),
			zap.String("decoy", in.FileAccessed),
			zap.Error(err),
		)
	}

	p.materialiseAlert(tail, &alerts.Alert{
		Timestamp:  in.Timestamp,
		SourceIP:   in.Hostname,
		Service:    "endpoint_agent",
		Activity:   in.Action,
		AttackType: cls.AttackType,
		RiskScore:  cls.RiskScore,
		Confidence: cls.Confidence,
		Payload:    in.FileAccessed,
		NodeID:     node.NodeID,
		UserID:     node.UserID,
	}, cls)
	p.updateProfile(tail, in.Hostname, "endpoint_agent", cls, in.Timestamp)
	p.bumpLastSeen(tail, node.NodeID)

	return &Result{
		EventID:        event.ID,
		Classification: cls,
		AlertCreated:   cls.RiskScore >= p.threshold,
	}, nil
}

// ── Best-effort steps ─────────────────────────────────────────────────────

func (p *Pipeline) materialiseAlert(ctx context.Context, a *alerts.Alert, cls events.Classification) {
	if cls.RiskScore < p.threshold {
		return
	}
	if err := p.alerts.Create(ctx, a); err != nil {
		p.logger.Warn("alert materialisation failed",
			zap.String("node_id", a.NodeID),
			zap.String("source_ip", a.SourceIP),
			zap.Error(err),
		)
		return
	}
	alertsCreatedTotal.Inc()
	p.logger.Info("alert created",
		zap.String("attack_type", a.AttackType),
		zap.Int("risk_score", a.RiskScore),
		zap.String("source_ip", a.SourceIP),
		zap.String("node_id", a.NodeID),
	)
}

func (p *Pipeline) updateProfile(ctx context.Context, sourceIP, service string, cls events.Classification, ts time.Time) {
	err := p.profiles.Upsert(ctx, sourceIP, profiles.Update{
		AttackType: cls.AttackType,
		RiskScore:  cls.RiskScore,
		Service:    service,
		Timestamp:  ts,
	})
	if err != nil {
		p.logger.Warn("attacker profile update failed",
			zap.String("source_ip", sourceIP),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) bumpLastSeen(ctx context.Context, nodeID string) {
	if err := p.nodes.BumpLastSeen(ctx, nodeID, time.Now().UTC()); err != nil {
		p.logger.Warn("last-seen bump failed", zap.String("node_id", nodeID), zap.Error(err))
	}
}

// ── Validation ────────────────────────────────────────────────────────────

func (in HoneypotLogInput) validate() error {
	switch {
	case in.Service == "":
		return fmt.Errorf("%w: service is required", ErrInvalidInput)
	case utf8.RuneCountInString(in.Service) > MaxServiceLen:
		return fmt.Errorf("%w: service exceeds %d characters", ErrInvalidInput, MaxServiceLen)
	case in.SourceIP == "":
		return fmt.Errorf("%w: source_ip is required", ErrInvalidInput)
	case utf8.RuneCountInString(in.SourceIP) > MaxSourceIDLen:
		return fmt.Errorf("%w: source_ip exceeds %d characters", ErrInvalidInput, MaxSourceIDLen)
	case in.Activity == "":
		return fmt.Errorf("%w: activity is required", ErrInvalidInput)
	case utf8.RuneCountInString(in.Activity) > MaxActivityLen:
		return fmt.Errorf("%w: activity exceeds %d characters", ErrInvalidInput, MaxActivityLen)
	case len(in.Payload) > MaxPayloadLen:
		return fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidInput, MaxPayloadLen)
	case in.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	if extraSize(in.Extra) > MaxExtraLen {
		return fmt.Errorf("%w: extra exceeds %d bytes", ErrInvalidInput, MaxExtraLen)
	}
	return nil
}

func (in AgentEventInput) validate() error {
	switch {
	case in.Hostname == "":
		return fmt.Errorf("%w: hostname is required", ErrInvalidInput)
	case utf8.RuneCountInString(in.Hostname) > MaxHostnameLen:
		return fmt.Errorf("%w: hostname exceeds %d characters", ErrInvalidInput, MaxHostnameLen)
	case utf8.RuneCountInString(in.Username) > MaxUsernameLen:
		return fmt.Errorf("%w: username exceeds %d characters", ErrInvalidInput, MaxUsernameLen)
	case in.FileAccessed == "":
		return fmt.Errorf("%w: file_accessed is required", ErrInvalidInput)
	case utf8.RuneCountInString(in.FileAccessed) > MaxFileLen:
		return fmt.Errorf("%w: file_accessed exceeds %d characters", ErrInvalidInput, MaxFileLen)
	case utf8.RuneCountInString(in.FilePath) > MaxPathLen:
		return fmt.Errorf("%w: file_path exceeds %d characters", ErrInvalidInput, MaxPathLen)
	case in.Action == "":
		return fmt.Errorf("%w: action is required", ErrInvalidInput)
	case in.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	switch in.Severity {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, in.Severity)
	}
	return nil
}

func extraSize(extra map[string]string) int {
	n := 0
	for k, v := range extra {
		n += len(k) + len(v)
	}
	return n
}

package clipboard

import (
	"errors"
	"fmt"

	"clipguard/internal/detect"
	"clipguard/internal/fingerprint"
	"clipguard/internal/logging"
)

// DefaultAlertText replaces blocked clipboard content.
const DefaultAlertText = "[clipguard ALERT] Clipboard content appears to be a protected address; paste blocked by clipguard."

// State is the monitor's position in its evaluation cycle.
type State int

const (
	StateIdle State = iota
	StateConversionRequested
	StateEvaluating
	StateAllowing
	StateBlocking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConversionRequested:
		return "conversion-requested"
	case StateEvaluating:
		return "evaluating"
	case StateAllowing:
		return "allowing"
	case StateBlocking:
		return "blocking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Action is the outcome of an evaluation.
type Action int

const (
	ActionAllow Action = iota + 1
	ActionBlock
)

func (a Action) String() string {
	if a == ActionBlock {
		return "block"
	}
	return "allow"
}

// Decision reasons.
const (
	ReasonNotSensitive     = "not-sensitive"
	ReasonBound            = "bound"
	ReasonUnbound          = "unbound"
	ReasonFingerprintError = "fingerprint-error"
	ReasonLookupError      = "lookup-error"
)

// Decision describes one evaluation. It never carries clipboard text.
type Decision struct {
	Action      Action
	Reason      string
	Match       detect.Match
	Fingerprint string
	Claimed     bool
}

// Lookup reports whether a fingerprint is bound.
type Lookup func(fp string) (bool, error)

// Fingerprinter computes the fingerprint of raw clipboard text.
type Fingerprinter func(raw string) (string, error)

// MonitorConfig wires a Monitor to its collaborators.
type MonitorConfig struct {
	Host        Host
	Classifier  *detect.Classifier
	Fingerprint Fingerprinter
	Lookup      Lookup
	AlertText   string

	// OnDecision is called synchronously after every evaluation.
	OnDecision func(Decision)

	Logger *logging.Logger
}

// Monitor is the clipboard guard state machine. It is not safe for
// concurrent use; the reactor owns it.
type Monitor struct {
	host       Host
	classifier *detect.Classifier
	fp         Fingerprinter
	lookup     Lookup
	alert      string
	onDecision func(Decision)
	log        *logging.Logger

	state        State
	lastObserved string
	owning       bool
	last         *Decision
}

// NewMonitor validates cfg.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Host == nil {
		return nil, errors.New("clipboard: host required")
	}
	if cfg.Fingerprint == nil || cfg.Lookup == nil {
		return nil, errors.New("clipboard: fingerprint and lookup required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = detect.Default()
	}
	if cfg.AlertText == "" {
		cfg.AlertText = DefaultAlertText
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Monitor{
		host:       cfg.Host,
		classifier: cfg.Classifier,
		fp:         cfg.Fingerprint,
		lookup:     cfg.Lookup,
		alert:      cfg.AlertText,
		onDecision: cfg.OnDecision,
		log:        cfg.Logger.WithComponent("monitor"),
	}, nil
}

// State returns the current state.
func (m *Monitor) State() State { return m.state }

// Owning reports whether the monitor currently serves the alert.
func (m *Monitor) Owning() bool { return m.owning }

// AlertText returns the substitution text.
func (m *Monitor) AlertText() string { return m.alert }

// LastDecision returns the most recent evaluation, if any.
func (m *Monitor) LastDecision() (Decision, bool) {
	if m.last == nil {
		return Decision{}, false
	}
	return *m.last, true
}

// SetClassifier swaps the sensitivity rules.
func (m *Monitor) SetClassifier(c *detect.Classifier) {
	if c != nil {
		m.classifier = c
	}
}

// Tick requests a fresh conversion, whatever happened last time.
func (m *Monitor) Tick() {
	if err := m.host.RequestConversion(); err != nil {
		m.log.Warn("conversion request failed", "error", err)
		m.state = StateIdle
		return
	}
	m.state = StateConversionRequested
}

// HandleEvent processes one host event.
func (m *Monitor) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventConversion:
		m.handleConversion(ev.Text)
	case EventSelectionRequest:
		m.serve(ev.Request)
	case EventOwnershipLost:
		m.owning = false
		m.log.Debug("selection ownership lost")
	case EventError:
		m.log.Warn("clipboard service error", "error", ev.Err)
		m.state = StateIdle
	}
}

func (m *Monitor) handleConversion(raw string) {
	if raw == "" || raw == m.lastObserved {
		m.state = StateIdle
		return
	}

	m.state = StateEvaluating
	d := m.evaluate(raw)

	if d.Action == ActionAllow {
		m.state = StateAllowing
		m.lastObserved = raw
	} else {
		m.state = StateBlocking
		d.Claimed = m.block()
	}

	m.last = &d
	m.log.Info("clipboard evaluated",
		"action", d.Action.String(),
		"reason", d.Reason,
		"rule", d.Match.Rule,
		"chain", d.Match.Chain,
		"fingerprint", d.Fingerprint,
	)
	if m.onDecision != nil {
		m.onDecision(d)
	}
	m.state = StateIdle
}

// evaluate fails closed: any error on the sensitive path blocks.
func (m *Monitor) evaluate(raw string) Decision {
	match, sensitive := m.classifier.Classify(raw, fingerprint.Canonicalize(raw))
	if !sensitive {
		return Decision{Action: ActionAllow, Reason: ReasonNotSensitive}
	}

	fp, err := m.fp(raw)
	if err != nil {
		m.log.Error("fingerprint failed", "error", err)
		return Decision{Action: ActionBlock, Reason: ReasonFingerprintError, Match: match}
	}

	bound, err := m.lookup(fp)
	if err != nil {
		m.log.Error("bind lookup failed", "error", err)
		return Decision{Action: ActionBlock, Reason: ReasonLookupError, Match: match, Fingerprint: fp}
	}
	if bound {
		return Decision{Action: ActionAllow, Reason: ReasonBound, Match: match, Fingerprint: fp}
	}
	return Decision{Action: ActionBlock, Reason: ReasonUnbound, Match: match, Fingerprint: fp}
}

// block claims the selection with the alert. On failure lastObserved is
// left alone so the next tick evaluates the same text again.
func (m *Monitor) block() bool {
	if err := m.host.ClaimOwnership(m.alert); err != nil {
		m.log.Error("claim ownership failed", "error", err)
		m.owning = false
		return false
	}
	m.owning = true
	m.lastObserved = m.alert
	return true
}

func (m *Monitor) serve(req *SelectionRequest) {
	if req == nil {
		return
	}
	if !m.owning {
		m.log.Debug("selection request while not owner", "target", req.Target)
	}
	if err := m.host.ServeOnRequest(req, m.alert); err != nil {
		m.log.Warn("serve selection request failed", "target", req.Target, "error", err)
	}
}

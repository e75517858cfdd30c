package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"booking-intake/backend/internal/booking/domain"
	"booking-intake/backend/internal/booking/form"
	"booking-intake/backend/internal/otp"
	"booking-intake/backend/internal/policy/engine"
	"booking-intake/backend/internal/wizard"
)

const (
	// DefaultSessionTTL is how long an untouched form session is kept.
	DefaultSessionTTL = 30 * time.Minute
	// submittedRetention keeps a submitted form long enough for the client to read its reference.
	submittedRetention = time.Minute
	sweepTimeout       = 30 * time.Second
)

// Gauge receives the number of live form sessions.
type Gauge interface {
	SetActiveForms(n int)
}

// Purger is implemented by stores that can drop expired keys in bulk.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Gate is a submission policy. *engine.OPAEvaluator satisfies it.
type Gate interface {
	Gate(ctx context.Context, in engine.Input) error
}

// PolicyFromGate adapts g to the wizard's policy hook.
func PolicyFromGate(g Gate) wizard.Policy {
	if g == nil {
		return nil
	}
	return func(ctx context.Context, in wizard.SubmissionInput) error {
		return g.Gate(ctx, engine.Input{
			FormID:      in.FormID,
			CurrentStep: in.CurrentStep,
			TotalSteps:  in.TotalSteps,
			OTPStatus:   string(in.OTPStatus),
			Fields:      in.Fields,
		})
	}
}

// Config wires the collaborators shared by every session.
type Config struct {
	Store      otp.Store
	Dispatcher otp.Dispatcher
	Creator    wizard.Creator
	Validator  *form.Validator
	// OTP is the template for each session's OTP options; Scope is set to the form id.
	OTP            otp.Options
	Steps          []domain.Step
	Policy         wizard.Policy
	WizardRecorder wizard.Recorder
	Gauge          Gauge
	SessionTTL     time.Duration
	Now            func() time.Time
	// Today returns the current date in the clinic timezone; defaults to Now.
	Today func() time.Time
}

// Manager owns the live form sessions.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager validates cfg and returns an empty Manager.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if cfg.Store == nil || cfg.Dispatcher == nil || cfg.Creator == nil || cfg.Validator == nil {
		return nil, errors.New("intake: store, dispatcher, creator and validator are required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Today == nil {
		cfg.Today = cfg.Now
	}
	if cfg.OTP.Now == nil {
		cfg.OTP.Now = cfg.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: logger, sessions: make(map[string]*Session)}, nil
}

// Create mounts a new form: default fields, step 1, OTP idle.
func (m *Manager) Create(_ context.Context) (*Session, error) {
	id := uuid.NewString()
	f := form.New(m.cfg.Validator, domain.DefaultFields(m.cfg.Today()))

	otpOpts := m.cfg.OTP
	otpOpts.Scope = id
	svc, err := otp.NewService(m.cfg.Store, m.cfg.Dispatcher, otpOpts, m.logger.Named("otp").With(zap.String("form_id", id)))
	if err != nil {
		return nil, err
	}
	ctrl, err := wizard.New(f, svc, m.cfg.Creator, wizard.Options{
		FormID:   id,
		Steps:    m.cfg.Steps,
		Policy:   m.cfg.Policy,
		Recorder: m.cfg.WizardRecorder,
		Now:      m.cfg.Now,
		Logger:   m.logger.Named("wizard"),
	})
	if err != nil {
		return nil, err
	}
	now := m.cfg.Now()
	s := &Session{
		id:        id,
		form:      f,
		otp:       svc,
		wizard:    ctrl,
		now:       m.cfg.Now,
		createdAt: now,
		lastSeen:  now,
		events:    m.cfg.OTP.Events,
		logger:    m.logger,
	}

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.setGauge(n)
	m.logger.Debug("form session created", zap.String("form_id", id))
	return s, nil
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete unmounts the form and discards its OTP session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.otp.Reset(ctx)
	m.setGauge(n)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle longer than the session TTL, and submitted sessions once the client
// had a moment to read the result. It returns the number removed.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	var stale []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		idle := now.Sub(s.idleSince())
		if idle >= m.cfg.SessionTTL || (s.wizard.Submitted() && idle >= submittedRetention) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range stale {
		s.otp.Reset(ctx)
	}
	m.setGauge(n)
	if len(stale) > 0 {
		m.logger.Info("swept form sessions", zap.Int("removed", len(stale)), zap.Int("active", n))
	}
	return len(stale)
}

// StartSweeper runs Sweep, and Purge on stores that support it, on the cron schedule.
// The returned func stops the scheduler and waits for a running sweep.
func (m *Manager) StartSweeper(schedule string) (func(), error) {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		m.Sweep(ctx, m.cfg.Now())
		if p, ok := m.cfg.Store.(Purger); ok {
			if n, err := p.Purge(ctx); err != nil {
				m.logger.Warn("purge expired otp keys", zap.Error(err))
			} else if n > 0 {
				m.logger.Debug("purged expired otp keys", zap.Int("count", n))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	m.logger.Info("form sweeper scheduled", zap.String("schedule", schedule))
	return func() { <-c.Stop().Done() }, nil
}

func (m *Manager) setGauge(n int) {
	if m.cfg.Gauge != nil {
		m.cfg.Gauge.SetActiveForms(n)
	}
}

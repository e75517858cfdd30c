package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-intake/backend/internal/booking/domain"
	"booking-intake/backend/internal/booking/form"
	"booking-intake/backend/internal/otp"
	"booking-intake/backend/internal/otp/store"
	"booking-intake/backend/internal/policy/engine"
	"booking-intake/backend/internal/wizard"
)

const phone = "+919999999999"

var monday = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

type outbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (o *outbox) SendOTP(_ context.Context, phone, code string, _ time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.codes == nil {
		o.codes = map[string]string{}
	}
	o.codes[phone] = code
	return nil
}

func (o *outbox) code(phone string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[phone]
}

type creator struct {
	mu       sync.Mutex
	bookings []domain.Booking
	block    chan struct{}
}

func (c *creator) Create(_ context.Context, b domain.Booking) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bookings = append(c.bookings, b)
	return nil
}

type gauge struct{ n int }

func (g *gauge) SetActiveForms(n int) { g.n = n }

type fixture struct {
	mgr     *Manager
	store   *store.MemoryStore
	outbox  *outbox
	creator *creator
	gauge   *gauge
	now     time.Time
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{store: store.NewMemoryStore(), outbox: &outbox{}, creator: &creator{}, gauge: &gauge{}, now: monday}
	nowF := func() time.Time { return f.now }
	cal := form.NewClinicCalendar(time.UTC, []time.Weekday{time.Sunday}, nowF)
	cfg := Config{
		Store:      f.store,
		Dispatcher: f.outbox,
		Creator:    f.creator,
		Validator:  form.NewValidator(cal),
		OTP:        otp.Options{VerifyDelay: -1},
		Gauge:      f.gauge,
		Now:        nowF,
		Today:      cal.Today,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	mgr, err := NewManager(cfg, nil)
	require.NoError(t, err)
	f.mgr = mgr
	return f
}

func ptr(s string) *string { return &s }

func fillContact(t *testing.T, s *Session) {
	t.Helper()
	_, err := s.ApplyFields(domain.FieldsPatch{
		Date:  ptr("2026-10-20"),
		Name:  ptr("Asha Rao"),
		Phone: ptr(phone),
		Email: ptr("asha@example.com"),
	})
	require.NoError(t, err)
}

func TestNewManager_RequiresCollaborators(t *testing.T) {
	_, err := NewManager(Config{}, nil)
	assert.Error(t, err)
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.mgr.Create(context.Background())
	require.NoError(t, err)

	v := s.View()
	assert.Equal(t, s.ID(), v.FormID)
	assert.Equal(t, domain.DefaultFields(monday), v.Fields)
	assert.Equal(t, 1, v.Wizard.Current)
	assert.Equal(t, otp.StatusIdle, v.OTP.Status)
	assert.Equal(t, 1, f.gauge.n)

	got, err := f.mgr.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestGet_Unknown(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.mgr.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFullBookingFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	fillContact(t, s)

	for i := 0; i < 2; i++ {
		_, err := s.Advance()
		require.NoError(t, err)
	}
	_, err = s.Submit(ctx)
	assert.ErrorIs(t, err, wizard.ErrNotReady)

	sent, err := s.RequestOTP(ctx, "")
	require.NoError(t, err)
	assert.True(t, sent)
	code := f.outbox.code(phone)
	require.Len(t, code, 6)

	ok, err := s.VerifyOTP(ctx, code)
	require.NoError(t, err)
	assert.True(t, ok)

	b, err := s.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.ID(), b.FormID)
	assert.Equal(t, phone, b.Fields.Phone)
	require.Len(t, f.creator.bookings, 1)

	_, err = s.ApplyFields(domain.FieldsPatch{Name: ptr("x")})
	assert.ErrorIs(t, err, wizard.ErrFinalized)
}

func TestResetOTP_RefusedWhileSubmitting(t *testing.T) {
	f := newFixture(t, nil)
	f.creator.block = make(chan struct{})
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	fillContact(t, s)
	for i := 0; i < 2; i++ {
		_, err := s.Advance()
		require.NoError(t, err)
	}
	_, err = s.RequestOTP(ctx, "")
	require.NoError(t, err)
	ok, err := s.VerifyOTP(ctx, f.outbox.code(phone))
	require.NoError(t, err)
	require.True(t, ok)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return s.View().Wizard.Submit == wizard.SubmitSubmitting
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, s.ResetOTP(ctx), wizard.ErrSubmitInProgress)
	_, err = s.ApplyFields(domain.FieldsPatch{Name: ptr("x")})
	assert.ErrorIs(t, err, wizard.ErrSubmitInProgress)
	assert.Equal(t, otp.StatusVerified, s.View().OTP.Status)

	close(f.creator.block)
	require.NoError(t, <-done)
	assert.ErrorIs(t, s.ResetOTP(ctx), wizard.ErrFinalized)
	assert.Equal(t, otp.StatusVerified, s.View().OTP.Status)
}

func TestOTPKeysAreScopedByForm(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	b, err := f.mgr.Create(ctx)
	require.NoError(t, err)

	_, err = a.RequestOTP(ctx, phone)
	require.NoError(t, err)
	_, ok, err := f.store.Get(ctx, a.ID()+":formOTP")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = f.store.Get(ctx, b.ID()+":formOTP")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequestOTP_WritesPhoneToForm(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.mgr.Create(context.Background())
	require.NoError(t, err)

	_, err = s.RequestOTP(context.Background(), " +918888888888 ")
	require.NoError(t, err)
	assert.Equal(t, "+918888888888", s.View().Fields.Phone)
	assert.NotEmpty(t, f.outbox.code("+918888888888"))
}

func TestRequestOTP_EmptyPhone(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.mgr.Create(context.Background())
	require.NoError(t, err)
	_, err = s.RequestOTP(context.Background(), "")
	assert.ErrorIs(t, err, otp.ErrInvalidPhone)
}

func TestPhoneLockedWhileCodeOutstanding(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = s.RequestOTP(ctx, phone)
	require.NoError(t, err)

	_, err = s.ApplyFields(domain.FieldsPatch{Phone: ptr("+918888888888")})
	assert.ErrorIs(t, err, ErrPhoneLocked)
	_, err = s.RequestOTP(ctx, "+918888888888")
	assert.ErrorIs(t, err, ErrPhoneLocked)

	_, err = s.ApplyFields(domain.FieldsPatch{Phone: ptr(phone), Name: ptr("Asha")})
	require.NoError(t, err, "same phone is not a change")

	require.NoError(t, s.ResetOTP(ctx))
	_, err = s.ApplyFields(domain.FieldsPatch{Phone: ptr("+918888888888")})
	assert.NoError(t, err)
}

func TestSweep(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SessionTTL = 10 * time.Minute })
	ctx := context.Background()
	stale, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	_, err = stale.RequestOTP(ctx, phone)
	require.NoError(t, err)

	f.now = monday.Add(6 * time.Minute)
	fresh, err := f.mgr.Create(ctx)
	require.NoError(t, err)

	f.now = monday.Add(11 * time.Minute)
	assert.Equal(t, 1, f.mgr.Sweep(ctx, f.now))
	_, err = f.mgr.Get(stale.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.mgr.Get(fresh.ID())
	assert.NoError(t, err)
	assert.Equal(t, 1, f.gauge.n)

	_, ok, err := f.store.Get(ctx, stale.ID()+":formOTP")
	require.NoError(t, err)
	assert.False(t, ok, "swept sessions drop their persisted code")
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Delete(ctx, s.ID()))
	assert.ErrorIs(t, f.mgr.Delete(ctx, s.ID()), ErrNotFound)
	assert.Zero(t, f.mgr.Len())
}

func TestStartSweeper_InvalidSchedule(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.mgr.StartSweeper("not a schedule")
	assert.Error(t, err)

	stop, err := f.mgr.StartSweeper("@every 1h")
	require.NoError(t, err)
	stop()
}

type denyGate struct{ seen engine.Input }

func (g *denyGate) Gate(_ context.Context, in engine.Input) error {
	g.seen = in
	return &engine.DeniedError{Reasons: []string{"closed"}}
}

func TestPolicyFromGate(t *testing.T) {
	assert.Nil(t, PolicyFromGate(nil))

	g := &denyGate{}
	p := PolicyFromGate(g)
	err := p(context.Background(), wizard.SubmissionInput{FormID: "f", CurrentStep: 3, TotalSteps: 3, OTPStatus: otp.StatusVerified})
	var denied *engine.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "verified", g.seen.OTPStatus)
	assert.Equal(t, 3, g.seen.CurrentStep)
}

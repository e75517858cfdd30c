package publisher

import (
	"context"

	"go.uber.org/zap"

	"booking-intake/backend/internal/booking/domain"
)

// LogPublisher records bookings in the service log. Used when no brokers are configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Create logs b. Contact details are omitted.
func (p *LogPublisher) Create(_ context.Context, b domain.Booking) error {
	p.logger.Info("booking received",
		zap.String("reference", b.Reference),
		zap.String("form_id", b.FormID),
		zap.String("service", string(b.Fields.Service)),
		zap.String("doctor", string(b.Fields.Doctor)),
		zap.String("date", b.Fields.Date),
		zap.String("time", b.Fields.Time),
	)
	return nil
}

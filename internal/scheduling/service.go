package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated         = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged   = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentArchived        = "APPOINTMENT_ARCHIVED"
	EventTreatmentCreated           = "TREATMENT_CREATED"
	EventTreatmentStatusChanged     = "TREATMENT_STATUS_CHANGED"
	EventTreatmentUpdated           = "TREATMENT_UPDATED"
	EventTreatmentVisitCompleted    = "TREATMENT_VISIT_COMPLETED"
	EventPreRegistrationCreated     = "PRE_REGISTRATION_CREATED"
	EventPreRegistrationConfirmed   = "PRE_REGISTRATION_CONFIRMED"
	EventTemporaryPatientRegistered = "TEMPORARY_PATIENT_CREATED"
)

const (
	entityAppointment     = "cita"
	entityTreatment       = "tratamiento"
	entityPreRegistration = "pre_registro"
	entityPatient         = "paciente"
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	cfg     config.Config
	metrics *metrics.Scheduling
	logger  zerolog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Scheduling) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultVisitIntervalMonths <= 0 {
		cfg.DefaultVisitIntervalMonths = 1
	}

	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withSlotLock guards fn with the distributed lock for one slot.
func (s *Service) withSlotLock(ctx context.Context, practitionerID int64, at time.Time, fn func(ctx context.Context) error) error {
	err := s.locker.WithSlotLock(ctx, redisclient.SlotKey(practitionerID, at), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

// advance moves a visit date forward by n cadence steps: the service's own
// interval in days when configured, calendar months otherwise.
func (s *Service) advance(from time.Time, svc *CatalogService, n int) time.Time {
	local := from.In(s.cfg.Location)
	if svc != nil && svc.VisitIntervalDays != nil && *svc.VisitIntervalDays > 0 {
		return local.AddDate(0, 0, *svc.VisitIntervalDays*n)
	}
	return local.AddDate(0, s.cfg.DefaultVisitIntervalMonths*n, 0)
}

func (s *Service) noteLine(label, text string) string {
	line := fmt.Sprintf("[%s] %s", s.now().In(s.cfg.Location).Format("2006-01-02 15:04"), label)
	if text != "" {
		line += ": " + text
	}
	return line
}

func appendNote(existing, line string) string {
	if line == "" {
		return existing
	}
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}

func (s *Service) logEvent(ctx context.Context, st Store, entityType string, entityID int64, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	ev := EventLog{
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    data,
		CreatedAt:  s.now(),
	}
	if err := st.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("log %s: %w", eventType, err)
	}
	return nil
}

func (s *Service) observe(op string, began time.Time) {
	s.metrics.ObserveLatency(op, time.Since(began).Seconds())
}

// wrap names the failing step on internal errors and leaves business errors untouched.
func wrap(step string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return fmt.Errorf("%s: %w", step, err)
}

// IsBusinessError reports whether err is one of the typed scheduling outcomes.
func IsBusinessError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

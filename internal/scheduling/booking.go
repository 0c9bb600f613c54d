package scheduling

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type BookingRequest struct {
	PatientID      *int64
	Contact        Contact
	ServiceID      int64
	PractitionerID *int64
	ScheduledAt    time.Time
	Notes          string
}

type BookingKind string

const (
	BookingAppointment              BookingKind = "appointment"
	BookingTreatment                BookingKind = "treatment"
	BookingPreRegistration          BookingKind = "pre_registration"
	BookingTreatmentPreRegistration BookingKind = "treatment_pre_registration"
)

func bookingKind(isTreatment, registered bool) BookingKind {
	switch {
	case registered && isTreatment:
		return BookingTreatment
	case registered:
		return BookingAppointment
	case isTreatment:
		return BookingTreatmentPreRegistration
	default:
		return BookingPreRegistration
	}
}

// BookingResult lists every record a booking created and the state it was left in.
type BookingResult struct {
	Kind        BookingKind
	ScheduledAt time.Time

	AppointmentID     *int64
	AppointmentStatus AppointmentStatus

	TreatmentID     *int64
	TreatmentStatus TreatmentStatus

	PreRegistrationID     *int64
	PreRegistrationStatus PreRegistrationStatus

	PatientID        *int64
	TemporaryPatient bool
}

type bookOptions struct {
	forcedPractitioner *int64
	channel            string
}

type BookOption func(*bookOptions)

// WithForcedPractitioner books against a fixed practitioner regardless of
// what the request asked for.
func WithForcedPractitioner(id int64) BookOption {
	return func(o *bookOptions) { o.forcedPractitioner = &id }
}

// WithChannel tags the booking with its intake channel for metrics and the event log.
func WithChannel(name string) BookOption {
	return func(o *bookOptions) { o.channel = name }
}

func notBefore(now time.Time) validation.RuleFunc {
	return func(value any) error {
		t, ok := value.(time.Time)
		if ok && t.Before(now) {
			return errors.New("must not be in the past")
		}
		return nil
	}
}

func (r BookingRequest) validate(now time.Time) error {
	var practitionerID int64
	if r.PractitionerID != nil {
		practitionerID = *r.PractitionerID
	}

	errs := validation.Errors{
		"servicio_id":   validation.Validate(r.ServiceID, validation.Required, validation.Min(int64(1))),
		"odontologo_id": validation.Validate(practitionerID, validation.Required, validation.Min(int64(1))),
		"fecha_hora":    validation.Validate(r.ScheduledAt, validation.Required, validation.By(notBefore(now))),
		"correo":        validation.Validate(r.Contact.Email, is.EmailFormat),
		"notas":         validation.Validate(r.Notes, validation.Length(0, 1000)),
	}
	if r.PatientID != nil {
		errs["paciente_id"] = validation.Validate(*r.PatientID, validation.Min(int64(1)))
	} else {
		errs["nombre"] = validation.Validate(r.Contact.FirstName, validation.Required)
		errs["apellido_paterno"] = validation.Validate(r.Contact.PaternalSurname, validation.Required)
	}
	return asValidationError(errs.Filter())
}

// mergeContact fills blank request fields from the patient record.
func mergeContact(req, stored Contact) Contact {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	out := Contact{
		FirstName:       pick(req.FirstName, stored.FirstName),
		PaternalSurname: pick(req.PaternalSurname, stored.PaternalSurname),
		MaternalSurname: pick(req.MaternalSurname, stored.MaternalSurname),
		Gender:          pick(req.Gender, stored.Gender),
		Email:           pick(req.Email, stored.Email),
		Phone:           pick(req.Phone, stored.Phone),
		BirthDate:       req.BirthDate,
	}
	if out.BirthDate == nil {
		out.BirthDate = stored.BirthDate
	}
	return out
}

// Book resolves a booking request into an appointment, a treatment with its
// first visit, or a pre-registration, depending on whether the patient is
// registered and whether the service is a treatment. Every record is written
// in one transaction.
func (s *Service) Book(ctx context.Context, req BookingRequest, opts ...BookOption) (*BookingResult, error) {
	began := time.Now()
	defer s.observe("book", began)

	o := bookOptions{channel: "web"}
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case o.forcedPractitioner != nil:
		req.PractitionerID = o.forcedPractitioner
	case req.PractitionerID == nil && s.cfg.DefaultPractitionerID > 0:
		req.PractitionerID = int64Ptr(s.cfg.DefaultPractitionerID)
	}

	if err := req.validate(s.now()); err != nil {
		s.metrics.ObserveBooking("", o.channel, "invalid")
		return nil, err
	}

	svc, err := s.repo.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, wrap("book: load service", err)
	}
	practitionerID := *req.PractitionerID
	if _, err := s.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		return nil, wrap("book: load practitioner", err)
	}

	var patient *Patient
	if req.PatientID != nil {
		patient, err = s.repo.GetPatientByID(ctx, *req.PatientID)
		if err != nil {
			return nil, wrap("book: load patient", err)
		}
	}

	kind := bookingKind(svc.IsTreatment, patient != nil)
	b := booking{svc: s, req: req, catalog: svc, patient: patient, practitionerID: practitionerID, channel: o.channel}

	var result *BookingResult
	err = s.withSlotLock(ctx, practitionerID, req.ScheduledAt, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
			if err := requireSlotFree(ctx, tx, practitionerID, req.ScheduledAt, nil); err != nil {
				return err
			}

			var err error
			switch kind {
			case BookingAppointment:
				result, err = b.appointment(ctx, tx)
			case BookingTreatment:
				result, err = b.treatment(ctx, tx)
			case BookingPreRegistration:
				result, err = b.preRegistration(ctx, tx)
			default:
				result, err = b.treatmentPreRegistration(ctx, tx)
			}
			return err
		})
	})

	switch {
	case errors.Is(err, ErrConflict):
		s.metrics.ObserveBooking(string(kind), o.channel, "conflict")
		s.metrics.ObserveSlotConflict("book")
		return nil, err
	case err != nil:
		s.metrics.ObserveBooking(string(kind), o.channel, "error")
		return nil, wrap("book", err)
	}

	s.metrics.ObserveBooking(string(kind), o.channel, "created")
	return result, nil
}

// booking carries the resolved inputs of one Book call into its branch.
type booking struct {
	svc            *Service
	req            BookingRequest
	catalog        *CatalogService
	patient        *Patient
	practitionerID int64
	channel        string
}

func (b booking) contact() Contact {
	if b.patient == nil {
		return b.req.Contact
	}
	return mergeContact(b.req.Contact, b.patient.Contact)
}

func (b booking) plannedVisits() int {
	if b.catalog.EstimatedVisits < 1 {
		return 1
	}
	return b.catalog.EstimatedVisits
}

func (b booking) newTreatment(patientID, preRegistrationID *int64, status TreatmentStatus) Treatment {
	visits := b.plannedVisits()
	return Treatment{
		PatientID:         patientID,
		PreRegistrationID: preRegistrationID,
		ServiceID:         b.catalog.ID,
		PractitionerID:    b.practitionerID,
		Name:              b.catalog.Title,
		StartDate:         b.req.ScheduledAt,
		EstimatedEndDate:  b.svc.advance(b.req.ScheduledAt, b.catalog, visits-1),
		TotalVisits:       visits,
		Status:            status,
		Notes:             b.svc.noteLine("Creado", b.req.Notes),
		TotalCost:         b.catalog.Price,
	}
}

func (b booking) appointment(ctx context.Context, tx Store) (*BookingResult, error) {
	appt, err := tx.InsertAppointment(ctx, Appointment{
		PatientID:      &b.patient.ID,
		Contact:        b.contact(),
		PractitionerID: b.practitionerID,
		ServiceID:      b.catalog.ID,
		ScheduledAt:    b.req.ScheduledAt,
		Status:         AppointmentPending,
		Notes:          b.req.Notes,
		PaymentStatus:  PaymentPending,
	})
	if err != nil {
		return nil, wrap("insert appointment", err)
	}

	if err := b.svc.logEvent(ctx, tx, entityAppointment, appt.ID, EventAppointmentCreated, map[string]any{
		"odontologo_id": b.practitionerID,
		"servicio_id":   b.catalog.ID,
		"fecha":         b.req.ScheduledAt,
		"canal":         b.channel,
	}); err != nil {
		return nil, err
	}

	return &BookingResult{
		Kind:              BookingAppointment,
		ScheduledAt:       appt.ScheduledAt,
		AppointmentID:     int64Ptr(appt.ID),
		AppointmentStatus: appt.Status,
		PatientID:         appt.PatientID,
	}, nil
}

func (b booking) treatment(ctx context.Context, tx Store) (*BookingResult, error) {
	t, err := tx.InsertTreatment(ctx, b.newTreatment(&b.patient.ID, nil, TreatmentPending))
	if err != nil {
		return nil, wrap("insert treatment", err)
	}

	appt, err := tx.InsertAppointment(ctx, Appointment{
		PatientID:      &b.patient.ID,
		Contact:        b.contact(),
		PractitionerID: b.practitionerID,
		ServiceID:      b.catalog.ID,
		ScheduledAt:    b.req.ScheduledAt,
		Status:         AppointmentPending,
		Notes:          b.req.Notes,
		TreatmentID:    &t.ID,
		VisitNumber:    intPtr(1),
		PaymentStatus:  PaymentPending,
	})
	if err != nil {
		return nil, wrap("insert first visit", err)
	}

	if err := b.svc.logEvent(ctx, tx, entityTreatment, t.ID, EventTreatmentCreated, map[string]any{
		"cita_id":      appt.ID,
		"total_citas":  t.TotalVisits,
		"fecha_inicio": t.StartDate,
		"canal":        b.channel,
	}); err != nil {
		return nil, err
	}

	return &BookingResult{
		Kind:              BookingTreatment,
		ScheduledAt:       appt.ScheduledAt,
		AppointmentID:     int64Ptr(appt.ID),
		AppointmentStatus: appt.Status,
		TreatmentID:       int64Ptr(t.ID),
		TreatmentStatus:   t.Status,
		PatientID:         appt.PatientID,
	}, nil
}

func (b booking) preRegistration(ctx context.Context, tx Store) (*BookingResult, error) {
	pr, err := tx.InsertPreRegistration(ctx, PreRegistration{
		Contact:        b.req.Contact,
		ServiceID:      b.catalog.ID,
		PractitionerID: b.practitionerID,
		ScheduledAt:    b.req.ScheduledAt,
		Notes:          b.req.Notes,
		Status:         PreRegistrationPending,
	})
	if err != nil {
		return nil, wrap("insert pre-registration", err)
	}

	if err := b.svc.logEvent(ctx, tx, entityPreRegistration, pr.ID, EventPreRegistrationCreated, map[string]any{
		"es_tratamiento": false,
		"canal":          b.channel,
	}); err != nil {
		return nil, err
	}

	return &BookingResult{
		Kind:                  BookingPreRegistration,
		ScheduledAt:           pr.ScheduledAt,
		PreRegistrationID:     int64Ptr(pr.ID),
		PreRegistrationStatus: pr.Status,
	}, nil
}

func (b booking) treatmentPreRegistration(ctx context.Context, tx Store) (*BookingResult, error) {
	pr, err := tx.InsertPreRegistration(ctx, PreRegistration{
		Contact:        b.req.Contact,
		ServiceID:      b.catalog.ID,
		PractitionerID: b.practitionerID,
		ScheduledAt:    b.req.ScheduledAt,
		Notes:          b.req.Notes,
		IsTreatment:    true,
		Status:         PreRegistrationPending,
	})
	if err != nil {
		return nil, wrap("insert pre-registration", err)
	}

	patient, err := tx.CreatePatient(ctx, Patient{Contact: b.req.Contact, Temporary: true})
	if err != nil {
		return nil, wrap("create temporary patient", err)
	}

	t, err := tx.InsertTreatment(ctx, b.newTreatment(&patient.ID, &pr.ID, TreatmentPreRegistration))
	if err != nil {
		return nil, wrap("insert treatment", err)
	}

	if err := tx.LinkPreRegistration(ctx, pr.ID, &patient.ID, &t.ID); err != nil {
		return nil, wrap("link pre-registration", err)
	}

	if err := b.svc.logEvent(ctx, tx, entityPatient, patient.ID, EventTemporaryPatientRegistered, map[string]any{
		"pre_registro_id": pr.ID,
	}); err != nil {
		return nil, err
	}
	if err := b.svc.logEvent(ctx, tx, entityPreRegistration, pr.ID, EventPreRegistrationCreated, map[string]any{
		"es_tratamiento": true,
		"tratamiento_id": t.ID,
		"paciente_id":    patient.ID,
		"canal":          b.channel,
	}); err != nil {
		return nil, err
	}

	return &BookingResult{
		Kind:                  BookingTreatmentPreRegistration,
		ScheduledAt:           pr.ScheduledAt,
		TreatmentID:           int64Ptr(t.ID),
		TreatmentStatus:       t.Status,
		PreRegistrationID:     int64Ptr(pr.ID),
		PreRegistrationStatus: pr.Status,
		PatientID:             int64Ptr(patient.ID),
		TemporaryPatient:      true,
	}, nil
}

package scheduling

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type PromoteRequest struct {
	Observations string
	// PatientID lets staff reconcile the visitor with an existing patient.
	PatientID *int64
}

type PromotionResult struct {
	PreRegistrationID int64
	AppointmentID     int64
	AppointmentStatus AppointmentStatus
	TreatmentID       *int64
	TreatmentStatus   TreatmentStatus
	PatientID         *int64
}

func (r PromoteRequest) validate() error {
	errs := validation.Errors{
		"observaciones": validation.Validate(r.Observations, validation.Length(0, 1000)),
	}
	if r.PatientID != nil {
		errs["paciente_id"] = validation.Validate(*r.PatientID, validation.Min(int64(1)))
	}
	return asValidationError(errs.Filter())
}

// Promote turns a pending pre-registration into a confirmed appointment and,
// when it belongs to a treatment, activates that treatment. The slot is
// checked again since the visitor booked it.
func (s *Service) Promote(ctx context.Context, id int64, req PromoteRequest) (*PromotionResult, error) {
	began := time.Now()
	defer s.observe("promote", began)

	if err := req.validate(); err != nil {
		return nil, err
	}

	pending, err := s.repo.GetPreRegistrationByID(ctx, id)
	if err != nil {
		return nil, wrap("promote: load pre-registration", err)
	}

	var result *PromotionResult
	err = s.withSlotLock(ctx, pending.PractitionerID, pending.ScheduledAt, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
			pr, err := tx.GetPreRegistrationForUpdate(ctx, id)
			if err != nil {
				return wrap("lock pre-registration", err)
			}
			if pr.Status == PreRegistrationConfirmed {
				return ErrAlreadyConfirmed
			}

			patientID := pr.PatientID
			if req.PatientID != nil {
				if _, err := tx.GetPatientByID(ctx, *req.PatientID); err != nil {
					return wrap("load reconciled patient", err)
				}
				patientID = req.PatientID
			}

			if err := requireSlotFree(ctx, tx, pr.PractitionerID, pr.ScheduledAt, nil); err != nil {
				return err
			}

			if pr.IsTreatment && pr.TreatmentID != nil {
				result, err = s.promoteTreatment(ctx, tx, pr, patientID, req)
			} else {
				result, err = s.promoteAppointment(ctx, tx, pr, req)
			}
			if err != nil {
				return err
			}

			if _, err := tx.ConfirmPreRegistration(ctx, pr.ID, &result.AppointmentID, result.PatientID); err != nil {
				return wrap("confirm pre-registration", err)
			}

			return s.logEvent(ctx, tx, entityPreRegistration, pr.ID, EventPreRegistrationConfirmed, map[string]any{
				"cita_id":        result.AppointmentID,
				"tratamiento_id": result.TreatmentID,
				"paciente_id":    result.PatientID,
			})
		})
	})

	switch {
	case errors.Is(err, ErrConflict):
		s.metrics.ObserveSlotConflict("promote")
		return nil, err
	case err != nil:
		return nil, wrap("promote", err)
	}

	s.metrics.ObserveTransition("pre_registration", string(PreRegistrationConfirmed))
	return result, nil
}

func (s *Service) promoteTreatment(ctx context.Context, tx Store, pr *PreRegistration, patientID *int64, req PromoteRequest) (*PromotionResult, error) {
	t, err := tx.GetTreatmentForUpdate(ctx, *pr.TreatmentID)
	if err != nil {
		return nil, wrap("lock treatment", err)
	}
	if t.Status.Terminal() {
		return nil, stateError("treatment_closed", "treatment %d is already %s", t.ID, t.Status)
	}

	previous := t.Status
	t.Status = TreatmentActive
	t.Notes = appendNote(t.Notes, s.noteLine("Confirmado desde pre-registro", req.Observations))
	if patientID != nil {
		t.PatientID = patientID
	}
	t, err = tx.UpdateTreatment(ctx, *t)
	if err != nil {
		return nil, wrap("activate treatment", err)
	}

	appt, err := tx.InsertAppointment(ctx, Appointment{
		PatientID:      t.PatientID,
		Contact:        pr.Contact,
		PractitionerID: pr.PractitionerID,
		ServiceID:      pr.ServiceID,
		ScheduledAt:    pr.ScheduledAt,
		Status:         AppointmentConfirmed,
		Notes:          appendNote(pr.Notes, req.Observations),
		TreatmentID:    &t.ID,
		VisitNumber:    intPtr(1),
		PaymentStatus:  PaymentPending,
	})
	if err != nil {
		return nil, wrap("insert first visit", err)
	}

	if err := s.logEvent(ctx, tx, entityTreatment, t.ID, EventTreatmentStatusChanged, map[string]any{
		"de":      previous,
		"a":       t.Status,
		"cita_id": appt.ID,
		"origen":  "pre_registro",
	}); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("treatment", string(t.Status))

	return &PromotionResult{
		PreRegistrationID: pr.ID,
		AppointmentID:     appt.ID,
		AppointmentStatus: appt.Status,
		TreatmentID:       int64Ptr(t.ID),
		TreatmentStatus:   t.Status,
		PatientID:         t.PatientID,
	}, nil
}

// promoteAppointment keeps the visitor unregistered at appointment level
// unless staff reconciled a patient.
func (s *Service) promoteAppointment(ctx context.Context, tx Store, pr *PreRegistration, req PromoteRequest) (*PromotionResult, error) {
	appt, err := tx.InsertAppointment(ctx, Appointment{
		PatientID:      req.PatientID,
		Contact:        pr.Contact,
		PractitionerID: pr.PractitionerID,
		ServiceID:      pr.ServiceID,
		ScheduledAt:    pr.ScheduledAt,
		Status:         AppointmentConfirmed,
		Notes:          appendNote(pr.Notes, req.Observations),
		PaymentStatus:  PaymentPending,
	})
	if err != nil {
		return nil, wrap("insert appointment", err)
	}

	if err := s.logEvent(ctx, tx, entityAppointment, appt.ID, EventAppointmentCreated, map[string]any{
		"odontologo_id":   appt.PractitionerID,
		"servicio_id":     appt.ServiceID,
		"fecha":           appt.ScheduledAt,
		"pre_registro_id": pr.ID,
	}); err != nil {
		return nil, err
	}

	return &PromotionResult{
		PreRegistrationID: pr.ID,
		AppointmentID:     appt.ID,
		AppointmentStatus: appt.Status,
		PatientID:         appt.PatientID,
	}, nil
}

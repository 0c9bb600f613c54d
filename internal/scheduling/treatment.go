package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type TreatmentTransition struct {
	Treatment *Treatment
	Previous  TreatmentStatus
	// ConfirmedAppointmentID is the first visit confirmed by an activation.
	ConfirmedAppointmentID *int64
	// CancelledAppointments counts the visits cancelled by an abandonment.
	CancelledAppointments int64
}

type VisitCompletion struct {
	Treatment       *Treatment
	CompletedVisits int
	TotalVisits     int
	Finished        bool
	NextAppointment *Appointment
	// NextVisitConflict is set when the follow-up slot was taken; the visit
	// is still counted and staff book the next one by hand.
	NextVisitConflict bool
}

type AddVisitRequest struct {
	ScheduledAt    time.Time
	PractitionerID *int64
	Notes          string
}

func validateNotes(field, notes string) error {
	return asValidationError(validation.Errors{
		field: validation.Validate(notes, validation.Length(0, 1000)),
	}.Filter())
}

// SetTreatmentState moves a treatment to newState. Activation confirms the
// first visit, abandonment cancels every live visit, and every transition
// appends a line to the notes log.
func (s *Service) SetTreatmentState(ctx context.Context, id int64, newState TreatmentStatus, notes string) (*TreatmentTransition, error) {
	began := time.Now()
	defer s.observe("set_treatment_state", began)

	if _, ok := ParseTreatmentStatus(string(newState)); !ok {
		return nil, validationError("invalid_state", "unknown treatment state %q", newState)
	}
	if err := validateNotes("notas", notes); err != nil {
		return nil, err
	}

	var result *TreatmentTransition
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		t, err := tx.GetTreatmentForUpdate(ctx, id)
		if err != nil {
			return wrap("lock treatment", err)
		}

		switch {
		case t.Status == newState:
			return stateError("no_op_transition", "treatment is already %s", newState)
		case t.Status.Terminal():
			return stateError("terminal_state", "treatment is %s and can no longer change", t.Status)
		case newState == TreatmentFinished && t.CompletedVisits < t.TotalVisits:
			return stateError("visits_incomplete", "treatment has %d of %d visits completed", t.CompletedVisits, t.TotalVisits)
		}

		result = &TreatmentTransition{Previous: t.Status}
		line := s.noteLine(string(newState), notes)

		if newState == TreatmentActive && (t.Status == TreatmentPreRegistration || t.Status == TreatmentPending) {
			confirmed, err := s.confirmFirstVisit(ctx, tx, t.ID, line, false)
			if err != nil {
				return err
			}
			result.ConfirmedAppointmentID = confirmed
		}

		if newState == TreatmentAbandoned {
			n, err := tx.CancelActiveTreatmentAppointments(ctx, t.ID, line)
			if err != nil {
				return wrap("cancel visits", err)
			}
			result.CancelledAppointments = n
		}

		t.Status = newState
		t.Notes = appendNote(t.Notes, line)
		updated, err := tx.UpdateTreatment(ctx, *t)
		if err != nil {
			return wrap("update treatment", err)
		}
		result.Treatment = updated

		return s.logEvent(ctx, tx, entityTreatment, t.ID, EventTreatmentStatusChanged, map[string]any{
			"de":               result.Previous,
			"a":                newState,
			"cita_confirmada":  result.ConfirmedAppointmentID,
			"citas_canceladas": result.CancelledAppointments,
		})
	})
	if err != nil {
		return nil, wrap("set treatment state", err)
	}

	s.metrics.ObserveTransition("treatment", string(newState))
	return result, nil
}

// confirmFirstVisit confirms visit 1 when it is still pending. A treatment
// without visits yet is only an error on the recheck path, where an explicit
// confirmation needs an initial appointment to confirm.
func (s *Service) confirmFirstVisit(ctx context.Context, tx Store, treatmentID int64, line string, recheck bool) (*int64, error) {
	first, err := tx.GetFirstTreatmentAppointment(ctx, treatmentID)
	if errors.Is(err, ErrAppointmentNotFound) {
		if recheck {
			return nil, ErrFirstVisitNotFound
		}
		return nil, nil
	}
	if err != nil {
		return nil, wrap("load first visit", err)
	}
	if first.Status != AppointmentPending || first.Archived {
		return nil, nil
	}

	if recheck {
		if err := requireSlotFree(ctx, tx, first.PractitionerID, first.ScheduledAt, &first.ID); err != nil {
			return nil, err
		}
	}

	if _, err := tx.UpdateAppointmentStatus(ctx, first.ID, AppointmentPending, AppointmentConfirmed, line); err != nil {
		return nil, wrap("confirm first visit", err)
	}
	s.metrics.ObserveTransition("appointment", string(AppointmentConfirmed))
	return int64Ptr(first.ID), nil
}

// ConfirmTreatment activates a pending treatment after re-checking the slot
// of its first visit.
func (s *Service) ConfirmTreatment(ctx context.Context, id int64, observations string) (*TreatmentTransition, error) {
	began := time.Now()
	defer s.observe("confirm_treatment", began)

	if err := validateNotes("observaciones", observations); err != nil {
		return nil, err
	}

	var result *TreatmentTransition
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		t, err := tx.GetTreatmentForUpdate(ctx, id)
		if err != nil {
			return wrap("lock treatment", err)
		}
		if t.Status != TreatmentPending {
			return stateError("treatment_not_pending", "only pending treatments can be confirmed, treatment is %s", t.Status)
		}

		line := s.noteLine("Confirmado", observations)
		confirmed, err := s.confirmFirstVisit(ctx, tx, t.ID, line, true)
		if err != nil {
			return err
		}

		result = &TreatmentTransition{Previous: t.Status, ConfirmedAppointmentID: confirmed}
		t.Status = TreatmentActive
		t.Notes = appendNote(t.Notes, line)
		updated, err := tx.UpdateTreatment(ctx, *t)
		if err != nil {
			return wrap("update treatment", err)
		}
		result.Treatment = updated

		return s.logEvent(ctx, tx, entityTreatment, t.ID, EventTreatmentStatusChanged, map[string]any{
			"de":              result.Previous,
			"a":               TreatmentActive,
			"cita_confirmada": confirmed,
		})
	})

	switch {
	case errors.Is(err, ErrConflict):
		s.metrics.ObserveSlotConflict("confirm_treatment")
		return nil, err
	case err != nil:
		return nil, wrap("confirm treatment", err)
	}

	s.metrics.ObserveTransition("treatment", string(TreatmentActive))
	return result, nil
}

// RecordVisitCompletion counts a completed visit toward its treatment. The
// counter and the Finalizado state move together; otherwise the next visit
// is booked one cadence step after the completed one.
func (s *Service) RecordVisitCompletion(ctx context.Context, treatmentID, appointmentID int64) (*VisitCompletion, error) {
	began := time.Now()
	defer s.observe("record_visit_completion", began)

	if appointmentID < 1 {
		return nil, asValidationError(validation.Errors{"cita_id": errors.New("cannot be blank")})
	}

	var result *VisitCompletion
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		t, err := tx.GetTreatmentForUpdate(ctx, treatmentID)
		if err != nil {
			return wrap("lock treatment", err)
		}
		if t.Status != TreatmentActive {
			return validationError("treatment_not_active", "treatment is %s, visits can only be counted on an active treatment", t.Status)
		}

		appt, err := tx.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return wrap("lock appointment", err)
		}
		if appt.TreatmentID == nil || *appt.TreatmentID != t.ID {
			return validationError("appointment_not_linked", "appointment %d does not belong to treatment %d", appt.ID, t.ID)
		}
		if appt.VisitCountedAt != nil {
			return ErrVisitAlreadyCounted
		}
		if appt.Status != AppointmentCompleted {
			return validationError("appointment_not_completed", "appointment %d is %s, it must be %s", appt.ID, appt.Status, AppointmentCompleted)
		}

		updated, err := tx.IncrementCompletedVisits(ctx, t.ID)
		if err != nil {
			return wrap("increment visits", err)
		}
		if err := tx.MarkVisitCounted(ctx, appt.ID, s.now()); err != nil {
			return wrap("mark visit counted", err)
		}

		result = &VisitCompletion{
			CompletedVisits: updated.CompletedVisits,
			TotalVisits:     updated.TotalVisits,
			Finished:        updated.Status == TreatmentFinished,
		}

		if result.Finished {
			updated.Notes = appendNote(updated.Notes, s.noteLine(string(TreatmentFinished), fmt.Sprintf("%d de %d citas completadas", updated.CompletedVisits, updated.TotalVisits)))
			if updated, err = tx.UpdateTreatment(ctx, *updated); err != nil {
				return wrap("close treatment", err)
			}
		} else {
			next, conflict, err := s.scheduleNextVisit(ctx, tx, updated, appt)
			if err != nil {
				return err
			}
			result.NextAppointment = next
			result.NextVisitConflict = conflict
		}
		result.Treatment = updated

		var nextID *int64
		if result.NextAppointment != nil {
			nextID = int64Ptr(result.NextAppointment.ID)
		}
		return s.logEvent(ctx, tx, entityTreatment, t.ID, EventTreatmentVisitCompleted, map[string]any{
			"cita_id":             appt.ID,
			"citas_completadas":   updated.CompletedVisits,
			"finalizado":          result.Finished,
			"siguiente_cita":      nextID,
			"conflicto_siguiente": result.NextVisitConflict,
		})
	})
	if err != nil {
		return nil, wrap("record visit completion", err)
	}

	if result.Finished {
		s.metrics.ObserveTransition("treatment", string(TreatmentFinished))
	}
	if result.NextVisitConflict {
		s.metrics.ObserveSlotConflict("next_visit")
		s.logger.Warn().
			Int64("tratamiento_id", treatmentID).
			Int64("cita_id", appointmentID).
			Msg("next treatment visit not scheduled, slot taken")
	}
	return result, nil
}

// scheduleNextVisit books the follow-up visit one cadence step after done.
// Nothing is booked when the plan already has as many visits as it needs.
// A taken slot is reported as a conflict, not an error.
func (s *Service) scheduleNextVisit(ctx context.Context, tx Store, t *Treatment, done *Appointment) (*Appointment, bool, error) {
	maxVisit, live, err := tx.TreatmentVisitStats(ctx, t.ID)
	if err != nil {
		return nil, false, wrap("count visits", err)
	}
	if live >= t.TotalVisits {
		return nil, false, nil
	}

	catalog, err := tx.GetServiceByID(ctx, done.ServiceID)
	if err != nil {
		return nil, false, wrap("load service", err)
	}

	at := s.advance(done.ScheduledAt, catalog, 1)
	free, err := isSlotFree(ctx, tx, done.PractitionerID, at, nil)
	if err != nil {
		return nil, false, err
	}
	if !free {
		return nil, true, nil
	}

	number := maxVisit + 1
	next, err := tx.InsertAppointment(ctx, Appointment{
		PatientID:      done.PatientID,
		Contact:        done.Contact,
		PractitionerID: done.PractitionerID,
		ServiceID:      done.ServiceID,
		ScheduledAt:    at,
		Status:         AppointmentPending,
		Notes:          s.noteLine("Agendada automaticamente", fmt.Sprintf("cita %d de %d", number, t.TotalVisits)),
		TreatmentID:    &t.ID,
		VisitNumber:    intPtr(number),
		PaymentStatus:  PaymentPending,
	})
	if errors.Is(err, ErrSlotTaken) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, wrap("insert next visit", err)
	}
	return next, false, nil
}

// AddVisit books an extra visit on an active treatment, up to its planned total.
func (s *Service) AddVisit(ctx context.Context, treatmentID int64, req AddVisitRequest) (*Appointment, error) {
	began := time.Now()
	defer s.observe("add_visit", began)

	errs := validation.Errors{
		"fecha_hora": validation.Validate(req.ScheduledAt, validation.Required, validation.By(notBefore(s.now()))),
		"notas":      validation.Validate(req.Notes, validation.Length(0, 1000)),
	}
	if req.PractitionerID != nil {
		errs["odontologo_id"] = validation.Validate(*req.PractitionerID, validation.Min(int64(1)))
	}
	if err := asValidationError(errs.Filter()); err != nil {
		return nil, err
	}

	current, err := s.repo.GetTreatmentByID(ctx, treatmentID)
	if err != nil {
		return nil, wrap("add visit: load treatment", err)
	}
	practitionerID := current.PractitionerID
	if req.PractitionerID != nil {
		practitionerID = *req.PractitionerID
		if _, err := s.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
			return nil, wrap("add visit: load practitioner", err)
		}
	}

	var created *Appointment
	err = s.withSlotLock(ctx, practitionerID, req.ScheduledAt, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
			t, err := tx.GetTreatmentForUpdate(ctx, treatmentID)
			if err != nil {
				return wrap("lock treatment", err)
			}
			if t.Status != TreatmentActive {
				return stateError("treatment_not_active", "visits can only be added to an active treatment, treatment is %s", t.Status)
			}

			maxVisit, live, err := tx.TreatmentVisitStats(ctx, t.ID)
			if err != nil {
				return wrap("count visits", err)
			}
			if live >= t.TotalVisits {
				return stateError("visit_limit_reached", "treatment already has %d of %d planned visits", live, t.TotalVisits)
			}

			if err := requireSlotFree(ctx, tx, practitionerID, req.ScheduledAt, nil); err != nil {
				return err
			}

			contact, err := s.treatmentContact(ctx, tx, t)
			if err != nil {
				return err
			}

			created, err = tx.InsertAppointment(ctx, Appointment{
				PatientID:      t.PatientID,
				Contact:        contact,
				PractitionerID: practitionerID,
				ServiceID:      t.ServiceID,
				ScheduledAt:    req.ScheduledAt,
				Status:         AppointmentPending,
				Notes:          req.Notes,
				TreatmentID:    &t.ID,
				VisitNumber:    intPtr(maxVisit + 1),
				PaymentStatus:  PaymentPending,
			})
			if err != nil {
				return wrap("insert visit", err)
			}

			return s.logEvent(ctx, tx, entityAppointment, created.ID, EventAppointmentCreated, map[string]any{
				"tratamiento_id":          t.ID,
				"numero_cita_tratamiento": maxVisit + 1,
				"odontologo_id":           practitionerID,
				"fecha":                   req.ScheduledAt,
			})
		})
	})

	switch {
	case errors.Is(err, ErrConflict):
		s.metrics.ObserveSlotConflict("add_visit")
		return nil, err
	case err != nil:
		return nil, wrap("add visit", err)
	}
	return created, nil
}

// treatmentContact reuses the snapshot of the first visit, falling back to
// the patient record.
func (s *Service) treatmentContact(ctx context.Context, tx Store, t *Treatment) (Contact, error) {
	first, err := tx.GetFirstTreatmentAppointment(ctx, t.ID)
	if err == nil {
		return first.Contact, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return Contact{}, wrap("load first visit", err)
	}
	if t.PatientID == nil {
		return Contact{}, nil
	}
	p, err := tx.GetPatientByID(ctx, *t.PatientID)
	if err != nil {
		return Contact{}, wrap("load patient", err)
	}
	return p.Contact, nil
}

func (s *Service) GetTreatment(ctx context.Context, id int64) (*TreatmentDetail, error) {
	t, err := s.repo.GetTreatmentByID(ctx, id)
	if err != nil {
		return nil, wrap("get treatment", err)
	}
	visits, err := s.repo.ListTreatmentAppointments(ctx, id)
	if err != nil {
		return nil, wrap("list treatment visits", err)
	}
	return &TreatmentDetail{Treatment: *t, Visits: visits}, nil
}

func (s *Service) ListTreatmentVisits(ctx context.Context, id int64) ([]Appointment, error) {
	if _, err := s.repo.GetTreatmentByID(ctx, id); err != nil {
		return nil, wrap("list treatment visits", err)
	}
	visits, err := s.repo.ListTreatmentAppointments(ctx, id)
	if err != nil {
		return nil, wrap("list treatment visits", err)
	}
	return visits, nil
}

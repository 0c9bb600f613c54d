package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentPending:   {AppointmentConfirmed, AppointmentCancelled},
	AppointmentConfirmed: {AppointmentCompleted, AppointmentCancelled},
}

func canMoveAppointment(from, to AppointmentStatus) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SetAppointmentState applies a single appointment transition. Confirming a
// pending appointment re-checks its slot against every other live booking.
func (s *Service) SetAppointmentState(ctx context.Context, id int64, to AppointmentStatus, notes string) (*Appointment, error) {
	began := time.Now()
	defer s.observe("set_appointment_state", began)

	if _, ok := ParseAppointmentStatus(string(to)); !ok {
		return nil, validationError("invalid_state", "unknown appointment state %q", to)
	}
	if err := validateNotes("notas", notes); err != nil {
		return nil, err
	}

	var updated *Appointment
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		a, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return wrap("lock appointment", err)
		}

		switch {
		case a.Archived:
			return stateError("appointment_archived", "appointment %d is archived", a.ID)
		case a.Status == to:
			return stateError("no_op_transition", "appointment is already %s", to)
		case !canMoveAppointment(a.Status, to):
			return stateError("illegal_transition", "appointment cannot move from %s to %s", a.Status, to)
		}

		if to == AppointmentConfirmed {
			if err := requireSlotFree(ctx, tx, a.PractitionerID, a.ScheduledAt, &a.ID); err != nil {
				return err
			}
		}

		updated, err = tx.UpdateAppointmentStatus(ctx, a.ID, a.Status, to, s.noteLine(string(to), notes))
		if err != nil {
			return wrap("update appointment", err)
		}

		return s.logEvent(ctx, tx, entityAppointment, a.ID, EventAppointmentStatusChanged, map[string]any{
			"de": a.Status,
			"a":  to,
		})
	})

	switch {
	case errors.Is(err, ErrConflict):
		s.metrics.ObserveSlotConflict("set_appointment_state")
		return nil, err
	case err != nil:
		return nil, wrap("set appointment state", err)
	}

	s.metrics.ObserveTransition("appointment", string(to))
	return updated, nil
}

// ArchiveAppointment moves a finished appointment into medical history.
func (s *Service) ArchiveAppointment(ctx context.Context, id int64) (*Appointment, error) {
	var archived *Appointment
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		a, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return wrap("lock appointment", err)
		}
		if a.Archived {
			return stateError("already_archived", "appointment %d is already archived", a.ID)
		}
		if !a.Status.Terminal() {
			return stateError("appointment_active", "only %s or %s appointments can be archived", AppointmentCompleted, AppointmentCancelled)
		}

		archived, err = tx.ArchiveAppointment(ctx, a.ID)
		if err != nil {
			return wrap("archive appointment", err)
		}
		return s.logEvent(ctx, tx, entityAppointment, a.ID, EventAppointmentArchived, map[string]any{
			"estado": a.Status,
		})
	})
	if err != nil {
		return nil, wrap("archive appointment", err)
	}

	s.metrics.ObserveArchived(1)
	return archived, nil
}

// ArchiveFinishedAppointments is called by the archive worker periodically.
func (s *Service) ArchiveFinishedAppointments(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.ArchiveAfter)

	n, err := s.repo.ArchiveTerminalAppointmentsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive finished appointments: %w", err)
	}

	s.metrics.ObserveArchived(n)
	if n > 0 {
		s.logger.Info().Int64("archived", n).Time("cutoff", cutoff).Msg("archived finished appointments")
	}
	return n, nil
}

func (s *Service) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, wrap("get appointment", err)
	}
	return a, nil
}

// ListPendingPreRegistrations returns the pre-registrations waiting for staff.
func (s *Service) ListPendingPreRegistrations(ctx context.Context, limit, offset int) ([]PreRegistration, error) {
	limit, offset = pageBounds(limit, offset)
	list, err := s.repo.ListPendingPreRegistrations(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pending pre-registrations: %w", err)
	}
	return list, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

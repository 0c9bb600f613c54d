package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CreateTreatmentRequest opens an active treatment plan directly, without a
// booking. Visits are added afterwards.
type CreateTreatmentRequest struct {
	PatientID        int64
	ServiceID        int64
	PractitionerID   *int64
	Name             string
	StartDate        time.Time
	EstimatedEndDate time.Time
	TotalVisits      int
	TotalCost        float64
	Notes            string
}

// UpdateTreatmentRequest edits an active plan. Nil fields keep their value.
type UpdateTreatmentRequest struct {
	Name             *string
	PractitionerID   *int64
	StartDate        *time.Time
	EstimatedEndDate *time.Time
	TotalVisits      *int
	TotalCost        *float64
	Notes            string
}

func endNotBeforeStart(start, end time.Time) error {
	if end.Before(start) {
		return asValidationError(validation.Errors{
			"fecha_estimada_fin": errors.New("must not be before fecha_inicio"),
		})
	}
	return nil
}

func (r CreateTreatmentRequest) validate() error {
	var practitionerID int64
	if r.PractitionerID != nil {
		practitionerID = *r.PractitionerID
	}

	err := asValidationError(validation.Errors{
		"paciente_id":             validation.Validate(r.PatientID, validation.Required, validation.Min(int64(1))),
		"servicio_id":             validation.Validate(r.ServiceID, validation.Required, validation.Min(int64(1))),
		"odontologo_id":           validation.Validate(practitionerID, validation.Required, validation.Min(int64(1))),
		"nombre_tratamiento":      validation.Validate(r.Name, validation.Required, validation.Length(1, 200)),
		"fecha_inicio":            validation.Validate(r.StartDate, validation.Required),
		"fecha_estimada_fin":      validation.Validate(r.EstimatedEndDate, validation.Required),
		"total_citas_programadas": validation.Validate(r.TotalVisits, validation.Required, validation.Min(1)),
		"costo_total":             validation.Validate(r.TotalCost, validation.Min(0.0)),
		"notas":                   validation.Validate(r.Notes, validation.Length(0, 1000)),
	}.Filter())
	if err != nil {
		return err
	}
	return endNotBeforeStart(r.StartDate, r.EstimatedEndDate)
}

func (r UpdateTreatmentRequest) validate() error {
	return asValidationError(validation.Errors{
		"nombre_tratamiento":      validation.Validate(r.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		"odontologo_id":           validation.Validate(r.PractitionerID, validation.NilOrNotEmpty, validation.Min(int64(1))),
		"total_citas_programadas": validation.Validate(r.TotalVisits, validation.NilOrNotEmpty, validation.Min(1)),
		"costo_total":             validation.Validate(r.TotalCost, validation.Min(0.0)),
		"notas":                   validation.Validate(r.Notes, validation.Length(0, 1000)),
	}.Filter())
}

// CreateTreatment opens an Activo treatment with no completed visits.
func (s *Service) CreateTreatment(ctx context.Context, req CreateTreatmentRequest) (*Treatment, error) {
	began := time.Now()
	defer s.observe("create_treatment", began)

	if req.PractitionerID == nil && s.cfg.DefaultPractitionerID > 0 {
		req.PractitionerID = int64Ptr(s.cfg.DefaultPractitionerID)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		return nil, wrap("create treatment: load patient", err)
	}
	if _, err := s.repo.GetServiceByID(ctx, req.ServiceID); err != nil {
		return nil, wrap("create treatment: load service", err)
	}
	if _, err := s.repo.GetPractitionerByID(ctx, *req.PractitionerID); err != nil {
		return nil, wrap("create treatment: load practitioner", err)
	}

	var created *Treatment
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		created, err = tx.InsertTreatment(ctx, Treatment{
			PatientID:        int64Ptr(req.PatientID),
			ServiceID:        req.ServiceID,
			PractitionerID:   *req.PractitionerID,
			Name:             req.Name,
			StartDate:        req.StartDate,
			EstimatedEndDate: req.EstimatedEndDate,
			TotalVisits:      req.TotalVisits,
			Status:           TreatmentActive,
			Notes:            s.noteLine("Creado", req.Notes),
			TotalCost:        req.TotalCost,
		})
		if err != nil {
			return wrap("insert treatment", err)
		}

		return s.logEvent(ctx, tx, entityTreatment, created.ID, EventTreatmentCreated, map[string]any{
			"paciente_id":             req.PatientID,
			"servicio_id":             req.ServiceID,
			"total_citas_programadas": req.TotalVisits,
			"estado":                  TreatmentActive,
		})
	})
	if err != nil {
		return nil, wrap("create treatment", err)
	}

	s.metrics.ObserveTransition("treatment", string(TreatmentActive))
	return created, nil
}

// UpdateTreatmentPlan edits an active treatment. The planned total can never
// drop below the completed counter; reaching it exactly finishes the plan.
func (s *Service) UpdateTreatmentPlan(ctx context.Context, id int64, req UpdateTreatmentRequest) (*Treatment, error) {
	began := time.Now()
	defer s.observe("update_treatment", began)

	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.PractitionerID != nil {
		if _, err := s.repo.GetPractitionerByID(ctx, *req.PractitionerID); err != nil {
			return nil, wrap("update treatment: load practitioner", err)
		}
	}

	var updated *Treatment
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		t, err := tx.GetTreatmentForUpdate(ctx, id)
		if err != nil {
			return wrap("lock treatment", err)
		}
		if t.Status != TreatmentActive {
			return stateError("treatment_not_active", "only active treatments can be edited, treatment is %s", t.Status)
		}

		previous := *t
		if req.Name != nil {
			t.Name = *req.Name
		}
		if req.PractitionerID != nil {
			t.PractitionerID = *req.PractitionerID
		}
		if req.StartDate != nil {
			t.StartDate = *req.StartDate
		}
		if req.EstimatedEndDate != nil {
			t.EstimatedEndDate = *req.EstimatedEndDate
		}
		if req.TotalVisits != nil {
			t.TotalVisits = *req.TotalVisits
		}
		if req.TotalCost != nil {
			t.TotalCost = *req.TotalCost
		}
		if req.StartDate != nil || req.EstimatedEndDate != nil {
			if err := endNotBeforeStart(t.StartDate, t.EstimatedEndDate); err != nil {
				return err
			}
		}
		if t.TotalVisits < t.CompletedVisits {
			return ErrTotalBelowCompleted
		}
		if t.TotalVisits == t.CompletedVisits {
			t.Status = TreatmentFinished
		}
		t.Notes = appendNote(t.Notes, s.noteLine("Actualizado", req.Notes))

		updated, err = tx.UpdateTreatmentPlan(ctx, *t)
		if err != nil {
			return wrap("update treatment plan", err)
		}

		return s.logEvent(ctx, tx, entityTreatment, t.ID, EventTreatmentUpdated, map[string]any{
			"total_anterior":          previous.TotalVisits,
			"total_citas_programadas": t.TotalVisits,
			"odontologo_id":           t.PractitionerID,
			"estado":                  t.Status,
		})
	})
	if err != nil {
		return nil, wrap("update treatment", err)
	}

	if updated.Status == TreatmentFinished {
		s.metrics.ObserveTransition("treatment", string(TreatmentFinished))
	}
	return updated, nil
}

// ListTreatments returns treatments newest first.
func (s *Service) ListTreatments(ctx context.Context, limit, offset int) ([]TreatmentSummary, error) {
	limit, offset = pageBounds(limit, offset)
	list, err := s.repo.ListTreatments(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list treatments: %w", err)
	}
	return list, nil
}

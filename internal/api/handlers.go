package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// SchedulingService is the part of *scheduling.Service the HTTP layer uses.
type SchedulingService interface {
	Book(ctx context.Context, req scheduling.BookingRequest, opts ...scheduling.BookOption) (*scheduling.BookingResult, error)
	GetAppointment(ctx context.Context, id int64) (*scheduling.Appointment, error)
	SetAppointmentState(ctx context.Context, id int64, to scheduling.AppointmentStatus, notes string) (*scheduling.Appointment, error)
	ArchiveAppointment(ctx context.Context, id int64) (*scheduling.Appointment, error)
	ListPendingPreRegistrations(ctx context.Context, limit, offset int) ([]scheduling.PreRegistration, error)
	Promote(ctx context.Context, id int64, req scheduling.PromoteRequest) (*scheduling.PromotionResult, error)
	GetTreatment(ctx context.Context, id int64) (*scheduling.TreatmentDetail, error)
	ListTreatmentVisits(ctx context.Context, id int64) ([]scheduling.Appointment, error)
	SetTreatmentState(ctx context.Context, id int64, state scheduling.TreatmentStatus, notes string) (*scheduling.TreatmentTransition, error)
	RecordVisitCompletion(ctx context.Context, treatmentID, appointmentID int64) (*scheduling.VisitCompletion, error)
	ConfirmTreatment(ctx context.Context, id int64, observations string) (*scheduling.TreatmentTransition, error)
	AddVisit(ctx context.Context, treatmentID int64, req scheduling.AddVisitRequest) (*scheduling.Appointment, error)
	ListTreatments(ctx context.Context, limit, offset int) ([]scheduling.TreatmentSummary, error)
	CreateTreatment(ctx context.Context, req scheduling.CreateTreatmentRequest) (*scheduling.Treatment, error)
	UpdateTreatmentPlan(ctx context.Context, id int64, req scheduling.UpdateTreatmentRequest) (*scheduling.Treatment, error)
}

const defaultListLimit = 20

type Handlers struct {
	svc    SchedulingService
	logger zerolog.Logger
	loc    *time.Location
}

func NewHandlers(svc SchedulingService, logger zerolog.Logger, loc *time.Location) *Handlers {
	if loc == nil {
		loc = time.UTC
	}
	return &Handlers{svc: svc, logger: logger, loc: loc}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body and leaves dst untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Book handles public bookings. opts are fixed per route so the assistant
// channel can force its practitioner.
func (h *Handlers) Book(opts ...scheduling.BookOption) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookingRequest
		if !decodeBody(w, r, &req) {
			return
		}

		at, err := parseTimestamp(req.ScheduledAt, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_fecha_hora", err.Error())
			return
		}
		birth, err := parseDate(req.BirthDate, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_fecha_nacimiento", err.Error())
			return
		}

		res, err := h.svc.Book(r.Context(), scheduling.BookingRequest{
			PatientID: req.PatientID,
			Contact: scheduling.Contact{
				FirstName:       req.FirstName,
				PaternalSurname: req.PaternalSurname,
				MaternalSurname: req.MaternalSurname,
				Gender:          req.Gender,
				BirthDate:       birth,
				Email:           req.Email,
				Phone:           req.Phone,
			},
			ServiceID:      req.ServiceID,
			PractitionerID: req.PractitionerID,
			ScheduledAt:    at,
			Notes:          req.Notes,
		}, opts...)
		if err != nil {
			handleServiceError(w, r, h.logger, "book", err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			Kind:                  string(res.Kind),
			ScheduledAt:           res.ScheduledAt.In(h.loc),
			AppointmentID:         res.AppointmentID,
			AppointmentStatus:     string(res.AppointmentStatus),
			TreatmentID:           res.TreatmentID,
			TreatmentStatus:       string(res.TreatmentStatus),
			PreRegistrationID:     res.PreRegistrationID,
			PreRegistrationStatus: string(res.PreRegistrationStatus),
			PatientID:             res.PatientID,
			TemporaryPatient:      res.TemporaryPatient,
		})
	}
}

func (h *Handlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	a, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, "get_appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*a, h.loc))
}

func (h *Handlers) SetAppointmentState(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req StateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.svc.SetAppointmentState(r.Context(), id, scheduling.AppointmentStatus(req.State), req.Notes)
	if err != nil {
		handleServiceError(w, r, h.logger, "set_appointment_state", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*a, h.loc))
}

func (h *Handlers) ArchiveAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	a, err := h.svc.ArchiveAppointment(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, "archive_appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*a, h.loc))
}

// pageParams reads limit and offset, writing a 400 when either is malformed.
func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, ok = queryInt(r, "limit", defaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return 0, 0, false
	}
	offset, ok = queryInt(r, "offset", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
		return 0, 0, false
	}
	return limit, offset, true
}

func (h *Handlers) ListPendingPreRegistrations(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	list, err := h.svc.ListPendingPreRegistrations(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, r, h.logger, "list_pre_registrations", err)
		return
	}

	items := make([]PreRegistrationResponse, 0, len(list))
	for _, p := range list {
		items = append(items, toPreRegistrationResponse(p, h.loc))
	}
	writeJSON(w, http.StatusOK, ListResponse[PreRegistrationResponse]{Items: items, Limit: limit, Offset: offset})
}

func (h *Handlers) PromotePreRegistration(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req PromoteRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	res, err := h.svc.Promote(r.Context(), id, scheduling.PromoteRequest{
		Observations: req.Observations,
		PatientID:    req.PatientID,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, "promote_pre_registration", err)
		return
	}
	writeJSON(w, http.StatusOK, PromotionResponse{
		PreRegistrationID: res.PreRegistrationID,
		AppointmentID:     res.AppointmentID,
		AppointmentStatus: string(res.AppointmentStatus),
		TreatmentID:       res.TreatmentID,
		TreatmentStatus:   string(res.TreatmentStatus),
		PatientID:         res.PatientID,
	})
}

func (h *Handlers) GetTreatment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	d, err := h.svc.GetTreatment(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, "get_treatment", err)
		return
	}
	resp := toTreatmentResponse(d.Treatment, h.loc)
	resp.Visits = toAppointmentResponses(d.Visits, h.loc)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListTreatmentVisits(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	visits, err := h.svc.ListTreatmentVisits(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, "list_treatment_visits", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponses(visits, h.loc))
}

func (h *Handlers) SetTreatmentState(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req StateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tr, err := h.svc.SetTreatmentState(r.Context(), id, scheduling.TreatmentStatus(req.State), req.Notes)
	if err != nil {
		handleServiceError(w, r, h.logger, "set_treatment_state", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionResponse(tr, h.loc))
}

func (h *Handlers) RecordVisitCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req VisitCompletionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AppointmentID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_cita_id", "cita_id must be a positive integer")
		return
	}
	vc, err := h.svc.RecordVisitCompletion(r.Context(), id, req.AppointmentID)
	if err != nil {
		handleServiceError(w, r, h.logger, "record_visit_completion", err)
		return
	}

	resp := VisitCompletionResponse{
		TreatmentID:       vc.Treatment.ID,
		CompletedVisits:   vc.CompletedVisits,
		TotalVisits:       vc.TotalVisits,
		Finished:          vc.Finished,
		Status:            string(vc.Treatment.Status),
		NextVisitConflict: vc.NextVisitConflict,
	}
	if vc.NextAppointment != nil {
		next := toAppointmentResponse(*vc.NextAppointment, h.loc)
		resp.NextAppointment = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ConfirmTreatment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req ConfirmTreatmentRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	tr, err := h.svc.ConfirmTreatment(r.Context(), id, req.Observations)
	if err != nil {
		handleServiceError(w, r, h.logger, "confirm_treatment", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionResponse(tr, h.loc))
}

func (h *Handlers) AddVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req AddVisitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	at, err := parseTimestamp(req.ScheduledAt, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_fecha_hora", err.Error())
		return
	}
	a, err := h.svc.AddVisit(r.Context(), id, scheduling.AddVisitRequest{
		ScheduledAt:    at,
		PractitionerID: req.PractitionerID,
		Notes:          req.Notes,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, "add_visit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(*a, h.loc))
}

func (h *Handlers) ListTreatments(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	list, err := h.svc.ListTreatments(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, r, h.logger, "list_treatments", err)
		return
	}

	items := make([]TreatmentSummaryResponse, 0, len(list))
	for _, ts := range list {
		items = append(items, toTreatmentSummaryResponse(ts, h.loc))
	}
	writeJSON(w, http.StatusOK, ListResponse[TreatmentSummaryResponse]{Items: items, Limit: limit, Offset: offset})
}

func (h *Handlers) CreateTreatment(w http.ResponseWriter, r *http.Request) {
	var req CreateTreatmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, err := parsePlanDate(req.StartDate, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_fecha_inicio", err.Error())
		return
	}
	end, err := parsePlanDate(req.EstimatedEndDate, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_fecha_estimada_fin", err.Error())
		return
	}

	in := scheduling.CreateTreatmentRequest{
		PatientID:      req.PatientID,
		ServiceID:      req.ServiceID,
		PractitionerID: req.PractitionerID,
		Name:           req.Name,
		TotalVisits:    req.TotalVisits,
		TotalCost:      req.TotalCost,
		Notes:          req.Notes,
	}
	if start != nil {
		in.StartDate = *start
	}
	if end != nil {
		in.EstimatedEndDate = *end
	}

	t, err := h.svc.CreateTreatment(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, h.logger, "create_treatment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTreatmentResponse(*t, h.loc))
}

func (h *Handlers) UpdateTreatment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req UpdateTreatmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, err := parsePlanDate(req.StartDate, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_fecha_inicio", err.Error())
		return
	}
	end, err := parsePlanDate(req.EstimatedEndDate, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_fecha_estimada_fin", err.Error())
		return
	}

	t, err := h.svc.UpdateTreatmentPlan(r.Context(), id, scheduling.UpdateTreatmentRequest{
		Name:             req.Name,
		PractitionerID:   req.PractitionerID,
		StartDate:        start,
		EstimatedEndDate: end,
		TotalVisits:      req.TotalVisits,
		TotalCost:        req.TotalCost,
		Notes:            req.Notes,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, "update_treatment", err)
		return
	}
	writeJSON(w, http.StatusOK, toTreatmentResponse(*t, h.loc))
}

package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// Requests

type BookingRequest struct {
	PatientID       *int64 `json:"paciente_id"`
	FirstName       string `json:"nombre"`
	PaternalSurname string `json:"apellido_paterno"`
	MaternalSurname string `json:"apellido_materno"`
	Gender          string `json:"genero"`
	BirthDate       string `json:"fecha_nacimiento"`
	Email           string `json:"correo"`
	Phone           string `json:"telefono"`
	ServiceID       int64  `json:"servicio_id"`
	PractitionerID  *int64 `json:"odontologo_id"`
	ScheduledAt     string `json:"fecha_hora"`
	Notes           string `json:"notas"`
}

type StateRequest struct {
	State string `json:"estado"`
	Notes string `json:"notas"`
}

type PromoteRequest struct {
	Observations string `json:"observaciones"`
	PatientID    *int64 `json:"paciente_id"`
}

type ConfirmTreatmentRequest struct {
	Observations string `json:"observaciones"`
}

type VisitCompletionRequest struct {
	AppointmentID int64 `json:"cita_id"`
}

type AddVisitRequest struct {
	ScheduledAt    string `json:"fecha_hora"`
	PractitionerID *int64 `json:"odontologo_id"`
	Notes          string `json:"notas"`
}

type CreateTreatmentRequest struct {
	PatientID        int64   `json:"paciente_id"`
	ServiceID        int64   `json:"servicio_id"`
	PractitionerID   *int64  `json:"odontologo_id"`
	Name             string  `json:"nombre_tratamiento"`
	StartDate        string  `json:"fecha_inicio"`
	EstimatedEndDate string  `json:"fecha_estimada_fin"`
	TotalVisits      int     `json:"total_citas_programadas"`
	TotalCost        float64 `json:"costo_total"`
	Notes            string  `json:"notas"`
}

// UpdateTreatmentRequest carries only the fields being changed.
type UpdateTreatmentRequest struct {
	Name             *string  `json:"nombre_tratamiento"`
	PractitionerID   *int64   `json:"odontologo_id"`
	StartDate        string   `json:"fecha_inicio"`
	EstimatedEndDate string   `json:"fecha_estimada_fin"`
	TotalVisits      *int     `json:"total_citas_programadas"`
	TotalCost        *float64 `json:"costo_total"`
	Notes            string   `json:"notas"`
}

// Responses

type ErrorResponse struct {
	Error            string            `json:"error"`
	Details          string            `json:"details,omitempty"`
	ConflictoHorario bool              `json:"conflicto_horario,omitempty"`
	Fields           map[string]string `json:"fields,omitempty"`
}

type BookingResponse struct {
	Kind                  string    `json:"tipo"`
	ScheduledAt           time.Time `json:"fecha_hora"`
	AppointmentID         *int64    `json:"cita_id,omitempty"`
	AppointmentStatus     string    `json:"estado_cita,omitempty"`
	TreatmentID           *int64    `json:"tratamiento_id,omitempty"`
	TreatmentStatus       string    `json:"estado_tratamiento,omitempty"`
	PreRegistrationID     *int64    `json:"pre_registro_id,omitempty"`
	PreRegistrationStatus string    `json:"estado_pre_registro,omitempty"`
	PatientID             *int64    `json:"paciente_id,omitempty"`
	TemporaryPatient      bool      `json:"paciente_temporal,omitempty"`
}

type AppointmentResponse struct {
	ID              int64      `json:"id"`
	PatientID       *int64     `json:"paciente_id"`
	FirstName       string     `json:"nombre"`
	PaternalSurname string     `json:"apellido_paterno"`
	MaternalSurname string     `json:"apellido_materno,omitempty"`
	Email           string     `json:"correo,omitempty"`
	Phone           string     `json:"telefono,omitempty"`
	PractitionerID  int64      `json:"odontologo_id"`
	ServiceID       int64      `json:"servicio_id"`
	ScheduledAt     time.Time  `json:"fecha_hora"`
	Status          string     `json:"estado"`
	PaymentStatus   string     `json:"estado_pago"`
	Notes           string     `json:"notas"`
	TreatmentID     *int64     `json:"tratamiento_id,omitempty"`
	VisitNumber     *int       `json:"numero_cita_tratamiento,omitempty"`
	Archived        bool       `json:"archivado"`
	VisitCountedAt  *time.Time `json:"visita_contabilizada_en,omitempty"`
}

type TreatmentResponse struct {
	ID                int64                 `json:"id"`
	PatientID         *int64                `json:"paciente_id"`
	PreRegistrationID *int64                `json:"pre_registro_id,omitempty"`
	ServiceID         int64                 `json:"servicio_id"`
	PractitionerID    int64                 `json:"odontologo_id"`
	Name              string                `json:"nombre_tratamiento"`
	StartDate         time.Time             `json:"fecha_inicio"`
	EstimatedEndDate  time.Time             `json:"fecha_estimada_fin"`
	TotalVisits       int                   `json:"total_citas_programadas"`
	CompletedVisits   int                   `json:"citas_completadas"`
	Status            string                `json:"estado"`
	Notes             string                `json:"notas"`
	TotalCost         float64               `json:"costo_total"`
	Visits            []AppointmentResponse `json:"citas,omitempty"`
}

// TreatmentSummaryResponse is one row of the treatment listing.
type TreatmentSummaryResponse struct {
	TreatmentResponse
	PatientFirstName       string    `json:"paciente_nombre"`
	PatientPaternalSurname string    `json:"paciente_apellido_paterno"`
	PatientMaternalSurname string    `json:"paciente_apellido_materno"`
	PractitionerName       string    `json:"odontologo_nombre"`
	ServiceTitle           string    `json:"servicio_nombre"`
	ServiceCategory        string    `json:"categoria_servicio"`
	CreatedAt              time.Time `json:"creado_en"`
}

type PreRegistrationResponse struct {
	ID              int64     `json:"id"`
	FirstName       string    `json:"nombre"`
	PaternalSurname string    `json:"apellido_paterno"`
	MaternalSurname string    `json:"apellido_materno,omitempty"`
	Email           string    `json:"correo,omitempty"`
	Phone           string    `json:"telefono,omitempty"`
	PatientID       *int64    `json:"paciente_id,omitempty"`
	ServiceID       int64     `json:"servicio_id"`
	PractitionerID  int64     `json:"odontologo_id"`
	ScheduledAt     time.Time `json:"fecha_hora"`
	Notes           string    `json:"notas"`
	IsTreatment     bool      `json:"es_tratamiento"`
	TreatmentID     *int64    `json:"tratamiento_id,omitempty"`
	Status          string    `json:"estado"`
}

type PromotionResponse struct {
	PreRegistrationID int64  `json:"pre_registro_id"`
	AppointmentID     int64  `json:"cita_id"`
	AppointmentStatus string `json:"estado_cita"`
	TreatmentID       *int64 `json:"tratamiento_id,omitempty"`
	TreatmentStatus   string `json:"estado_tratamiento,omitempty"`
	PatientID         *int64 `json:"paciente_id,omitempty"`
}

type TreatmentTransitionResponse struct {
	Treatment              TreatmentResponse `json:"tratamiento"`
	PreviousStatus         string            `json:"estado_anterior"`
	ConfirmedAppointmentID *int64            `json:"cita_confirmada_id,omitempty"`
	CancelledAppointments  int64             `json:"citas_canceladas"`
}

type VisitCompletionResponse struct {
	TreatmentID       int64                `json:"tratamiento_id"`
	CompletedVisits   int                  `json:"citas_completadas"`
	TotalVisits       int                  `json:"total_citas_programadas"`
	Finished          bool                 `json:"finalizado"`
	Status            string               `json:"estado"`
	NextAppointment   *AppointmentResponse `json:"siguiente_cita,omitempty"`
	NextVisitConflict bool                 `json:"conflicto_siguiente_cita"`
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Conversions

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseTimestamp accepts RFC 3339 or a wall-clock time in the clinic zone.
// Empty input yields the zero time so validation can report it.
func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a valid timestamp", raw)
}

func parseDate(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return nil, fmt.Errorf("%q is not a valid date", raw)
	}
	return &t, nil
}

// parsePlanDate accepts a bare date or any timestamp parseTimestamp takes.
func parsePlanDate(raw string, loc *time.Location) (*time.Time, error) {
	if d, err := parseDate(raw, loc); err == nil {
		return d, nil
	}
	t, err := parseTimestamp(raw, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toAppointmentResponse(a scheduling.Appointment, loc *time.Location) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		FirstName:       a.Contact.FirstName,
		PaternalSurname: a.Contact.PaternalSurname,
		MaternalSurname: a.Contact.MaternalSurname,
		Email:           a.Contact.Email,
		Phone:           a.Contact.Phone,
		PractitionerID:  a.PractitionerID,
		ServiceID:       a.ServiceID,
		ScheduledAt:     a.ScheduledAt.In(loc),
		Status:          string(a.Status),
		PaymentStatus:   string(a.PaymentStatus),
		Notes:           a.Notes,
		TreatmentID:     a.TreatmentID,
		VisitNumber:     a.VisitNumber,
		Archived:        a.Archived,
		VisitCountedAt:  a.VisitCountedAt,
	}
}

func toAppointmentResponses(list []scheduling.Appointment, loc *time.Location) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointmentResponse(a, loc))
	}
	return out
}

func toTreatmentResponse(t scheduling.Treatment, loc *time.Location) TreatmentResponse {
	return TreatmentResponse{
		ID:                t.ID,
		PatientID:         t.PatientID,
		PreRegistrationID: t.PreRegistrationID,
		ServiceID:         t.ServiceID,
		PractitionerID:    t.PractitionerID,
		Name:              t.Name,
		StartDate:         t.StartDate.In(loc),
		EstimatedEndDate:  t.EstimatedEndDate.In(loc),
		TotalVisits:       t.TotalVisits,
		CompletedVisits:   t.CompletedVisits,
		Status:            string(t.Status),
		Notes:             t.Notes,
		TotalCost:         t.TotalCost,
	}
}

func toPreRegistrationResponse(p scheduling.PreRegistration, loc *time.Location) PreRegistrationResponse {
	return PreRegistrationResponse{
		ID:              p.ID,
		FirstName:       p.Contact.FirstName,
		PaternalSurname: p.Contact.PaternalSurname,
		MaternalSurname: p.Contact.MaternalSurname,
		Email:           p.Contact.Email,
		Phone:           p.Contact.Phone,
		PatientID:       p.PatientID,
		ServiceID:       p.ServiceID,
		PractitionerID:  p.PractitionerID,
		ScheduledAt:     p.ScheduledAt.In(loc),
		Notes:           p.Notes,
		IsTreatment:     p.IsTreatment,
		TreatmentID:     p.TreatmentID,
		Status:          string(p.Status),
	}
}

func toTransitionResponse(tr *scheduling.TreatmentTransition, loc *time.Location) TreatmentTransitionResponse {
	return TreatmentTransitionResponse{
		Treatment:              toTreatmentResponse(*tr.Treatment, loc),
		PreviousStatus:         string(tr.Previous),
		ConfirmedAppointmentID: tr.ConfirmedAppointmentID,
		CancelledAppointments:  tr.CancelledAppointments,
	}
}

func toTreatmentSummaryResponse(ts scheduling.TreatmentSummary, loc *time.Location) TreatmentSummaryResponse {
	return TreatmentSummaryResponse{
		TreatmentResponse:      toTreatmentResponse(ts.Treatment, loc),
		PatientFirstName:       ts.PatientFirstName,
		PatientPaternalSurname: ts.PatientPaternalSurname,
		PatientMaternalSurname: ts.PatientMaternalSurname,
		PractitionerName:       ts.PractitionerName,
		ServiceTitle:           ts.ServiceTitle,
		ServiceCategory:        ts.ServiceCategory,
		CreatedAt:              ts.CreatedAt.In(loc),
	}
}

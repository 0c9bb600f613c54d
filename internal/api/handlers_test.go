package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type stubService struct {
	book               func(scheduling.BookingRequest) (*scheduling.BookingResult, error)
	getAppointment     func(int64) (*scheduling.Appointment, error)
	setAppointment     func(int64, scheduling.AppointmentStatus, string) (*scheduling.Appointment, error)
	listPending        func(limit, offset int) ([]scheduling.PreRegistration, error)
	promote            func(int64, scheduling.PromoteRequest) (*scheduling.PromotionResult, error)
	getTreatment       func(int64) (*scheduling.TreatmentDetail, error)
	setTreatment       func(int64, scheduling.TreatmentStatus, string) (*scheduling.TreatmentTransition, error)
	recordCompletion   func(treatmentID, appointmentID int64) (*scheduling.VisitCompletion, error)
	confirmTreatment   func(int64, string) (*scheduling.TreatmentTransition, error)
	addVisit           func(int64, scheduling.AddVisitRequest) (*scheduling.Appointment, error)
	listTreatments     func(limit, offset int) ([]scheduling.TreatmentSummary, error)
	createTreatment    func(scheduling.CreateTreatmentRequest) (*scheduling.Treatment, error)
	updateTreatment    func(int64, scheduling.UpdateTreatmentRequest) (*scheduling.Treatment, error)
	bookOptionsPerCall []int
}

func (s *stubService) Book(_ context.Context, req scheduling.BookingRequest, opts ...scheduling.BookOption) (*scheduling.BookingResult, error) {
	s.bookOptionsPerCall = append(s.bookOptionsPerCall, len(opts))
	return s.book(req)
}

func (s *stubService) GetAppointment(_ context.Context, id int64) (*scheduling.Appointment, error) {
	return s.getAppointment(id)
}

func (s *stubService) SetAppointmentState(_ context.Context, id int64, to scheduling.AppointmentStatus, notes string) (*scheduling.Appointment, error) {
	return s.setAppointment(id, to, notes)
}

func (s *stubService) ArchiveAppointment(_ context.Context, id int64) (*scheduling.Appointment, error) {
	return nil, scheduling.ErrAppointmentNotFound
}

func (s *stubService) ListPendingPreRegistrations(_ context.Context, limit, offset int) ([]scheduling.PreRegistration, error) {
	return s.listPending(limit, offset)
}

func (s *stubService) Promote(_ context.Context, id int64, req scheduling.PromoteRequest) (*scheduling.PromotionResult, error) {
	return s.promote(id, req)
}

func (s *stubService) GetTreatment(_ context.Context, id int64) (*scheduling.TreatmentDetail, error) {
	return s.getTreatment(id)
}

func (s *stubService) ListTreatmentVisits(_ context.Context, id int64) ([]scheduling.Appointment, error) {
	return nil, nil
}

func (s *stubService) SetTreatmentState(_ context.Context, id int64, state scheduling.TreatmentStatus, notes string) (*scheduling.TreatmentTransition, error) {
	return s.setTreatment(id, state, notes)
}

func (s *stubService) RecordVisitCompletion(_ context.Context, treatmentID, appointmentID int64) (*scheduling.VisitCompletion, error) {
	return s.recordCompletion(treatmentID, appointmentID)
}

func (s *stubService) ConfirmTreatment(_ context.Context, id int64, observations string) (*scheduling.TreatmentTransition, error) {
	return s.confirmTreatment(id, observations)
}

func (s *stubService) AddVisit(_ context.Context, treatmentID int64, req scheduling.AddVisitRequest) (*scheduling.Appointment, error) {
	return s.addVisit(treatmentID, req)
}

func (s *stubService) ListTreatments(_ context.Context, limit, offset int) ([]scheduling.TreatmentSummary, error) {
	return s.listTreatments(limit, offset)
}

func (s *stubService) CreateTreatment(_ context.Context, req scheduling.CreateTreatmentRequest) (*scheduling.Treatment, error) {
	return s.createTreatment(req)
}

func (s *stubService) UpdateTreatmentPlan(_ context.Context, id int64, req scheduling.UpdateTreatmentRequest) (*scheduling.Treatment, error) {
	return s.updateTreatment(id, req)
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

var mexicoCity = time.FixedZone("CST", -6*60*60)

func newTestRouter(t *testing.T, svc SchedulingService, mutate ...func(*RouterConfig)) http.Handler {
	t.Helper()
	cfg := RouterConfig{
		Service:  svc,
		DB:       okPinger{},
		Logger:   zerolog.Nop(),
		Location: mexicoCity,
		Env:      "test",
		Version:  "v0.0.0",
		Metrics:  http.NotFoundHandler(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewRouter(cfg)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestBookCreatesAppointment(t *testing.T) {
	var got scheduling.BookingRequest
	apptID, patientID := int64(55), int64(100)
	svc := &stubService{book: func(req scheduling.BookingRequest) (*scheduling.BookingResult, error) {
		got = req
		return &scheduling.BookingResult{
			Kind:              scheduling.BookingAppointment,
			ScheduledAt:       req.ScheduledAt,
			AppointmentID:     &apptID,
			AppointmentStatus: scheduling.AppointmentPending,
			PatientID:         &patientID,
		}, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPost, "/citas/nueva", `{
		"paciente_id": 100,
		"servicio_id": 10,
		"odontologo_id": 1,
		"fecha_hora": "2025-01-01 10:00",
		"fecha_nacimiento": "1990-05-04",
		"notas": "primera vez"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(10), got.ServiceID)
	require.NotNil(t, got.PractitionerID)
	assert.Equal(t, int64(1), *got.PractitionerID)
	assert.True(t, got.ScheduledAt.Equal(time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC)))
	require.NotNil(t, got.Contact.BirthDate)
	assert.Equal(t, "primera vez", got.Notes)

	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "appointment", resp.Kind)
	assert.Equal(t, "Pendiente", resp.AppointmentStatus)
	require.NotNil(t, resp.AppointmentID)
	assert.Equal(t, apptID, *resp.AppointmentID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBookRejectsMalformedInput(t *testing.T) {
	svc := &stubService{book: func(scheduling.BookingRequest) (*scheduling.BookingResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPost, "/citas/nueva", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeError(t, rec).Error)

	rec = do(t, router, http.MethodPost, "/citas/nueva", `{"servicio_id": 10, "fecha_hora": "mañana"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_fecha_hora", decodeError(t, rec).Error)
}

func TestBookSlotConflictFlagsSchedule(t *testing.T) {
	svc := &stubService{book: func(scheduling.BookingRequest) (*scheduling.BookingResult, error) {
		return nil, scheduling.ErrSlotTaken
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPost, "/citas/nueva", `{"servicio_id": 10, "fecha_hora": "2025-01-01T10:00:00Z"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "slot_taken", resp.Error)
	assert.True(t, resp.ConflictoHorario)
}

func TestBookValidationReturnsFields(t *testing.T) {
	svc := &stubService{book: func(scheduling.BookingRequest) (*scheduling.BookingResult, error) {
		return nil, &scheduling.Error{
			Kind:    scheduling.ErrValidation,
			Code:    "invalid_request",
			Message: "invalid request",
			Fields:  map[string]string{"correo": "must be a valid email address"},
		}
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPost, "/citas/nueva", `{"servicio_id": 10, "correo": "x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "invalid_request", resp.Error)
	assert.Equal(t, "must be a valid email address", resp.Fields["correo"])
	assert.False(t, resp.ConflictoHorario)
}

func TestInternalErrorsAreHiddenAndLogged(t *testing.T) {
	var logs bytes.Buffer
	svc := &stubService{getAppointment: func(int64) (*scheduling.Appointment, error) {
		return nil, errors.New("get appointment: connection reset by peer")
	}}
	router := newTestRouter(t, svc, func(c *RouterConfig) {
		c.Logger = zerolog.New(&logs)
	})

	rec := do(t, router, http.MethodGet, "/citas/7", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "internal_error", resp.Error)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	assert.Contains(t, logs.String(), "connection reset by peer")
	assert.Contains(t, logs.String(), `"op":"get_appointment"`)
}

func TestAssistantRouteOnlyWhenConfigured(t *testing.T) {
	apptID := int64(1)
	svc := &stubService{book: func(req scheduling.BookingRequest) (*scheduling.BookingResult, error) {
		return &scheduling.BookingResult{Kind: scheduling.BookingAppointment, AppointmentID: &apptID}, nil
	}}
	body := `{"servicio_id": 10, "fecha_hora": "2025-01-01T10:00:00Z"}`

	disabled := newTestRouter(t, svc)
	rec := do(t, disabled, http.MethodPost, "/citas/asistente/nueva", body)
	assert.NotEqual(t, http.StatusCreated, rec.Code)

	enabled := newTestRouter(t, svc, func(c *RouterConfig) { c.AssistantPractitionerID = 3 })
	rec = do(t, enabled, http.MethodPost, "/citas/asistente/nueva", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, enabled, http.MethodPost, "/citas/nueva", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, []int{2, 1}, svc.bookOptionsPerCall)
}

func TestInvalidIDIsRejected(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	for _, path := range []string{"/citas/abc", "/citas/0", "/tratamientos/-4"} {
		rec := do(t, router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "invalid_id", decodeError(t, rec).Error, path)
	}
}

func TestSetAppointmentStateMapsStateErrors(t *testing.T) {
	svc := &stubService{setAppointment: func(id int64, to scheduling.AppointmentStatus, notes string) (*scheduling.Appointment, error) {
		assert.Equal(t, int64(9), id)
		assert.Equal(t, scheduling.AppointmentCompleted, to)
		return nil, &scheduling.Error{Kind: scheduling.ErrState, Code: "illegal_transition", Message: "cannot move"}
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPut, "/citas/9/estado", `{"estado": "Completada"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "illegal_transition", decodeError(t, rec).Error)
}

func TestArchiveMissingAppointmentIsNotFound(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	rec := do(t, router, http.MethodPut, "/citas/3/archivar", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "appointment_not_found", decodeError(t, rec).Error)
}

func TestListPendingPreRegistrationsPassesPaging(t *testing.T) {
	at := time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC)
	svc := &stubService{listPending: func(limit, offset int) ([]scheduling.PreRegistration, error) {
		assert.Equal(t, 5, limit)
		assert.Equal(t, 10, offset)
		return []scheduling.PreRegistration{{
			ID:          4,
			Contact:     scheduling.Contact{FirstName: "Luis", PaternalSurname: "Mora"},
			ServiceID:   10,
			ScheduledAt: at,
			Status:      scheduling.PreRegistrationPending,
		}}, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodGet, "/citas/pre-registros?limit=5&offset=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListResponse[PreRegistrationResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Luis", resp.Items[0].FirstName)
	assert.Equal(t, "Pendiente", resp.Items[0].Status)

	rec = do(t, router, http.MethodGet, "/citas/pre-registros?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPromoteAcceptsEmptyBody(t *testing.T) {
	tid := int64(8)
	svc := &stubService{promote: func(id int64, req scheduling.PromoteRequest) (*scheduling.PromotionResult, error) {
		assert.Equal(t, int64(4), id)
		assert.Empty(t, req.Observations)
		return &scheduling.PromotionResult{
			PreRegistrationID: 4,
			AppointmentID:     12,
			AppointmentStatus: scheduling.AppointmentConfirmed,
			TreatmentID:       &tid,
			TreatmentStatus:   scheduling.TreatmentActive,
		}, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPut, "/citas/confirmar-pre-registro/4", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp PromotionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(12), resp.AppointmentID)
	assert.Equal(t, "Confirmada", resp.AppointmentStatus)
	assert.Equal(t, "Activo", resp.TreatmentStatus)
}

func TestPromoteConflict(t *testing.T) {
	svc := &stubService{promote: func(int64, scheduling.PromoteRequest) (*scheduling.PromotionResult, error) {
		return nil, scheduling.ErrSlotTaken
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPut, "/citas/confirmar-pre-registro/4", `{"observaciones": "ok"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, decodeError(t, rec).ConflictoHorario)
}

func TestGetTreatmentIncludesVisits(t *testing.T) {
	visit := 1
	svc := &stubService{getTreatment: func(id int64) (*scheduling.TreatmentDetail, error) {
		return &scheduling.TreatmentDetail{
			Treatment: scheduling.Treatment{ID: id, TotalVisits: 3, Status: scheduling.TreatmentActive},
			Visits: []scheduling.Appointment{
				{ID: 30, TreatmentID: &id, VisitNumber: &visit, Status: scheduling.AppointmentConfirmed},
			},
		}, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodGet, "/tratamientos/6", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TreatmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(6), resp.ID)
	require.Len(t, resp.Visits, 1)
	assert.Equal(t, 1, *resp.Visits[0].VisitNumber)
}

func TestSetTreatmentStateReturnsTransition(t *testing.T) {
	confirmed := int64(31)
	svc := &stubService{setTreatment: func(id int64, state scheduling.TreatmentStatus, notes string) (*scheduling.TreatmentTransition, error) {
		assert.Equal(t, scheduling.TreatmentActive, state)
		assert.Equal(t, "listo", notes)
		return &scheduling.TreatmentTransition{
			Treatment:              &scheduling.Treatment{ID: id, Status: scheduling.TreatmentActive},
			Previous:               scheduling.TreatmentPending,
			ConfirmedAppointmentID: &confirmed,
		}, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPut, "/tratamientos/updateStatus/6", `{"estado": "Activo", "notas": "listo"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TreatmentTransitionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Pendiente", resp.PreviousStatus)
	assert.Equal(t, "Activo", resp.Treatment.Status)
	assert.Equal(t, confirmed, *resp.ConfirmedAppointmentID)
}

func TestRecordVisitCompletion(t *testing.T) {
	svc := &stubService{recordCompletion: func(treatmentID, appointmentID int64) (*scheduling.VisitCompletion, error) {
		assert.Equal(t, int64(6), treatmentID)
		assert.Equal(t, int64(30), appointmentID)
		return &scheduling.VisitCompletion{
			Treatment:         &scheduling.Treatment{ID: 6, Status: scheduling.TreatmentActive},
			CompletedVisits:   1,
			TotalVisits:       3,
			NextVisitConflict: true,
		}, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPut, "/tratamientos/incrementarCitas/6", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_cita_id", decodeError(t, rec).Error)

	rec = do(t, router, http.MethodPut, "/tratamientos/incrementarCitas/6", `{"cita_id": 30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp VisitCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.CompletedVisits)
	assert.True(t, resp.NextVisitConflict)
	assert.Nil(t, resp.NextAppointment)
}

func TestConfirmTreatmentNotPending(t *testing.T) {
	svc := &stubService{confirmTreatment: func(int64, string) (*scheduling.TreatmentTransition, error) {
		return nil, &scheduling.Error{Kind: scheduling.ErrState, Code: "treatment_not_pending", Message: "treatment is not pending"}
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPut, "/tratamientos/confirmar/6", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "treatment_not_pending", decodeError(t, rec).Error)
}

func TestAddVisitCreated(t *testing.T) {
	svc := &stubService{addVisit: func(id int64, req scheduling.AddVisitRequest) (*scheduling.Appointment, error) {
		assert.True(t, req.ScheduledAt.Equal(time.Date(2025, 2, 1, 16, 30, 0, 0, time.UTC)))
		return &scheduling.Appointment{ID: 40, TreatmentID: &id, ScheduledAt: req.ScheduledAt, Status: scheduling.AppointmentPending}, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPost, "/tratamientos/6/agregarCita", `{"fecha_hora": "2025-02-01T10:30"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(40), resp.ID)
	assert.Equal(t, "2025-02-01T10:30:00-06:00", resp.ScheduledAt.Format(time.RFC3339))
}

func TestListTreatmentsUsesFallbackNames(t *testing.T) {
	preReg := int64(9)
	svc := &stubService{listTreatments: func(limit, offset int) ([]scheduling.TreatmentSummary, error) {
		assert.Equal(t, 5, limit)
		assert.Equal(t, 10, offset)
		return []scheduling.TreatmentSummary{{
			Treatment:              scheduling.Treatment{ID: 3, PreRegistrationID: &preReg, Status: scheduling.TreatmentPreRegistration, TotalVisits: 4},
			PatientFirstName:       "Luis",
			PatientPaternalSurname: "Mendez",
			PractitionerName:       "Dra. Ruiz",
			ServiceTitle:           "Ortodoncia",
		}}, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodGet, "/tratamientos/all?limit=5&offset=10", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ListResponse[TreatmentSummaryResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(3), resp.Items[0].ID)
	assert.Equal(t, "Luis", resp.Items[0].PatientFirstName)
	assert.Equal(t, "Ortodoncia", resp.Items[0].ServiceTitle)
	assert.Equal(t, "Pre-Registro", resp.Items[0].Status)

	rec = do(t, router, http.MethodGet, "/tratamientos/all?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTreatment(t *testing.T) {
	var got scheduling.CreateTreatmentRequest
	svc := &stubService{createTreatment: func(req scheduling.CreateTreatmentRequest) (*scheduling.Treatment, error) {
		got = req
		return &scheduling.Treatment{
			ID:          12,
			PatientID:   &req.PatientID,
			ServiceID:   req.ServiceID,
			StartDate:   req.StartDate,
			TotalVisits: req.TotalVisits,
			Status:      scheduling.TreatmentActive,
		}, nil
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPost, "/tratamientos/nuevo", `{
		"paciente_id": 100,
		"servicio_id": 20,
		"nombre_tratamiento": "Ortodoncia",
		"fecha_inicio": "2025-01-06",
		"fecha_estimada_fin": "2025-07-06T10:00",
		"total_citas_programadas": 6,
		"costo_total": 18000
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Nil(t, got.PractitionerID)
	assert.True(t, got.StartDate.Equal(time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC)))
	assert.True(t, got.EstimatedEndDate.Equal(time.Date(2025, 7, 6, 16, 0, 0, 0, time.UTC)))
	assert.Equal(t, 6, got.TotalVisits)
	var resp TreatmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(12), resp.ID)
	assert.Equal(t, "Activo", resp.Status)

	rec = do(t, router, http.MethodPost, "/tratamientos/nuevo", `{"fecha_inicio": "mañana"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_fecha_inicio", decodeError(t, rec).Error)
}

func TestUpdateTreatmentBelowCompletedIsRejected(t *testing.T) {
	var got scheduling.UpdateTreatmentRequest
	svc := &stubService{updateTreatment: func(id int64, req scheduling.UpdateTreatmentRequest) (*scheduling.Treatment, error) {
		assert.Equal(t, int64(4), id)
		got = req
		return nil, scheduling.ErrTotalBelowCompleted
	}}
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodPut, "/tratamientos/update/4", `{"total_citas_programadas": 1, "notas": "recorte"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "total_below_completed", decodeError(t, rec).Error)
	require.NotNil(t, got.TotalVisits)
	assert.Equal(t, 1, *got.TotalVisits)
	assert.Nil(t, got.Name)
	assert.Nil(t, got.StartDate)
	assert.Equal(t, "recorte", got.Notes)
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-01T10:00:00Z", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-01-01T10:00:00-06:00", time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC)},
		{"2025-01-01T10:00", time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC)},
		{"2025-01-01 10:00:00", time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseTimestamp(tc.in, mexicoCity)
		require.NoError(t, err, tc.in)
		assert.True(t, got.Equal(tc.want), "%s parsed as %s", tc.in, got)
	}

	zero, err := parseTimestamp("  ", mexicoCity)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = parseTimestamp("01/01/2025", mexicoCity)
	assert.Error(t, err)
}

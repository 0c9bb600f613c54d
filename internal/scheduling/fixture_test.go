package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	drRuiz   int64 = 1
	drOrtega int64 = 2

	svcCleaning     int64 = 10
	svcOrthodontics int64 = 20
	svcRootCanal    int64 = 30

	patientAna int64 = 100
)

var (
	testClock = time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	slot      = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
)

type fixture struct {
	db  *memDB
	svc *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db := newMemDB()
	db.practitioners[drRuiz] = Practitioner{ID: drRuiz, Name: "Dra. Ruiz", Position: "Odontologo", Active: true}
	db.practitioners[drOrtega] = Practitioner{ID: drOrtega, Name: "Dr. Ortega", Position: "Odontologo", Active: true}

	fortnight := 14
	db.services[svcCleaning] = CatalogService{ID: svcCleaning, Title: "Limpieza dental", Price: 650, DurationMinutes: 45, EstimatedVisits: 1}
	db.services[svcOrthodontics] = CatalogService{ID: svcOrthodontics, Title: "Ortodoncia", Price: 18000, DurationMinutes: 60, IsTreatment: true, EstimatedVisits: 3}
	db.services[svcRootCanal] = CatalogService{ID: svcRootCanal, Title: "Endodoncia", Price: 4200, DurationMinutes: 90, IsTreatment: true, EstimatedVisits: 2, VisitIntervalDays: &fortnight}

	db.patients[patientAna] = Patient{ID: patientAna, Contact: Contact{
		FirstName:       "Ana",
		PaternalSurname: "Lopez",
		MaternalSurname: "Garcia",
		Email:           "ana.lopez@example.com",
		Phone:           "5512345678",
	}}

	cfg := config.Config{
		Location:                   time.UTC,
		DefaultVisitIntervalMonths: 1,
		ArchiveAfter:               30 * 24 * time.Hour,
	}
	opts = append([]Option{WithClock(func() time.Time { return testClock })}, opts...)
	svc := NewService(db.repo(), redisclient.NoopLocker{}, cfg, opts...)
	return &fixture{db: db, svc: svc}
}

func (f *fixture) seedTreatment(status TreatmentStatus, total, completed int) Treatment {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	patient := patientAna
	t := Treatment{
		ID:              f.db.id(),
		PatientID:       &patient,
		ServiceID:       svcOrthodontics,
		PractitionerID:  drRuiz,
		Name:            "Ortodoncia",
		StartDate:       slot,
		TotalVisits:     total,
		CompletedVisits: completed,
		Status:          status,
	}
	f.db.treatments[t.ID] = t
	return t
}

func (f *fixture) seedVisit(treatmentID *int64, visit int, status AppointmentStatus, at time.Time) Appointment {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	patient := patientAna
	a := Appointment{
		ID:             f.db.id(),
		PatientID:      &patient,
		Contact:        f.db.patients[patientAna].Contact,
		PractitionerID: drRuiz,
		ServiceID:      svcOrthodontics,
		ScheduledAt:    at,
		Status:         status,
		TreatmentID:    treatmentID,
		PaymentStatus:  PaymentPending,
	}
	if visit > 0 {
		a.VisitNumber = intPtr(visit)
	}
	f.db.appointments[a.ID] = a
	return a
}

func requireKind(t *testing.T, err error, kind error, code string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	if code == "" {
		return
	}
	var be *Error
	require.ErrorAs(t, err, &be)
	require.Equal(t, code, be.Code)
}

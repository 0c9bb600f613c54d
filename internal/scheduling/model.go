package scheduling

import (
	"encoding/json"
	"time"
)

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "Pendiente"
	AppointmentConfirmed AppointmentStatus = "Confirmada"
	AppointmentCompleted AppointmentStatus = "Completada"
	AppointmentCancelled AppointmentStatus = "Cancelada"
)

// Live reports whether the appointment occupies its slot.
func (s AppointmentStatus) Live() bool {
	return s == AppointmentPending || s == AppointmentConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled
}

func ParseAppointmentStatus(v string) (AppointmentStatus, bool) {
	switch s := AppointmentStatus(v); s {
	case AppointmentPending, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled:
		return s, true
	}
	return "", false
}

type TreatmentStatus string

const (
	TreatmentPreRegistration TreatmentStatus = "Pre-Registro"
	TreatmentPending         TreatmentStatus = "Pendiente"
	TreatmentActive          TreatmentStatus = "Activo"
	TreatmentFinished        TreatmentStatus = "Finalizado"
	TreatmentAbandoned       TreatmentStatus = "Abandonado"
)

func (s TreatmentStatus) Terminal() bool {
	return s == TreatmentFinished || s == TreatmentAbandoned
}

func ParseTreatmentStatus(v string) (TreatmentStatus, bool) {
	switch s := TreatmentStatus(v); s {
	case TreatmentPreRegistration, TreatmentPending, TreatmentActive, TreatmentFinished, TreatmentAbandoned:
		return s, true
	}
	return "", false
}

type PreRegistrationStatus string

const (
	PreRegistrationPending   PreRegistrationStatus = "Pendiente"
	PreRegistrationConfirmed PreRegistrationStatus = "Confirmada"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pendiente"
	PaymentPaid    PaymentStatus = "Pagado"
)

// Contact is the demographic snapshot captured at booking time.
type Contact struct {
	FirstName       string
	PaternalSurname string
	MaternalSurname string
	Gender          string
	BirthDate       *time.Time
	Email           string
	Phone           string
}

type Patient struct {
	ID           int64
	Contact      Contact
	GuardianType string
	GuardianName string
	Temporary    bool
	CreatedAt    time.Time
}

type Practitioner struct {
	ID       int64
	Name     string
	Position string
	Active   bool
}

type CatalogService struct {
	ID              int64
	Title           string
	Category        string
	Price           float64
	DurationMinutes int
	IsTreatment     bool
	EstimatedVisits int
	// VisitIntervalDays overrides the default cadence between treatment visits.
	VisitIntervalDays *int
}

type Appointment struct {
	ID             int64
	PatientID      *int64
	Contact        Contact
	PractitionerID int64
	ServiceID      int64
	ScheduledAt    time.Time
	Status         AppointmentStatus
	Notes          string
	TreatmentID    *int64
	VisitNumber    *int
	Archived       bool
	PaymentStatus  PaymentStatus
	VisitCountedAt *time.Time
	RequestedAt    time.Time
	UpdatedAt      time.Time
}

type Treatment struct {
	ID                int64
	PatientID         *int64
	PreRegistrationID *int64
	ServiceID         int64
	PractitionerID    int64
	Name              string
	StartDate         time.Time
	EstimatedEndDate  time.Time
	TotalVisits       int
	CompletedVisits   int
	Status            TreatmentStatus
	Notes             string
	TotalCost         float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type PreRegistration struct {
	ID             int64
	Contact        Contact
	PatientID      *int64
	ServiceID      int64
	PractitionerID int64
	ScheduledAt    time.Time
	Notes          string
	IsTreatment    bool
	TreatmentID    *int64
	AppointmentID  *int64
	Status         PreRegistrationStatus
	CreatedAt      time.Time
}

type EventLog struct {
	ID         int64
	EventType  string
	EntityType string
	EntityID   int64
	Payload    json.RawMessage
	CreatedAt  time.Time
}

// TreatmentSummary is a listing row: the treatment plus the names of the
// people and the service it refers to.
type TreatmentSummary struct {
	Treatment
	PatientFirstName       string
	PatientPaternalSurname string
	PatientMaternalSurname string
	PractitionerName       string
	ServiceTitle           string
	ServiceCategory        string
}

// TreatmentDetail is a treatment with its visits ordered by visit number.
type TreatmentDetail struct {
	Treatment
	Visits []Appointment
}

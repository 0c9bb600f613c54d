package scheduling

import (
	"context"
	"time"
)

// Store holds every query the scheduling core needs. Implementations must
// report a duplicate live slot as ErrSlotTaken and missing rows as the
// matching *NotFound sentinel.
type Store interface {
	GetPatientByID(ctx context.Context, id int64) (*Patient, error)
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)
	GetPractitionerByID(ctx context.Context, id int64) (*Practitioner, error)
	GetServiceByID(ctx context.Context, id int64) (*CatalogService, error)

	// Slot occupancy
	CountActiveAppointmentsAt(ctx context.Context, practitionerID int64, at time.Time, excludeID *int64) (int, error)

	// Appointments
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, id int64) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus, note string) (*Appointment, error)
	MarkVisitCounted(ctx context.Context, id int64, at time.Time) error
	ArchiveAppointment(ctx context.Context, id int64) (*Appointment, error)
	ArchiveTerminalAppointmentsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Treatment visits
	ListTreatmentAppointments(ctx context.Context, treatmentID int64) ([]Appointment, error)
	GetFirstTreatmentAppointment(ctx context.Context, treatmentID int64) (*Appointment, error)
	CancelActiveTreatmentAppointments(ctx context.Context, treatmentID int64, note string) (int64, error)
	// TreatmentVisitStats returns the highest visit number and the number of
	// non-cancelled visits linked to the treatment.
	TreatmentVisitStats(ctx context.Context, treatmentID int64) (maxVisit, liveVisits int, err error)

	// Treatments
	InsertTreatment(ctx context.Context, t Treatment) (*Treatment, error)
	GetTreatmentByID(ctx context.Context, id int64) (*Treatment, error)
	GetTreatmentForUpdate(ctx context.Context, id int64) (*Treatment, error)
	UpdateTreatment(ctx context.Context, t Treatment) (*Treatment, error)
	// IncrementCompletedVisits bumps the counter and flips the state to
	// Finalizado in the same statement once it reaches the planned total.
	IncrementCompletedVisits(ctx context.Context, id int64) (*Treatment, error)
	// UpdateTreatmentPlan writes the editable plan fields and reports
	// ErrTotalBelowCompleted when the new total is below the counter.
	UpdateTreatmentPlan(ctx context.Context, t Treatment) (*Treatment, error)
	// ListTreatments returns treatments newest first with display names,
	// falling back to the pre-registration name for unregistered patients.
	ListTreatments(ctx context.Context, limit, offset int) ([]TreatmentSummary, error)

	// Pre-registrations
	InsertPreRegistration(ctx context.Context, p PreRegistration) (*PreRegistration, error)
	GetPreRegistrationByID(ctx context.Context, id int64) (*PreRegistration, error)
	GetPreRegistrationForUpdate(ctx context.Context, id int64) (*PreRegistration, error)
	LinkPreRegistration(ctx context.Context, id int64, patientID, treatmentID *int64) error
	ConfirmPreRegistration(ctx context.Context, id int64, appointmentID *int64, patientID *int64) (*PreRegistration, error)
	ListPendingPreRegistrations(ctx context.Context, limit, offset int) ([]PreRegistration, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository is a Store that can run a function inside one transaction.
// fn receives a Store bound to the transaction; returning an error rolls
// every write back.
type Repository interface {
	Store
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

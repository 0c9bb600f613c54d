package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memDB is an in-memory Repository with the same slot exclusivity rule as
// the citas_slot_activo_uq index. Transactions are serialised by mu and
// rolled back by restoring a snapshot.
type memDB struct {
	mu sync.Mutex

	nextID        int64
	patients      map[int64]Patient
	practitioners map[int64]Practitioner
	services      map[int64]CatalogService
	appointments  map[int64]Appointment
	treatments    map[int64]Treatment
	preRegs       map[int64]PreRegistration
	events        []EventLog

	// failOn makes the named method return the error, for rollback tests.
	failOn map[string]error

	// blindPrecheck makes CountActiveAppointmentsAt report every slot as
	// free, as seen by a transaction that read before a concurrent booking
	// committed. Only the insert rule can then catch the taken slot.
	blindPrecheck bool
}

type memSnapshot struct {
	nextID       int64
	patients     map[int64]Patient
	appointments map[int64]Appointment
	treatments   map[int64]Treatment
	preRegs      map[int64]PreRegistration
	events       []EventLog
}

func newMemDB() *memDB {
	return &memDB{
		nextID:        1000,
		patients:      map[int64]Patient{},
		practitioners: map[int64]Practitioner{},
		services:      map[int64]CatalogService{},
		appointments:  map[int64]Appointment{},
		treatments:    map[int64]Treatment{},
		preRegs:       map[int64]PreRegistration{},
		failOn:        map[string]error{},
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (d *memDB) snapshot() memSnapshot {
	return memSnapshot{
		nextID:       d.nextID,
		patients:     copyMap(d.patients),
		appointments: copyMap(d.appointments),
		treatments:   copyMap(d.treatments),
		preRegs:      copyMap(d.preRegs),
		events:       append([]EventLog(nil), d.events...),
	}
}

func (d *memDB) restore(s memSnapshot) {
	d.nextID = s.nextID
	d.patients = s.patients
	d.appointments = s.appointments
	d.treatments = s.treatments
	d.preRegs = s.preRegs
	d.events = s.events
}

func (d *memDB) id() int64 {
	d.nextID++
	return d.nextID
}

// repo returns the Repository view used by the service.
func (d *memDB) repo() *memView { return &memView{db: d} }

// memView is a Store bound either to the whole database (locking per call)
// or to a running transaction (lock already held).
type memView struct {
	db   *memDB
	inTx bool
}

func (v *memView) enter() func() {
	if v.inTx {
		return func() {}
	}
	v.db.mu.Lock()
	return v.db.mu.Unlock
}

func (v *memView) fail(method string) error {
	return v.db.failOn[method]
}

func (v *memView) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	snap := v.db.snapshot()
	if err := fn(ctx, &memView{db: v.db, inTx: true}); err != nil {
		v.db.restore(snap)
		return err
	}
	return nil
}

func (v *memView) GetPatientByID(_ context.Context, id int64) (*Patient, error) {
	defer v.enter()()
	p, ok := v.db.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (v *memView) CreatePatient(_ context.Context, p Patient) (*Patient, error) {
	defer v.enter()()
	if err := v.fail("CreatePatient"); err != nil {
		return nil, err
	}
	p.ID = v.db.id()
	p.CreatedAt = time.Now()
	v.db.patients[p.ID] = p
	return &p, nil
}

func (v *memView) GetPractitionerByID(_ context.Context, id int64) (*Practitioner, error) {
	defer v.enter()()
	p, ok := v.db.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (v *memView) GetServiceByID(_ context.Context, id int64) (*CatalogService, error) {
	defer v.enter()()
	s, ok := v.db.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (v *memView) countLive(practitionerID int64, at time.Time, excludeID *int64) int {
	n := 0
	for _, a := range v.db.appointments {
		if a.PractitionerID != practitionerID || !a.ScheduledAt.Equal(at) || a.Archived || !a.Status.Live() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		n++
	}
	return n
}

func (v *memView) CountActiveAppointmentsAt(_ context.Context, practitionerID int64, at time.Time, excludeID *int64) (int, error) {
	defer v.enter()()
	if err := v.fail("CountActiveAppointmentsAt"); err != nil {
		return 0, err
	}
	if v.db.blindPrecheck {
		return 0, nil
	}
	return v.countLive(practitionerID, at, excludeID), nil
}

func (v *memView) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	defer v.enter()()
	if err := v.fail("InsertAppointment"); err != nil {
		return nil, err
	}
	if a.Status.Live() && v.countLive(a.PractitionerID, a.ScheduledAt, nil) > 0 {
		return nil, ErrSlotTaken
	}
	if a.PaymentStatus == "" {
		a.PaymentStatus = PaymentPending
	}
	a.ID = v.db.id()
	a.RequestedAt = time.Now()
	a.UpdatedAt = a.RequestedAt
	v.db.appointments[a.ID] = a
	return &a, nil
}

func (v *memView) GetAppointmentByID(_ context.Context, id int64) (*Appointment, error) {
	defer v.enter()()
	a, ok := v.db.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (v *memView) GetAppointmentForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return v.GetAppointmentByID(ctx, id)
}

func (v *memView) UpdateAppointmentStatus(_ context.Context, id int64, from, to AppointmentStatus, note string) (*Appointment, error) {
	defer v.enter()()
	a, ok := v.db.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.Notes = appendNote(a.Notes, note)
	a.UpdatedAt = time.Now()
	v.db.appointments[id] = a
	return &a, nil
}

func (v *memView) MarkVisitCounted(_ context.Context, id int64, at time.Time) error {
	defer v.enter()()
	a, ok := v.db.appointments[id]
	if !ok || a.VisitCountedAt != nil {
		return ErrVisitAlreadyCounted
	}
	a.VisitCountedAt = &at
	v.db.appointments[id] = a
	return nil
}

func (v *memView) ArchiveAppointment(_ context.Context, id int64) (*Appointment, error) {
	defer v.enter()()
	a, ok := v.db.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Archived = true
	v.db.appointments[id] = a
	return &a, nil
}

func (v *memView) ArchiveTerminalAppointmentsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	defer v.enter()()
	var n int64
	for id, a := range v.db.appointments {
		if a.Status.Terminal() && !a.Archived && a.ScheduledAt.Before(cutoff) {
			a.Archived = true
			v.db.appointments[id] = a
			n++
		}
	}
	return n, nil
}

func (v *memView) treatmentVisits(treatmentID int64) []Appointment {
	var out []Appointment
	for _, a := range v.db.appointments {
		if a.TreatmentID != nil && *a.TreatmentID == treatmentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		vi, vj := 1<<30, 1<<30
		if out[i].VisitNumber != nil {
			vi = *out[i].VisitNumber
		}
		if out[j].VisitNumber != nil {
			vj = *out[j].VisitNumber
		}
		if vi != vj {
			return vi < vj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v *memView) ListTreatmentAppointments(_ context.Context, treatmentID int64) ([]Appointment, error) {
	defer v.enter()()
	return v.treatmentVisits(treatmentID), nil
}

func (v *memView) GetFirstTreatmentAppointment(_ context.Context, treatmentID int64) (*Appointment, error) {
	defer v.enter()()
	visits := v.treatmentVisits(treatmentID)
	if len(visits) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return &visits[0], nil
}

func (v *memView) CancelActiveTreatmentAppointments(_ context.Context, treatmentID int64, note string) (int64, error) {
	defer v.enter()()
	var n int64
	for id, a := range v.db.appointments {
		if a.TreatmentID == nil || *a.TreatmentID != treatmentID || !a.Status.Live() {
			continue
		}
		a.Status = AppointmentCancelled
		a.Notes = appendNote(a.Notes, note)
		v.db.appointments[id] = a
		n++
	}
	return n, nil
}

func (v *memView) TreatmentVisitStats(_ context.Context, treatmentID int64) (int, int, error) {
	defer v.enter()()
	maxVisit, live := 0, 0
	for _, a := range v.treatmentVisits(treatmentID) {
		if a.VisitNumber != nil && *a.VisitNumber > maxVisit {
			maxVisit = *a.VisitNumber
		}
		if a.Status != AppointmentCancelled {
			live++
		}
	}
	return maxVisit, live, nil
}

func (v *memView) InsertTreatment(_ context.Context, t Treatment) (*Treatment, error) {
	defer v.enter()()
	if err := v.fail("InsertTreatment"); err != nil {
		return nil, err
	}
	t.ID = v.db.id()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	v.db.treatments[t.ID] = t
	return &t, nil
}

func (v *memView) GetTreatmentByID(_ context.Context, id int64) (*Treatment, error) {
	defer v.enter()()
	t, ok := v.db.treatments[id]
	if !ok {
		return nil, ErrTreatmentNotFound
	}
	return &t, nil
}

func (v *memView) GetTreatmentForUpdate(ctx context.Context, id int64) (*Treatment, error) {
	return v.GetTreatmentByID(ctx, id)
}

func (v *memView) UpdateTreatment(_ context.Context, t Treatment) (*Treatment, error) {
	defer v.enter()()
	stored, ok := v.db.treatments[t.ID]
	if !ok {
		return nil, ErrTreatmentNotFound
	}
	stored.Status = t.Status
	stored.Notes = t.Notes
	stored.PatientID = t.PatientID
	stored.UpdatedAt = time.Now()
	v.db.treatments[t.ID] = stored
	return &stored, nil
}

func (v *memView) IncrementCompletedVisits(_ context.Context, id int64) (*Treatment, error) {
	defer v.enter()()
	t, ok := v.db.treatments[id]
	if !ok || t.CompletedVisits >= t.TotalVisits {
		return nil, ErrTreatmentFull
	}
	t.CompletedVisits++
	if t.CompletedVisits >= t.TotalVisits {
		t.Status = TreatmentFinished
	}
	v.db.treatments[id] = t
	return &t, nil
}

func (v *memView) UpdateTreatmentPlan(_ context.Context, t Treatment) (*Treatment, error) {
	defer v.enter()()
	stored, ok := v.db.treatments[t.ID]
	if !ok {
		return nil, ErrTreatmentNotFound
	}
	if t.TotalVisits < stored.CompletedVisits {
		return nil, ErrTotalBelowCompleted
	}
	stored.Name = t.Name
	stored.PractitionerID = t.PractitionerID
	stored.StartDate = t.StartDate
	stored.EstimatedEndDate = t.EstimatedEndDate
	stored.TotalVisits = t.TotalVisits
	stored.TotalCost = t.TotalCost
	stored.Notes = t.Notes
	stored.Status = t.Status
	stored.UpdatedAt = time.Now()
	v.db.treatments[t.ID] = stored
	return &stored, nil
}

func (v *memView) ListTreatments(_ context.Context, limit, offset int) ([]TreatmentSummary, error) {
	defer v.enter()()
	out := make([]TreatmentSummary, 0, len(v.db.treatments))
	for _, t := range v.db.treatments {
		ts := TreatmentSummary{Treatment: t}
		var contact Contact
		if t.PatientID != nil {
			contact = v.db.patients[*t.PatientID].Contact
		} else if t.PreRegistrationID != nil {
			contact = v.db.preRegs[*t.PreRegistrationID].Contact
		}
		ts.PatientFirstName = contact.FirstName
		ts.PatientPaternalSurname = contact.PaternalSurname
		ts.PatientMaternalSurname = contact.MaternalSurname
		ts.PractitionerName = v.db.practitioners[t.PractitionerID].Name
		ts.ServiceTitle = v.db.services[t.ServiceID].Title
		ts.ServiceCategory = v.db.services[t.ServiceID].Category
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *memView) InsertPreRegistration(_ context.Context, p PreRegistration) (*PreRegistration, error) {
	defer v.enter()()
	if err := v.fail("InsertPreRegistration"); err != nil {
		return nil, err
	}
	if p.Status == "" {
		p.Status = PreRegistrationPending
	}
	p.ID = v.db.id()
	p.CreatedAt = time.Now()
	v.db.preRegs[p.ID] = p
	return &p, nil
}

func (v *memView) GetPreRegistrationByID(_ context.Context, id int64) (*PreRegistration, error) {
	defer v.enter()()
	p, ok := v.db.preRegs[id]
	if !ok {
		return nil, ErrPreRegistrationNotFound
	}
	return &p, nil
}

func (v *memView) GetPreRegistrationForUpdate(ctx context.Context, id int64) (*PreRegistration, error) {
	return v.GetPreRegistrationByID(ctx, id)
}

func (v *memView) LinkPreRegistration(_ context.Context, id int64, patientID, treatmentID *int64) error {
	defer v.enter()()
	if err := v.fail("LinkPreRegistration"); err != nil {
		return err
	}
	p, ok := v.db.preRegs[id]
	if !ok {
		return ErrPreRegistrationNotFound
	}
	if patientID != nil {
		p.PatientID = patientID
	}
	if treatmentID != nil {
		p.TreatmentID = treatmentID
	}
	v.db.preRegs[id] = p
	return nil
}

func (v *memView) ConfirmPreRegistration(_ context.Context, id int64, appointmentID, patientID *int64) (*PreRegistration, error) {
	defer v.enter()()
	if err := v.fail("ConfirmPreRegistration"); err != nil {
		return nil, err
	}
	p, ok := v.db.preRegs[id]
	if !ok || p.Status != PreRegistrationPending {
		return nil, ErrAlreadyConfirmed
	}
	p.Status = PreRegistrationConfirmed
	if appointmentID != nil {
		p.AppointmentID = appointmentID
	}
	if patientID != nil {
		p.PatientID = patientID
	}
	v.db.preRegs[id] = p
	return &p, nil
}

func (v *memView) ListPendingPreRegistrations(_ context.Context, limit, offset int) ([]PreRegistration, error) {
	defer v.enter()()
	var out []PreRegistration
	for _, p := range v.db.preRegs {
		if p.Status == PreRegistrationPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *memView) InsertEvent(_ context.Context, ev EventLog) error {
	defer v.enter()()
	if err := v.fail("InsertEvent"); err != nil {
		return err
	}
	ev.ID = int64(len(v.db.events) + 1)
	v.db.events = append(v.db.events, ev)
	return nil
}

// test helpers reading state directly

func (d *memDB) appointmentsAt(practitionerID int64, at time.Time) []Appointment {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Appointment
	for _, a := range d.appointments {
		if a.PractitionerID == practitionerID && a.ScheduledAt.Equal(at) {
			out = append(out, a)
		}
	}
	return out
}

func (d *memDB) appointment(id int64) Appointment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.appointments[id]
}

func (d *memDB) treatment(id int64) Treatment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.treatments[id]
}

func (d *memDB) preRegistration(id int64) PreRegistration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.preRegs[id]
}

func (d *memDB) counts() (patients, appointments, treatments, preRegs, events int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.patients), len(d.appointments), len(d.treatments), len(d.preRegs), len(d.events)
}

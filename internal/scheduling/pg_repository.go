package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface shared by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner is a DBTX that can open transactions.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

const uniqueViolation = "23505"

type PgRepository struct {
	pgStore
	pool TxBeginner
}

func NewPgRepository(pool TxBeginner) *PgRepository {
	return &PgRepository{pgStore: pgStore{db: pool}, pool: pool}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgStore{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgStore struct {
	db DBTX
}

const (
	patientColumns = `id, nombre, apellido_paterno, apellido_materno, genero, fecha_nacimiento,
		correo, telefono, tipo_tutor, nombre_tutor, temporal, creado_en`

	serviceColumns = `id, titulo, categoria, precio::float8, duracion_minutos, es_tratamiento,
		citas_estimadas, intervalo_visitas_dias`

	appointmentColumns = `id, paciente_id, nombre, apellido_paterno, apellido_materno, genero,
		fecha_nacimiento, correo, telefono, odontologo_id, servicio_id, fecha_consulta, estado,
		notas, tratamiento_id, numero_cita_tratamiento, archivado, estado_pago,
		visita_contabilizada_en, fecha_solicitud, actualizado_en`

	treatmentColumns = `id, paciente_id, pre_registro_id, servicio_id, odontologo_id,
		nombre_tratamiento, fecha_inicio, fecha_estimada_fin, total_citas_programadas,
		citas_completadas, estado, notas, costo_total::float8, creado_en, actualizado_en`

	preRegistrationColumns = `id, nombre, apellido_paterno, apellido_materno, genero,
		fecha_nacimiento, correo, telefono, paciente_id, servicio_id, odontologo_id,
		fecha_consulta, notas, es_tratamiento, tratamiento_id, cita_id, estado, creado_en`

	// appends $n as a new line of the notes column
	appendNotesSQL = `CASE WHEN %[1]s = '' THEN notas WHEN notas = '' THEN %[1]s ELSE notas || E'\n' || %[1]s END`
)

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Contact.FirstName,
		&p.Contact.PaternalSurname,
		&p.Contact.MaternalSurname,
		&p.Contact.Gender,
		&p.Contact.BirthDate,
		&p.Contact.Email,
		&p.Contact.Phone,
		&p.GuardianType,
		&p.GuardianName,
		&p.Temporary,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanService(row pgx.Row) (*CatalogService, error) {
	var s CatalogService
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.Category,
		&s.Price,
		&s.DurationMinutes,
		&s.IsTreatment,
		&s.EstimatedVisits,
		&s.VisitIntervalDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, payment string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Contact.FirstName,
		&a.Contact.PaternalSurname,
		&a.Contact.MaternalSurname,
		&a.Contact.Gender,
		&a.Contact.BirthDate,
		&a.Contact.Email,
		&a.Contact.Phone,
		&a.PractitionerID,
		&a.ServiceID,
		&a.ScheduledAt,
		&status,
		&a.Notes,
		&a.TreatmentID,
		&a.VisitNumber,
		&a.Archived,
		&payment,
		&a.VisitCountedAt,
		&a.RequestedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = AppointmentStatus(status)
	a.PaymentStatus = PaymentStatus(payment)
	return &a, nil
}

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	var status string

	err := row.Scan(
		&t.ID,
		&t.PatientID,
		&t.PreRegistrationID,
		&t.ServiceID,
		&t.PractitionerID,
		&t.Name,
		&t.StartDate,
		&t.EstimatedEndDate,
		&t.TotalVisits,
		&t.CompletedVisits,
		&status,
		&t.Notes,
		&t.TotalCost,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTreatmentNotFound
		}
		return nil, err
	}

	t.Status = TreatmentStatus(status)
	return &t, nil
}

func scanPreRegistration(row pgx.Row) (*PreRegistration, error) {
	var p PreRegistration
	var status string

	err := row.Scan(
		&p.ID,
		&p.Contact.FirstName,
		&p.Contact.PaternalSurname,
		&p.Contact.MaternalSurname,
		&p.Contact.Gender,
		&p.Contact.BirthDate,
		&p.Contact.Email,
		&p.Contact.Phone,
		&p.PatientID,
		&p.ServiceID,
		&p.PractitionerID,
		&p.ScheduledAt,
		&p.Notes,
		&p.IsTreatment,
		&p.TreatmentID,
		&p.AppointmentID,
		&status,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPreRegistrationNotFound
		}
		return nil, err
	}

	p.Status = PreRegistrationStatus(status)
	return &p, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Interface methods

func (s *pgStore) GetPatientByID(ctx context.Context, id int64) (*Patient, error) {
	row := s.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM pacientes WHERE id = $1`, id)
	return scanPatient(row)
}

func (s *pgStore) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO pacientes (nombre, apellido_paterno, apellido_materno, genero, fecha_nacimiento,
			correo, telefono, tipo_tutor, nombre_tutor, temporal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+patientColumns,
		p.Contact.FirstName, p.Contact.PaternalSurname, p.Contact.MaternalSurname, p.Contact.Gender,
		p.Contact.BirthDate, p.Contact.Email, p.Contact.Phone, p.GuardianType, p.GuardianName, p.Temporary,
	)
	return scanPatient(row)
}

func (s *pgStore) GetPractitionerByID(ctx context.Context, id int64) (*Practitioner, error) {
	var p Practitioner
	err := s.db.QueryRow(ctx, `SELECT id, nombre, puesto, activo FROM empleados WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Position, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *pgStore) GetServiceByID(ctx context.Context, id int64) (*CatalogService, error) {
	row := s.db.QueryRow(ctx, `SELECT `+serviceColumns+` FROM servicios WHERE id = $1`, id)
	return scanService(row)
}

func (s *pgStore) CountActiveAppointmentsAt(ctx context.Context, practitionerID int64, at time.Time, excludeID *int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM citas
		WHERE odontologo_id = $1
		  AND fecha_consulta = $2
		  AND estado IN ('Pendiente', 'Confirmada')
		  AND NOT archivado
		  AND ($3::bigint IS NULL OR id <> $3)
	`, practitionerID, at, excludeID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *pgStore) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	payment := a.PaymentStatus
	if payment == "" {
		payment = PaymentPending
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO citas (paciente_id, nombre, apellido_paterno, apellido_materno, genero,
			fecha_nacimiento, correo, telefono, odontologo_id, servicio_id, fecha_consulta, estado,
			notas, tratamiento_id, numero_cita_tratamiento, estado_pago)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (odontologo_id, fecha_consulta)
			WHERE estado IN ('Pendiente', 'Confirmada') AND NOT archivado
			DO NOTHING
		RETURNING `+appointmentColumns,
		a.PatientID, a.Contact.FirstName, a.Contact.PaternalSurname, a.Contact.MaternalSurname,
		a.Contact.Gender, a.Contact.BirthDate, a.Contact.Email, a.Contact.Phone,
		a.PractitionerID, a.ServiceID, a.ScheduledAt, string(a.Status), a.Notes,
		a.TreatmentID, a.VisitNumber, string(payment),
	)

	created, err := scanAppointment(row)
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		// DO NOTHING fired: another live appointment holds the slot
		return nil, ErrSlotTaken
	case isUniqueViolation(err):
		return nil, ErrSlotTaken
	case err != nil:
		return nil, err
	}
	return created, nil
}

func (s *pgStore) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM citas WHERE id = $1`, id)
	return scanAppointment(row)
}

func (s *pgStore) GetAppointmentForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM citas WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (s *pgStore) UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus, note string) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE citas
		SET estado = $3,
		    notas = `+fmt.Sprintf(appendNotesSQL, "$4::text")+`,
		    actualizado_en = NOW()
		WHERE id = $1 AND estado = $2
		RETURNING `+appointmentColumns,
		id, string(from), string(to), note,
	)

	updated, err := scanAppointment(row)
	if isUniqueViolation(err) {
		return nil, ErrSlotTaken
	}
	return updated, err
}

func (s *pgStore) MarkVisitCounted(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE citas
		SET visita_contabilizada_en = $2, actualizado_en = NOW()
		WHERE id = $1 AND visita_contabilizada_en IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVisitAlreadyCounted
	}
	return nil
}

func (s *pgStore) ArchiveAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE citas
		SET archivado = TRUE, actualizado_en = NOW()
		WHERE id = $1
		RETURNING `+appointmentColumns, id)
	return scanAppointment(row)
}

func (s *pgStore) ArchiveTerminalAppointmentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE citas
		SET archivado = TRUE, actualizado_en = NOW()
		WHERE estado IN ('Completada', 'Cancelada')
		  AND NOT archivado
		  AND fecha_consulta < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) ListTreatmentAppointments(ctx context.Context, treatmentID int64) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM citas
		WHERE tratamiento_id = $1
		ORDER BY numero_cita_tratamiento NULLS LAST, id
	`, treatmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (s *pgStore) GetFirstTreatmentAppointment(ctx context.Context, treatmentID int64) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM citas
		WHERE tratamiento_id = $1
		ORDER BY numero_cita_tratamiento NULLS LAST, id
		LIMIT 1
		FOR UPDATE
	`, treatmentID)
	return scanAppointment(row)
}

func (s *pgStore) CancelActiveTreatmentAppointments(ctx context.Context, treatmentID int64, note string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE citas
		SET estado = 'Cancelada',
		    notas = `+fmt.Sprintf(appendNotesSQL, "$2::text")+`,
		    actualizado_en = NOW()
		WHERE tratamiento_id = $1
		  AND estado IN ('Pendiente', 'Confirmada')
	`, treatmentID, note)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) TreatmentVisitStats(ctx context.Context, treatmentID int64) (int, int, error) {
	var maxVisit, live int
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(numero_cita_tratamiento), 0),
		       COUNT(*) FILTER (WHERE estado <> 'Cancelada')
		FROM citas
		WHERE tratamiento_id = $1
	`, treatmentID).Scan(&maxVisit, &live)
	if err != nil {
		return 0, 0, err
	}
	return maxVisit, live, nil
}

func (s *pgStore) InsertTreatment(ctx context.Context, t Treatment) (*Treatment, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO tratamientos (paciente_id, pre_registro_id, servicio_id, odontologo_id,
			nombre_tratamiento, fecha_inicio, fecha_estimada_fin, total_citas_programadas,
			citas_completadas, estado, notas, costo_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+treatmentColumns,
		t.PatientID, t.PreRegistrationID, t.ServiceID, t.PractitionerID, t.Name,
		t.StartDate, t.EstimatedEndDate, t.TotalVisits, t.CompletedVisits, string(t.Status),
		t.Notes, t.TotalCost,
	)
	return scanTreatment(row)
}

func (s *pgStore) GetTreatmentByID(ctx context.Context, id int64) (*Treatment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+treatmentColumns+` FROM tratamientos WHERE id = $1`, id)
	return scanTreatment(row)
}

func (s *pgStore) GetTreatmentForUpdate(ctx context.Context, id int64) (*Treatment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+treatmentColumns+` FROM tratamientos WHERE id = $1 FOR UPDATE`, id)
	return scanTreatment(row)
}

func (s *pgStore) UpdateTreatment(ctx context.Context, t Treatment) (*Treatment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE tratamientos
		SET estado = $2, notas = $3, paciente_id = $4, actualizado_en = NOW()
		WHERE id = $1
		RETURNING `+treatmentColumns,
		t.ID, string(t.Status), t.Notes, t.PatientID,
	)
	return scanTreatment(row)
}

func (s *pgStore) IncrementCompletedVisits(ctx context.Context, id int64) (*Treatment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE tratamientos
		SET citas_completadas = citas_completadas + 1,
		    estado = CASE
		        WHEN citas_completadas + 1 >= total_citas_programadas THEN 'Finalizado'
		        ELSE estado
		    END,
		    actualizado_en = NOW()
		WHERE id = $1 AND citas_completadas < total_citas_programadas
		RETURNING `+treatmentColumns, id)

	t, err := scanTreatment(row)
	if errors.Is(err, ErrTreatmentNotFound) {
		return nil, ErrTreatmentFull
	}
	return t, err
}

// UpdateTreatmentPlan rewrites the editable plan columns. The counter guard
// lives in the WHERE clause so a lowered total can never drop below the
// visits already completed.
func (s *pgStore) UpdateTreatmentPlan(ctx context.Context, t Treatment) (*Treatment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE tratamientos
		SET nombre_tratamiento = $2,
		    odontologo_id = $3,
		    fecha_inicio = $4,
		    fecha_estimada_fin = $5,
		    total_citas_programadas = $6,
		    costo_total = $7,
		    notas = $8,
		    estado = $9,
		    actualizado_en = NOW()
		WHERE id = $1 AND citas_completadas <= $6
		RETURNING `+treatmentColumns,
		t.ID, t.Name, t.PractitionerID, t.StartDate, t.EstimatedEndDate, t.TotalVisits,
		t.TotalCost, t.Notes, string(t.Status),
	)

	updated, err := scanTreatment(row)
	if errors.Is(err, ErrTreatmentNotFound) {
		return nil, ErrTotalBelowCompleted
	}
	return updated, err
}

func scanTreatmentSummary(row pgx.Row) (*TreatmentSummary, error) {
	var ts TreatmentSummary
	var status string

	err := row.Scan(
		&ts.ID,
		&ts.PatientID,
		&ts.PreRegistrationID,
		&ts.ServiceID,
		&ts.PractitionerID,
		&ts.Name,
		&ts.StartDate,
		&ts.EstimatedEndDate,
		&ts.TotalVisits,
		&ts.CompletedVisits,
		&status,
		&ts.Notes,
		&ts.TotalCost,
		&ts.CreatedAt,
		&ts.UpdatedAt,
		&ts.PatientFirstName,
		&ts.PatientPaternalSurname,
		&ts.PatientMaternalSurname,
		&ts.PractitionerName,
		&ts.ServiceTitle,
		&ts.ServiceCategory,
	)
	if err != nil {
		return nil, err
	}

	ts.Status = TreatmentStatus(status)
	return &ts, nil
}

func (s *pgStore) ListTreatments(ctx context.Context, limit, offset int) ([]TreatmentSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.id, t.paciente_id, t.pre_registro_id, t.servicio_id, t.odontologo_id,
		       t.nombre_tratamiento, t.fecha_inicio, t.fecha_estimada_fin, t.total_citas_programadas,
		       t.citas_completadas, t.estado, t.notas, t.costo_total::float8, t.creado_en, t.actualizado_en,
		       COALESCE(p.nombre, pr.nombre, ''),
		       COALESCE(p.apellido_paterno, pr.apellido_paterno, ''),
		       COALESCE(p.apellido_materno, pr.apellido_materno, ''),
		       COALESCE(e.nombre, ''),
		       COALESCE(sv.titulo, ''),
		       COALESCE(sv.categoria, '')
		FROM tratamientos t
		LEFT JOIN pacientes p ON t.paciente_id = p.id
		LEFT JOIN pre_registro_citas pr ON t.pre_registro_id = pr.id
		LEFT JOIN empleados e ON t.odontologo_id = e.id
		LEFT JOIN servicios sv ON t.servicio_id = sv.id
		ORDER BY t.creado_en DESC, t.id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTreatmentSummary)
}

func (s *pgStore) InsertPreRegistration(ctx context.Context, p PreRegistration) (*PreRegistration, error) {
	status := p.Status
	if status == "" {
		status = PreRegistrationPending
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO pre_registro_citas (nombre, apellido_paterno, apellido_materno, genero,
			fecha_nacimiento, correo, telefono, paciente_id, servicio_id, odontologo_id,
			fecha_consulta, notas, es_tratamiento, tratamiento_id, estado)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+preRegistrationColumns,
		p.Contact.FirstName, p.Contact.PaternalSurname, p.Contact.MaternalSurname, p.Contact.Gender,
		p.Contact.BirthDate, p.Contact.Email, p.Contact.Phone, p.PatientID, p.ServiceID,
		p.PractitionerID, p.ScheduledAt, p.Notes, p.IsTreatment, p.TreatmentID, string(status),
	)
	return scanPreRegistration(row)
}

func (s *pgStore) GetPreRegistrationByID(ctx context.Context, id int64) (*PreRegistration, error) {
	row := s.db.QueryRow(ctx, `SELECT `+preRegistrationColumns+` FROM pre_registro_citas WHERE id = $1`, id)
	return scanPreRegistration(row)
}

func (s *pgStore) GetPreRegistrationForUpdate(ctx context.Context, id int64) (*PreRegistration, error) {
	row := s.db.QueryRow(ctx, `SELECT `+preRegistrationColumns+` FROM pre_registro_citas WHERE id = $1 FOR UPDATE`, id)
	return scanPreRegistration(row)
}

func (s *pgStore) LinkPreRegistration(ctx context.Context, id int64, patientID, treatmentID *int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE pre_registro_citas
		SET paciente_id = COALESCE($2, paciente_id),
		    tratamiento_id = COALESCE($3, tratamiento_id)
		WHERE id = $1
	`, id, patientID, treatmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPreRegistrationNotFound
	}
	return nil
}

func (s *pgStore) ConfirmPreRegistration(ctx context.Context, id int64, appointmentID, patientID *int64) (*PreRegistration, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE pre_registro_citas
		SET estado = 'Confirmada',
		    cita_id = COALESCE($2, cita_id),
		    paciente_id = COALESCE($3, paciente_id)
		WHERE id = $1 AND estado = 'Pendiente'
		RETURNING `+preRegistrationColumns,
		id, appointmentID, patientID,
	)

	p, err := scanPreRegistration(row)
	if errors.Is(err, ErrPreRegistrationNotFound) {
		return nil, ErrAlreadyConfirmed
	}
	return p, err
}

func (s *pgStore) ListPendingPreRegistrations(ctx context.Context, limit, offset int) ([]PreRegistration, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+preRegistrationColumns+`
		FROM pre_registro_citas
		WHERE estado = 'Pendiente'
		ORDER BY fecha_consulta, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPreRegistration)
}

func (s *pgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var payload []byte
	if len(ev.Payload) > 0 {
		payload = ev.Payload
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, entity_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.EventType, ev.EntityType, ev.EntityID, payload, createdAt)
	return err
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/revival365/medassist/internal/auth"
)

// Postgres implements Records and auth.TokenVerifier over the hospital
// database. The caller owns the connection lifecycle.
type Postgres struct {
	DB *sql.DB
}

// Open dials the database and verifies the connection.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error { return p.DB.Close() }

// Verify resolves a bearer token against the users table. Only active users
// authenticate.
func (p *Postgres) Verify(ctx context.Context, token string) (auth.Identity, error) {
	var id auth.Identity
	var fullName sql.NullString
	err := p.DB.QueryRowContext(ctx,
		`SELECT u.id, u.role_id, r.name, COALESCE(u.first_name || ' ' || u.last_name, ''), u.email
         FROM users u
         JOIN roles r ON r.id = u.role_id
         WHERE u.token = $1 AND u.status = 1`,
		token,
	).Scan(&id.UserID, &id.RoleRank, &id.RoleName, &fullName, &id.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("verify token: %w", err)
	}
	id.FullName = strings.TrimSpace(fullName.String)
	return id, nil
}

func (p *Postgres) LatestReading(ctx context.Context, patientID int, readingType string) (Reading, error) {
	var r Reading
	err := p.DB.QueryRowContext(ctx,
		`SELECT patient_id, reading_type, value, unit, taken_at
         FROM medical_readings
         WHERE patient_id = $1 AND reading_type = $2
         ORDER BY taken_at DESC
         LIMIT 1`,
		patientID, readingType,
	).Scan(&r.PatientID, &r.Type, &r.Value, &r.Unit, &r.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Reading{}, ErrNotFound
	}
	if err != nil {
		return Reading{}, fmt.Errorf("latest reading: %w", err)
	}
	return r, nil
}

func (p *Postgres) ReadingsAcrossPatients(ctx context.Context, readingType string) ([]Reading, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT DISTINCT ON (patient_id) patient_id, reading_type, value, unit, taken_at
         FROM medical_readings
         WHERE reading_type = $1
         ORDER BY patient_id, taken_at DESC`,
		readingType,
	)
	if err != nil {
		return nil, fmt.Errorf("readings across patients: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.PatientID, &r.Type, &r.Value, &r.Unit, &r.TakenAt); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrNotFound
	}
	return readings, nil
}

func (p *Postgres) Medications(ctx context.Context, patientID int) ([]Medication, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT patient_id, name, dosage, schedule
         FROM medications
         WHERE patient_id = $1 AND active = true
         ORDER BY name`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("medications: %w", err)
	}
	defer rows.Close()

	var meds []Medication
	for rows.Next() {
		var m Medication
		if err := rows.Scan(&m.PatientID, &m.Name, &m.Dosage, &m.Schedule); err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(meds) == 0 {
		return nil, ErrNotFound
	}
	return meds, nil
}

func (p *Postgres) FoodLog(ctx context.Context, patientID int, since time.Time) ([]FoodEntry, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT patient_id, description, calories, logged_at
         FROM foodlog
         WHERE patient_id = $1 AND logged_at >= $2
         ORDER BY logged_at DESC`,
		patientID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("foodlog: %w", err)
	}
	defer rows.Close()

	var entries []FoodEntry
	for rows.Next() {
		var e FoodEntry
		if err := rows.Scan(&e.PatientID, &e.Description, &e.Calories, &e.LoggedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

func (p *Postgres) Protocols(ctx context.Context, condition string) ([]Protocol, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT condition, name, summary
         FROM protocols
         WHERE condition ILIKE '%' || $1 || '%'
         ORDER BY name`,
		condition,
	)
	if err != nil {
		return nil, fmt.Errorf("protocols: %w", err)
	}
	defer rows.Close()

	var protocols []Protocol
	for rows.Next() {
		var pr Protocol
		if err := rows.Scan(&pr.Condition, &pr.Name, &pr.Summary); err != nil {
			return nil, err
		}
		protocols = append(protocols, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(protocols) == 0 {
		return nil, ErrNotFound
	}
	return protocols, nil
}

func (p *Postgres) Plan(ctx context.Context, patientID int) (Plan, error) {
	var plan Plan
	err := p.DB.QueryRowContext(ctx,
		`SELECT mp.patient_id, pm.name, pm.details
         FROM my_plan mp
         JOIN plan_master pm ON pm.id = mp.plan_id
         WHERE mp.patient_id = $1`,
		patientID,
	).Scan(&plan.PatientID, &plan.Name, &plan.Details)
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	if err != nil {
		return Plan{}, fmt.Errorf("plan: %w", err)
	}
	return plan, nil
}

func (p *Postgres) DoctorForPatient(ctx context.Context, patientID int) (DoctorMapping, error) {
	var m DoctorMapping
	err := p.DB.QueryRowContext(ctx,
		`SELECT pdm.patient_id, pdm.doctor_id, COALESCE(u.first_name || ' ' || u.last_name, '')
         FROM patient_doctor_mapping pdm
         JOIN users u ON u.id = pdm.doctor_id
         WHERE pdm.patient_id = $1`,
		patientID,
	).Scan(&m.PatientID, &m.DoctorID, &m.DoctorName)
	if errors.Is(err, sql.ErrNoRows) {
		return DoctorMapping{}, ErrNotFound
	}
	if err != nil {
		return DoctorMapping{}, fmt.Errorf("doctor mapping: %w", err)
	}
	return m, nil
}

func (p *Postgres) Profile(ctx context.Context, userID int) (Profile, error) {
	var pr Profile
	err := p.DB.QueryRowContext(ctx,
		`SELECT u.id, COALESCE(u.first_name || ' ' || u.last_name, ''), u.email, r.name
         FROM users u
         JOIN roles r ON r.id = u.role_id
         WHERE u.id = $1`,
		userID,
	).Scan(&pr.UserID, &pr.FullName, &pr.Email, &pr.RoleName)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("profile: %w", err)
	}
	return pr, nil
}

func (p *Postgres) Devices(ctx context.Context, patientID int) ([]Device, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT patient_id, name, status, last_seen
         FROM devices
         WHERE patient_id = $1
         ORDER BY name`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.PatientID, &d.Name, &d.Status, &d.LastSeen); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNotFound
	}
	return devices, nil
}

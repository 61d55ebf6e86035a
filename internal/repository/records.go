// Package repository provides the medical record lookups backing the default
// tool catalog. Implementations: Postgres for production, Memory for tests
// and credential-less development.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals an empty lookup. Tools translate it into a "no records
// found" result that re-enters the orchestration loop rather than failing the
// request.
var ErrNotFound = errors.New("no records found")

// Reading is a single timestamped medical measurement, e.g. blood pressure or
// glucose.
type Reading struct {
	PatientID int
	Type      string
	Value     string
	Unit      string
	TakenAt   time.Time
}

// Medication is an active prescription or supplement.
type Medication struct {
	PatientID int
	Name      string
	Dosage    string
	Schedule  string
}

// FoodEntry is one food-log line.
type FoodEntry struct {
	PatientID   int
	Description string
	Calories    int
	LoggedAt    time.Time
}

// Protocol is a treatment protocol or guideline.
type Protocol struct {
	Condition string
	Name      string
	Summary   string
}

// Plan is a patient's assigned care plan.
type Plan struct {
	PatientID int
	Name      string
	Details   string
}

// Profile is the subset of a user row exposed to the assistant.
type Profile struct {
	UserID   int
	FullName string
	Email    string
	RoleName string
}

// Device is a paired medical device and its last-seen status.
type Device struct {
	PatientID int
	Name      string
	Status    string
	LastSeen  time.Time
}

// DoctorMapping links a patient to their assigned doctor.
type DoctorMapping struct {
	PatientID  int
	DoctorID   int
	DoctorName string
}

// Records is the read surface the tool catalog is built on.
type Records interface {
	LatestReading(ctx context.Context, patientID int, readingType string) (Reading, error)
	ReadingsAcrossPatients(ctx context.Context, readingType string) ([]Reading, error)
	Medications(ctx context.Context, patientID int) ([]Medication, error)
	FoodLog(ctx context.Context, patientID int, since time.Time) ([]FoodEntry, error)
	Protocols(ctx context.Context, condition string) ([]Protocol, error)
	Plan(ctx context.Context, patientID int) (Plan, error)
	DoctorForPatient(ctx context.Context, patientID int) (DoctorMapping, error)
	Profile(ctx context.Context, userID int) (Profile, error)
	Devices(ctx context.Context, patientID int) ([]Device, error)
}

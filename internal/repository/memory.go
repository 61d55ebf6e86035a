package repository

import (
	"context"
	"strings"
	"time"
)

// Memory is a seeded in-memory Records implementation used when no database
// is configured, and by tests.
type Memory struct {
	ReadingRows    []Reading
	MedicationRows []Medication
	FoodRows       []FoodEntry
	ProtocolRows   []Protocol
	PlanRows       []Plan
	ProfileRows    []Profile
	DeviceRows     []Device
	MappingRows    []DoctorMapping
}

// NewMemory wraps the given seed data.
func NewMemory(seed Memory) *Memory {
	return &seed
}

// Seed returns a small demo dataset covering the sample patients.
func Seed() Memory {
	now := time.Now().UTC()
	return Memory{
		ReadingRows: []Reading{
			{PatientID: 111, Type: "blood_pressure", Value: "118/76", Unit: "mmHg", TakenAt: now.Add(-2 * time.Hour)},
			{PatientID: 111, Type: "glucose", Value: "96", Unit: "mg/dL", TakenAt: now.Add(-3 * time.Hour)},
			{PatientID: 132, Type: "blood_pressure", Value: "134/88", Unit: "mmHg", TakenAt: now.Add(-1 * time.Hour)},
			{PatientID: 156, Type: "blood_pressure", Value: "121/79", Unit: "mmHg", TakenAt: now.Add(-5 * time.Hour)},
		},
		MedicationRows: []Medication{
			{PatientID: 111, Name: "Metformin", Dosage: "500mg", Schedule: "twice daily"},
			{PatientID: 132, Name: "Lisinopril", Dosage: "10mg", Schedule: "once daily"},
		},
		FoodRows: []FoodEntry{
			{PatientID: 111, Description: "Oatmeal with berries", Calories: 320, LoggedAt: now.Add(-6 * time.Hour)},
		},
		ProtocolRows: []Protocol{
			{Condition: "hypertension", Name: "BP monitoring protocol", Summary: "Twice-daily readings, low-sodium diet."},
		},
		PlanRows: []Plan{
			{PatientID: 111, Name: "Metabolic reset", Details: "12-week supervised program."},
		},
		ProfileRows: []Profile{
			{UserID: 111, FullName: "Eswar Umamaheshwar", RoleName: "Patient"},
			{UserID: 132, FullName: "Rayudu Dhananjaya", RoleName: "Patient"},
			{UserID: 156, FullName: "Rahul Mark", RoleName: "Patient"},
		},
		DeviceRows: []Device{
			{PatientID: 111, Name: "BP cuff", Status: "online", LastSeen: now.Add(-30 * time.Minute)},
		},
		MappingRows: []DoctorMapping{
			{PatientID: 111, DoctorID: 7, DoctorName: "Dr. Anand Rao"},
		},
	}
}

func (m *Memory) LatestReading(_ context.Context, patientID int, readingType string) (Reading, error) {
	var latest *Reading
	for i := range m.ReadingRows {
		r := &m.ReadingRows[i]
		if r.PatientID != patientID || r.Type != readingType {
			continue
		}
		if latest == nil || r.TakenAt.After(latest.TakenAt) {
			latest = r
		}
	}
	if latest == nil {
		return Reading{}, ErrNotFound
	}
	return *latest, nil
}

func (m *Memory) ReadingsAcrossPatients(_ context.Context, readingType string) ([]Reading, error) {
	latest := make(map[int]Reading)
	for _, r := range m.ReadingRows {
		if r.Type != readingType {
			continue
		}
		if prev, ok := latest[r.PatientID]; !ok || r.TakenAt.After(prev.TakenAt) {
			latest[r.PatientID] = r
		}
	}
	if len(latest) == 0 {
		return nil, ErrNotFound
	}
	readings := make([]Reading, 0, len(latest))
	for _, r := range latest {
		readings = append(readings, r)
	}
	return readings, nil
}

func (m *Memory) Medications(_ context.Context, patientID int) ([]Medication, error) {
	var meds []Medication
	for _, med := range m.MedicationRows {
		if med.PatientID == patientID {
			meds = append(meds, med)
		}
	}
	if len(meds) == 0 {
		return nil, ErrNotFound
	}
	return meds, nil
}

func (m *Memory) FoodLog(_ context.Context, patientID int, since time.Time) ([]FoodEntry, error) {
	var entries []FoodEntry
	for _, e := range m.FoodRows {
		if e.PatientID == patientID && !e.LoggedAt.Before(since) {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

func (m *Memory) Protocols(_ context.Context, condition string) ([]Protocol, error) {
	var protocols []Protocol
	for _, p := range m.ProtocolRows {
		if condition == "" || strings.Contains(strings.ToLower(p.Condition), strings.ToLower(condition)) {
			protocols = append(protocols, p)
		}
	}
	if len(protocols) == 0 {
		return nil, ErrNotFound
	}
	return protocols, nil
}

func (m *Memory) Plan(_ context.Context, patientID int) (Plan, error) {
	for _, p := range m.PlanRows {
		if p.PatientID == patientID {
			return p, nil
		}
	}
	return Plan{}, ErrNotFound
}

func (m *Memory) DoctorForPatient(_ context.Context, patientID int) (DoctorMapping, error) {
	for _, mp := range m.MappingRows {
		if mp.PatientID == patientID {
			return mp, nil
		}
	}
	return DoctorMapping{}, ErrNotFound
}

func (m *Memory) Profile(_ context.Context, userID int) (Profile, error) {
	for _, p := range m.ProfileRows {
		if p.UserID == userID {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

func (m *Memory) Devices(_ context.Context, patientID int) ([]Device, error) {
	var devices []Device
	for _, d := range m.DeviceRows {
		if d.PatientID == patientID {
			devices = append(devices, d)
		}
	}
	if len(devices) == 0 {
		return nil, ErrNotFound
	}
	return devices, nil
}

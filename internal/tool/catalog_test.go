package tool_test

import (
	"context"
	"strings"
	"testing"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/repository"
	"github.com/revival365/medassist/internal/tool"
)

func intPtr(v int) *int { return &v }

func patientScope(id int) auth.AccessScope {
	return auth.AccessScope{
		UserID:              id,
		RoleRank:            auth.RolePatient,
		RoleName:            "Patient",
		AuthorizedPatientID: intPtr(id),
	}
}

func staffScope(filter *int) auth.AccessScope {
	return auth.AccessScope{
		UserID:               7,
		RoleRank:             2,
		RoleName:             "Doctor",
		CanAccessAllPatients: true,
		AuthorizedPatientID:  filter,
	}
}

func newCatalog() *tool.Catalog {
	return tool.NewCatalog(repository.NewMemory(repository.Seed()))
}

func TestUnknownToolIsRecoverable(t *testing.T) {
	catalog := newCatalog()

	result := catalog.Execute(context.Background(), "drop_all_tables", nil, staffScope(nil))
	if !result.Failed() {
		t.Fatal("unknown tool must fail")
	}
	if !strings.Contains(result.Error, "unknown tool") {
		t.Fatalf("unexpected error: %s", result.Error)
	}
}

func TestPatientScopeOverridesModelArguments(t *testing.T) {
	catalog := newCatalog()

	// The model asked for another patient's data; the scope must win.
	result := catalog.Execute(context.Background(), tool.NameSpecificValue,
		map[string]any{"readingType": "blood_pressure", "patientId": float64(132)},
		patientScope(111))
	if result.Failed() {
		t.Fatalf("unexpected failure: %s", result.Error)
	}
	if !strings.Contains(result.Output, "patient 111") {
		t.Fatalf("expected own-patient data, got: %s", result.Output)
	}
	if strings.Contains(result.Output, "patient 132") {
		t.Fatalf("leaked another patient's data: %s", result.Output)
	}
}

func TestStaffFilterPassesThrough(t *testing.T) {
	catalog := newCatalog()

	result := catalog.Execute(context.Background(), tool.NameSpecificValue,
		map[string]any{"readingType": "blood_pressure"},
		staffScope(intPtr(132)))
	if result.Failed() {
		t.Fatalf("unexpected failure: %s", result.Error)
	}
	if !strings.Contains(result.Output, "patient 132") {
		t.Fatalf("expected patient 132 data, got: %s", result.Output)
	}
}

func TestMultiPatientRequiresStaff(t *testing.T) {
	catalog := newCatalog()

	result := catalog.Execute(context.Background(), tool.NameMultiPatient,
		map[string]any{"readingType": "blood_pressure"},
		patientScope(111))
	if !result.Failed() {
		t.Fatal("patient scope must not run cross-patient analysis")
	}

	result = catalog.Execute(context.Background(), tool.NameMultiPatient,
		map[string]any{"readingType": "blood_pressure"},
		staffScope(nil))
	if result.Failed() {
		t.Fatalf("staff aggregate failed: %s", result.Error)
	}
	if !strings.Contains(result.Output, "patient 111") || !strings.Contains(result.Output, "patient 132") {
		t.Fatalf("expected multiple patients in output: %s", result.Output)
	}
}

func TestMissingPatientIsNotFoundResult(t *testing.T) {
	catalog := newCatalog()

	// Nonexistent patient surfaces as a "no records" tool output, not an
	// error, so the loop can answer gracefully.
	result := catalog.Execute(context.Background(), tool.NameSpecificValue,
		map[string]any{"readingType": "blood_pressure", "patientId": float64(999)},
		staffScope(nil))
	if result.Failed() {
		t.Fatalf("not-found must not be a tool error: %s", result.Error)
	}
	if !strings.Contains(result.Output, "No blood_pressure readings") {
		t.Fatalf("unexpected output: %s", result.Output)
	}
}

func TestInfosCoverEveryTool(t *testing.T) {
	catalog := newCatalog()

	names := map[string]bool{}
	for _, info := range catalog.Infos() {
		names[info.Name] = true
	}
	for _, want := range []string{
		tool.NameSpecificValue, tool.NameMultiPatient, tool.NameMedications,
		tool.NameFoodlog, tool.NameProtocols, tool.NamePlan,
		tool.NameDoctorMapping, tool.NameUserProfile, tool.NameDeviceStatus,
	} {
		if !names[want] {
			t.Fatalf("tool %s missing from Infos", want)
		}
	}
}

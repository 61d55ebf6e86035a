package auth_test

import (
	"errors"
	"testing"

	"github.com/revival365/medassist/internal/auth"
)

func intPtr(v int) *int { return &v }

func TestDeriveScopePatient(t *testing.T) {
	caller := auth.Identity{UserID: 111, RoleRank: auth.RolePatient, RoleName: "Patient"}

	tests := []struct {
		name      string
		requested *int
		wantErr   bool
	}{
		{name: "no filter", requested: nil},
		{name: "own id", requested: intPtr(111)},
		{name: "other patient", requested: intPtr(132), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scope, err := auth.DeriveScope(caller, tc.requested)
			if tc.wantErr {
				if !errors.Is(err, auth.ErrCrossPatientAccess) {
					t.Fatalf("expected ErrCrossPatientAccess, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DeriveScope err: %v", err)
			}
			if scope.CanAccessAllPatients {
				t.Fatal("patient scope must not allow cross-patient access")
			}
			if scope.AuthorizedPatientID == nil || *scope.AuthorizedPatientID != 111 {
				t.Fatalf("patient scope must pin the caller's own id, got %v", scope.AuthorizedPatientID)
			}
		})
	}
}

func TestDeriveScopeStaff(t *testing.T) {
	caller := auth.Identity{UserID: 7, RoleRank: 2, RoleName: "Doctor"}

	scope, err := auth.DeriveScope(caller, intPtr(132))
	if err != nil {
		t.Fatalf("DeriveScope err: %v", err)
	}
	if !scope.CanAccessAllPatients {
		t.Fatal("staff scope must allow cross-patient access")
	}
	if scope.AuthorizedPatientID == nil || *scope.AuthorizedPatientID != 132 {
		t.Fatalf("staff filter must pass through, got %v", scope.AuthorizedPatientID)
	}

	aggregate, err := auth.DeriveScope(caller, nil)
	if err != nil {
		t.Fatalf("DeriveScope err: %v", err)
	}
	if aggregate.AuthorizedPatientID != nil {
		t.Fatal("absent staff filter must stay absent (aggregate query)")
	}
}

func TestDeriveScopeNeverTrustsClientValue(t *testing.T) {
	caller := auth.Identity{UserID: 156, RoleRank: auth.RolePatient, RoleName: "Patient"}

	scope, err := auth.DeriveScope(caller, intPtr(156))
	if err != nil {
		t.Fatalf("DeriveScope err: %v", err)
	}

	// Mutating the request-side value after derivation must not move the scope.
	if scope.AuthorizedPatientID == nil || *scope.AuthorizedPatientID != 156 {
		t.Fatalf("unexpected authorized patient id: %v", scope.AuthorizedPatientID)
	}
}

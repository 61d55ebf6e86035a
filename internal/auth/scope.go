package auth

import "errors"

// ErrCrossPatientAccess is returned when a patient-role caller asks for a
// patient identifier other than their own.
var ErrCrossPatientAccess = errors.New("patients can only access their own medical records")

// Role ranks as delivered by the authentication layer. Rank 1 is a patient;
// anything above it is medical staff with cross-patient access.
const (
	RolePatient = 1
)

// Identity is the authenticated caller as resolved from the bearer token.
type Identity struct {
	UserID   int
	RoleRank int
	RoleName string
	FullName string
	Email    string
}

// IsPatient reports whether the caller holds the patient role.
func (id Identity) IsPatient() bool {
	return id.RoleRank == RolePatient
}

// AccessScope bounds which patient's data a query may touch. It is derived
// server-side and never overridable by client-supplied values.
type AccessScope struct {
	UserID               int
	RoleRank             int
	RoleName             string
	CanAccessAllPatients bool

	// AuthorizedPatientID pins the scope to a single patient. For patients it
	// is always the caller's own identifier. For staff it carries the
	// requested filter and is nil for aggregate queries.
	AuthorizedPatientID *int
}

// DeriveScope computes the caller's effective data-access scope. It must run
// before any tool is invoked and before the query touches session history, so
// a rejected request never pollutes memory. Pure, no I/O.
func DeriveScope(caller Identity, requestedPatientID *int) (AccessScope, error) {
	if caller.IsPatient() {
		if requestedPatientID != nil && *requestedPatientID != caller.UserID {
			return AccessScope{}, ErrCrossPatientAccess
		}
		own := caller.UserID
		return AccessScope{
			UserID:               caller.UserID,
			RoleRank:             caller.RoleRank,
			RoleName:             caller.RoleName,
			CanAccessAllPatients: false,
			AuthorizedPatientID:  &own,
		}, nil
	}

	scope := AccessScope{
		UserID:               caller.UserID,
		RoleRank:             caller.RoleRank,
		RoleName:             caller.RoleName,
		CanAccessAllPatients: true,
	}
	if requestedPatientID != nil {
		id := *requestedPatientID
		scope.AuthorizedPatientID = &id
	}
	return scope, nil
}

// Package tool holds the closed catalog of data-lookup capabilities the
// agent may invoke. Tool selection is dynamic (the model picks a name at
// runtime) but the set itself is enumerated here; unknown names come back as
// recoverable errors, never a crash.
package tool

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/revival365/medassist/internal/auth"
)

// Tool names as advertised to the language model.
const (
	NameSpecificValue = "get_specific_medical_value"
	NameMultiPatient  = "analyze_multiple_patients"
	NameMedications   = "get_medications"
	NameFoodlog       = "get_foodlog"
	NameProtocols     = "get_protocols"
	NamePlan          = "get_my_plan"
	NameDoctorMapping = "get_doctor_patient_info"
	NameUserProfile   = "get_user_profile"
	NameDeviceStatus  = "check_device_status"
)

// Result is the outcome of a single tool invocation. It is ephemeral: fed
// back into the orchestration loop as context and then discarded.
type Result struct {
	Tool    string
	Output  string
	Error   string
	Elapsed time.Duration
}

// Failed reports whether the invocation produced an error instead of output.
func (r Result) Failed() bool { return r.Error != "" }

// Registry executes named tools with parameters already bounded by the
// caller's authorization scope.
type Registry interface {
	Infos() []*schema.ToolInfo
	Execute(ctx context.Context, name string, args map[string]any, scope auth.AccessScope) Result
}

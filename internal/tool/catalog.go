package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/repository"
)

// Catalog is the default Registry over the medical records repository.
type Catalog struct {
	records repository.Records
}

// NewCatalog builds the catalog.
func NewCatalog(records repository.Records) *Catalog {
	return &Catalog{records: records}
}

// Infos describes every tool for model binding.
func (c *Catalog) Infos() []*schema.ToolInfo {
	patientParam := &schema.ParameterInfo{
		Type: schema.Integer,
		Desc: "Patient identifier. Omit to use the caller's own patient context.",
	}

	return []*schema.ToolInfo{
		{
			Name: NameSpecificValue,
			Desc: "Get the latest value of a specific medical reading such as blood_pressure, glucose, spo2, hrv, body_temperature or sleep.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"readingType": {Type: schema.String, Desc: "Reading type, e.g. blood_pressure", Required: true},
				"patientId":   patientParam,
			}),
		},
		{
			Name: NameMultiPatient,
			Desc: "Compare the latest value of one reading type across all patients. Medical staff only.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"readingType": {Type: schema.String, Desc: "Reading type to compare", Required: true},
			}),
		},
		{
			Name: NameMedications,
			Desc: "List a patient's active medications and supplements.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"patientId": patientParam,
			}),
		},
		{
			Name: NameFoodlog,
			Desc: "List a patient's food log entries for the last N days (default 1).",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"patientId": patientParam,
				"days":      {Type: schema.Integer, Desc: "How many days back to look"},
			}),
		},
		{
			Name: NameProtocols,
			Desc: "Look up treatment protocols and guidelines by condition.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"condition": {Type: schema.String, Desc: "Condition to search protocols for", Required: true},
			}),
		},
		{
			Name: NamePlan,
			Desc: "Get a patient's assigned care plan.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"patientId": patientParam,
			}),
		},
		{
			Name: NameDoctorMapping,
			Desc: "Get the doctor assigned to a patient.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"patientId": patientParam,
			}),
		},
		{
			Name: NameUserProfile,
			Desc: "Get a user's profile information.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"patientId": patientParam,
			}),
		},
		{
			Name: NameDeviceStatus,
			Desc: "Check the status of a patient's paired medical devices.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"patientId": patientParam,
			}),
		},
	}
}

// Execute runs a named tool. Patient-role scopes always operate on the
// caller's own records regardless of the arguments the model produced.
func (c *Catalog) Execute(ctx context.Context, name string, args map[string]any, scope auth.AccessScope) Result {
	start := time.Now()
	output, err := c.dispatch(ctx, name, args, scope)
	result := Result{Tool: name, Elapsed: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Output = output
	return result
}

func (c *Catalog) dispatch(ctx context.Context, name string, args map[string]any, scope auth.AccessScope) (string, error) {
	switch name {
	case NameSpecificValue:
		return c.specificValue(ctx, args, scope)
	case NameMultiPatient:
		return c.multiPatient(ctx, args, scope)
	case NameMedications:
		return c.medications(ctx, args, scope)
	case NameFoodlog:
		return c.foodlog(ctx, args, scope)
	case NameProtocols:
		return c.protocols(ctx, args)
	case NamePlan:
		return c.plan(ctx, args, scope)
	case NameDoctorMapping:
		return c.doctorMapping(ctx, args, scope)
	case NameUserProfile:
		return c.userProfile(ctx, args, scope)
	case NameDeviceStatus:
		return c.deviceStatus(ctx, args, scope)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func (c *Catalog) specificValue(ctx context.Context, args map[string]any, scope auth.AccessScope) (string, error) {
	readingType, err := stringArg(args, "readingType")
	if err != nil {
		return "", err
	}
	patientID, err := resolvePatientID(args, scope)
	if err != nil {
		return "", err
	}

	reading, err := c.records.LatestReading(ctx, patientID, readingType)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No %s readings found for patient %d.", readingType, patientID), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Latest %s for patient %d: %s %s (taken %s).",
		reading.Type, reading.PatientID, reading.Value, reading.Unit,
		reading.TakenAt.Format(time.RFC3339)), nil
}

func (c *Catalog) multiPatient(ctx context.Context, args map[string]any, scope auth.AccessScope) (string, error) {
	if !scope.CanAccessAllPatients {
		return "", errors.New("cross-patient analysis requires medical staff access")
	}
	readingType, err := stringArg(args, "readingType")
	if err != nil {
		return "", err
	}

	readings, err := c.records.ReadingsAcrossPatients(ctx, readingType)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No %s readings found for any patient.", readingType), nil
	}
	if err != nil {
		return "", err
	}

	sort.Slice(readings, func(i, j int) bool { return readings[i].PatientID < readings[j].PatientID })
	var b strings.Builder
	fmt.Fprintf(&b, "Latest %s per patient:\n", readingType)
	for _, r := range readings {
		fmt.Fprintf(&b, "- patient %d: %s %s (%s)\n", r.PatientID, r.Value, r.Unit, r.TakenAt.Format(time.RFC3339))
	}
	return b.String(), nil
}

func (c *Catalog) medications(ctx context.Context, args map[string]any, scope auth.AccessScope) (string, error) {
	patientID, err := resolvePatientID(args, scope)
	if err != nil {
		return "", err
	}

	meds, err := c.records.Medications(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No active medications found for patient %d.", patientID), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active medications for patient %d:\n", patientID)
	for _, m := range meds {
		fmt.Fprintf(&b, "- %s %s, %s\n", m.Name, m.Dosage, m.Schedule)
	}
	return b.String(), nil
}

func (c *Catalog) foodlog(ctx context.Context, args map[string]any, scope auth.AccessScope) (string, error) {
	patientID, err := resolvePatientID(args, scope)
	if err != nil {
		return "", err
	}
	days := intArgOrDefault(args, "days", 1)
	if days < 1 {
		days = 1
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	entries, err := c.records.FoodLog(ctx, patientID, since)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No food log entries in the last %d day(s) for patient %d.", days, patientID), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Food log for patient %d (last %d day(s)):\n", patientID, days)
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s (%d kcal) at %s\n", e.Description, e.Calories, e.LoggedAt.Format(time.RFC3339))
	}
	return b.String(), nil
}

func (c *Catalog) protocols(ctx context.Context, args map[string]any) (string, error) {
	condition, err := stringArg(args, "condition")
	if err != nil {
		return "", err
	}

	protocols, err := c.records.Protocols(ctx, condition)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No protocols found for %q.", condition), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Protocols for %q:\n", condition)
	for _, p := range protocols {
		fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Summary)
	}
	return b.String(), nil
}

func (c *Catalog) plan(ctx context.Context, args map[string]any, scope auth.AccessScope) (string, error) {
	patientID, err := resolvePatientID(args, scope)
	if err != nil {
		return "", err
	}

	plan, err := c.records.Plan(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No plan assigned to patient %d.", patientID), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Plan for patient %d: %s. %s", plan.PatientID, plan.Name, plan.Details), nil
}

func (c *Catalog) doctorMapping(ctx context.Context, args map[string]any, scope auth.AccessScope) (string, error) {
	patientID, err := resolvePatientID(args, scope)
	if err != nil {
		return "", err
	}

	mapping, err := c.records.DoctorForPatient(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No doctor assigned to patient %d.", patientID), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Patient %d is assigned to %s (doctor id %d).", mapping.PatientID, mapping.DoctorName, mapping.DoctorID), nil
}

func (c *Catalog) userProfile(ctx context.Context, args map[string]any, scope auth.AccessScope) (string, error) {
	patientID, err := resolvePatientID(args, scope)
	if err != nil {
		return "", err
	}

	profile, err := c.records.Profile(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No profile found for user %d.", patientID), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("User %d: %s (%s).", profile.UserID, profile.FullName, profile.RoleName), nil
}

func (c *Catalog) deviceStatus(ctx context.Context, args map[string]any, scope auth.AccessScope) (string, error) {
	patientID, err := resolvePatientID(args, scope)
	if err != nil {
		return "", err
	}

	devices, err := c.records.Devices(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No devices paired for patient %d.", patientID), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Devices for patient %d:\n", patientID)
	for _, d := range devices {
		fmt.Fprintf(&b, "- %s: %s (last seen %s)\n", d.Name, d.Status, d.LastSeen.Format(time.RFC3339))
	}
	return b.String(), nil
}

// resolvePatientID picks the patient a tool call operates on. A patient-role
// scope always wins over model-produced arguments; staff calls use the
// argument, then the request-level filter.
func resolvePatientID(args map[string]any, scope auth.AccessScope) (int, error) {
	if !scope.CanAccessAllPatients {
		if scope.AuthorizedPatientID == nil {
			return 0, errors.New("no authorized patient in scope")
		}
		return *scope.AuthorizedPatientID, nil
	}
	if id, ok := intArg(args, "patientId"); ok {
		return id, nil
	}
	if scope.AuthorizedPatientID != nil {
		return *scope.AuthorizedPatientID, nil
	}
	return 0, errors.New("patientId is required for this query")
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return strings.TrimSpace(s), nil
}

// intArg tolerates the numeric shapes JSON decoding produces.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func intArgOrDefault(args map[string]any, key string, def int) int {
	if v, ok := intArg(args, key); ok {
		return v
	}
	return def
}

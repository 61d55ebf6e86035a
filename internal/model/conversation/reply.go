package conversation

// ScopeSnapshot is the externally visible view of the authorization scope a
// request was resolved under.
type ScopeSnapshot struct {
	UserID               int    `json:"user_id"`
	RoleName             string `json:"role_name"`
	CanAccessAllPatients bool   `json:"can_access_all_patients"`
	AuthorizedPatientID  *int   `json:"authorized_patient_id"`
}

// QueryReply is the response body shared by the text and voice query
// endpoints. Voice replies additionally carry the transcript.
type QueryReply struct {
	Response    string         `json:"response"`
	SessionID   string         `json:"sessionId"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	UserContext *ScopeSnapshot `json:"user_context,omitempty"`
	Transcript  string         `json:"transcript,omitempty"`
}

package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/revival365/medassist/internal/auth"
	"github.com/revival365/medassist/internal/service/agent"
	"github.com/revival365/medassist/internal/service/session"
	"github.com/revival365/medassist/internal/service/voice"
)

type runnerCall struct {
	sessionID string
	utterance string
	scope     auth.AccessScope
}

type fakeRunner struct {
	answer string
	err    error
	calls  []runnerCall
}

func (f *fakeRunner) Run(_ context.Context, sessionID, utterance string, scope auth.AccessScope) (agent.Outcome, error) {
	f.calls = append(f.calls, runnerCall{sessionID: sessionID, utterance: utterance, scope: scope})
	if f.err != nil {
		return agent.Outcome{}, f.err
	}
	return agent.Outcome{Answer: f.answer, SessionID: sessionID, ConversationLen: 2}, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte, string, string) (string, error) {
	return f.text, f.err
}

func testVerifier() auth.StaticVerifier {
	return auth.StaticVerifier{
		"patient-token": {UserID: 111, RoleRank: 1, RoleName: "Patient"},
		"staff-token":   {UserID: 7, RoleRank: 2, RoleName: "Doctor"},
	}
}

func newTestServer(t *testing.T, runner Runner, transcriber voice.Transcriber) (*httptest.Server, *session.Store) {
	t.Helper()
	store := session.NewStore(session.Config{})
	verifier := testVerifier()
	h := New(store, runner, transcriber, verifier, voice.Config{})
	srv := httptest.NewServer(NewRouter(h, verifier))
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url, token string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestQueryRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{answer: "ok"}, nil)

	resp := postJSON(t, srv.URL+"/api/chat/query", "", map[string]any{"query": "how am I doing"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["detail"] != "Token is required" {
		t.Fatalf("unexpected detail: %v", body["detail"])
	}
}

func TestQueryRejectsUnknownToken(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{answer: "ok"}, nil)

	resp := postJSON(t, srv.URL+"/api/chat/query", "bogus", map[string]any{"query": "hello"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["detail"] != "Invalid token or user not found" {
		t.Fatalf("unexpected detail: %v", body["detail"])
	}
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{answer: "ok"}, nil)

	resp := postJSON(t, srv.URL+"/api/chat/query", "patient-token", map[string]any{"query": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["detail"] != "Query cannot be empty" {
		t.Fatalf("unexpected detail: %v", body["detail"])
	}
}

func TestQueryRejectsCrossPatientAccess(t *testing.T) {
	runner := &fakeRunner{answer: "ok"}
	srv, _ := newTestServer(t, runner, nil)

	resp := postJSON(t, srv.URL+"/api/chat/query", "patient-token", map[string]any{
		"query":      "show me their sugar readings",
		"patient_id": 132,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if len(runner.calls) != 0 {
		t.Fatal("a rejected request must never reach orchestration")
	}
}

func TestQueryMintsSessionAndReportsScope(t *testing.T) {
	runner := &fakeRunner{answer: "your sugar looks stable"}
	srv, store := newTestServer(t, runner, nil)

	resp := postJSON(t, srv.URL+"/api/chat/query", "patient-token", map[string]any{"query": "how is my sugar"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	sessionID, _ := body["sessionId"].(string)
	if sessionID == "" {
		t.Fatal("reply must carry the session id")
	}
	if store.Count() != 1 {
		t.Fatalf("expected one live session, got %d", store.Count())
	}

	userContext, ok := body["user_context"].(map[string]any)
	if !ok {
		t.Fatal("reply must carry the resolved user context")
	}
	if userContext["can_access_all_patients"] != false {
		t.Fatal("patient scope must not allow cross-patient access")
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected one orchestration, got %d", len(runner.calls))
	}
	call := runner.calls[0]
	if call.scope.AuthorizedPatientID == nil || *call.scope.AuthorizedPatientID != 111 {
		t.Fatalf("patient scope must pin their own id, got %v", call.scope.AuthorizedPatientID)
	}
}

func TestQueryReusesKnownSession(t *testing.T) {
	runner := &fakeRunner{answer: "ok"}
	srv, store := newTestServer(t, runner, nil)

	first := decodeBody(t, postJSON(t, srv.URL+"/api/chat/query", "patient-token", map[string]any{"query": "first"}))
	sessionID := first["sessionId"].(string)

	resp := postJSON(t, srv.URL+"/api/chat/query", "patient-token", map[string]any{
		"query":     "second",
		"sessionId": sessionID,
	})
	body := decodeBody(t, resp)
	if body["sessionId"] != sessionID {
		t.Fatalf("known session id must be reused, got %v", body["sessionId"])
	}
	if store.Count() != 1 {
		t.Fatalf("expected one live session, got %d", store.Count())
	}
}

func TestQueryStaffPatientFilter(t *testing.T) {
	runner := &fakeRunner{answer: "ok"}
	srv, _ := newTestServer(t, runner, nil)

	resp := postJSON(t, srv.URL+"/api/chat/query", "staff-token", map[string]any{
		"query":      "latest BP for this patient",
		"patient_id": 132,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	call := runner.calls[0]
	if !call.scope.CanAccessAllPatients {
		t.Fatal("staff scope must allow cross-patient access")
	}
	if call.scope.AuthorizedPatientID == nil || *call.scope.AuthorizedPatientID != 132 {
		t.Fatalf("staff patient filter must pass through, got %v", call.scope.AuthorizedPatientID)
	}
}

func TestQueryTimeoutMapsTo500(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{err: agent.ErrRunTimeout}, nil)

	resp := postJSON(t, srv.URL+"/api/chat/query", "patient-token", map[string]any{"query": "slow one"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["detail"] != "Query timed out" {
		t.Fatalf("unexpected detail: %v", body["detail"])
	}
}

func TestVoiceRejectsShortAudio(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{answer: "ok"}, &fakeTranscriber{text: "hello"})

	short := base64.StdEncoding.EncodeToString(make([]byte, 100))
	resp := postJSON(t, srv.URL+"/api/chat/voice", "patient-token", map[string]any{"audioBase64": short})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); !strings.Contains(body["detail"].(string), "too short") {
		t.Fatalf("unexpected detail: %v", body["detail"])
	}
}

func TestVoiceAnswersTranscript(t *testing.T) {
	runner := &fakeRunner{answer: "your last reading was 118"}
	srv, _ := newTestServer(t, runner, &fakeTranscriber{text: "what was my last sugar reading"})

	audio := "data:audio/webm;base64," + base64.StdEncoding.EncodeToString(make([]byte, 4000))
	resp := postJSON(t, srv.URL+"/api/chat/voice", "patient-token", map[string]any{
		"audioBase64": audio,
		"language":    "regional",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	if body["transcript"] != "what was my last sugar reading" {
		t.Fatalf("reply must carry the transcript, got %v", body["transcript"])
	}
	if len(runner.calls) != 1 || runner.calls[0].utterance != "what was my last sugar reading" {
		t.Fatal("the transcript must be answered like a text query")
	}

	metadata := body["metadata"].(map[string]any)
	if metadata["language_mode"] != "regional" {
		t.Fatalf("unexpected language mode: %v", metadata["language_mode"])
	}
}

func TestVoiceUnavailableWithoutTranscriber(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{answer: "ok"}, nil)

	audio := base64.StdEncoding.EncodeToString(make([]byte, 4000))
	resp := postJSON(t, srv.URL+"/api/chat/voice", "patient-token", map[string]any{"audioBase64": audio})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthIsPublic(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{answer: "ok"}, nil)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["status"] != "healthy" {
		t.Fatalf("unexpected status: %v", body["status"])
	}
}

func TestSessionListAndDelete(t *testing.T) {
	runner := &fakeRunner{answer: "ok"}
	srv, _ := newTestServer(t, runner, nil)

	created := decodeBody(t, postJSON(t, srv.URL+"/api/chat/query", "patient-token", map[string]any{"query": "hi"}))
	sessionID := created["sessionId"].(string)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/chat/sessions", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	body := decodeBody(t, resp)
	if body["active_sessions"].(float64) != 1 {
		t.Fatalf("expected one active session, got %v", body["active_sessions"])
	}

	del, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/chat/sessions/"+sessionID, nil)
	del.Header.Set("Authorization", "Bearer staff-token")
	resp, err = http.DefaultClient.Do(del)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	del2, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/chat/sessions/"+sessionID, nil)
	del2.Header.Set("Authorization", "Bearer staff-token")
	resp, err = http.DefaultClient.Do(del2)
	if err != nil {
		t.Fatalf("second delete request: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a cleared session, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/pathway/internal/catalog"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

type cannedResponse struct {
	status int
	body   string
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	canned := make(map[string]cannedResponse, len(responses))
	for k, v := range responses {
		canned[k] = cannedResponse{status: http.StatusOK, body: v}
	}
	return newTestServerWithStatus(t, canned)
}

func newTestServerWithStatus(t *testing.T, responses map[string]cannedResponse) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.status)
			w.Write([]byte(resp.body))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client(t *testing.T, token string) *apiClient {
	t.Helper()
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      token,
		tokenPath:  filepath.Join(t.TempDir(), "session.token"),
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAuthenticate_SavesToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /auth/signin": `{"token":"tok-123","expires_at":"2030-01-01T00:00:00Z","user":{"id":"u1","email":"asha@example.com"}}`,
	})
	client := ts.client(t, "")

	u, err := authenticate(ctx, client, "/auth/signin", "asha@example.com", "secret1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Email != "asha@example.com" {
		t.Errorf("email = %q", u.Email)
	}

	r := ts.requests[0]
	if r.Auth != "" {
		t.Errorf("signin sent auth header %q", r.Auth)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["email"] != "asha@example.com" || body["password"] != "secret1" {
		t.Errorf("body = %v", body)
	}

	saved, err := readToken(client.tokenPath)
	if err != nil || saved != "tok-123" {
		t.Errorf("saved token = %q, %v", saved, err)
	}
	if client.token != "tok-123" {
		t.Errorf("client token = %q", client.token)
	}
}

func TestAuthenticate_ServerError(t *testing.T) {
	ts := newTestServerWithStatus(t, map[string]cannedResponse{
		"POST /auth/signin": {
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Invalid email or password.","type":"authentication_error"}}`,
		},
	})
	client := ts.client(t, "")

	_, err := authenticate(ctx, client, "/auth/signin", "asha@example.com", "wrong12")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Invalid email or password.") {
		t.Errorf("error = %q, want the server message", err.Error())
	}
	if _, statErr := os.Stat(client.tokenPath); !os.IsNotExist(statErr) {
		t.Error("token file written after failed sign-in")
	}
}

func TestSignOut_ClearsToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /auth/signout": `{"status":"signed_out"}`,
	})
	client := ts.client(t, "")
	if err := client.saveToken("tok-123"); err != nil {
		t.Fatalf("saveToken: %v", err)
	}

	if err := signOut(ctx, client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Auth != "Bearer tok-123" {
		t.Errorf("auth = %q, want Bearer tok-123", ts.requests[0].Auth)
	}
	if saved, _ := readToken(client.tokenPath); saved != "" {
		t.Errorf("token still saved: %q", saved)
	}

	if err := signOut(ctx, client); err == nil {
		t.Error("expected error signing out without a token")
	}
}

func TestSignOut_RejectedTokenStillCleared(t *testing.T) {
	ts := newTestServerWithStatus(t, map[string]cannedResponse{
		"POST /auth/signout": {status: http.StatusUnauthorized, body: `{"error":{"message":"invalid session token","type":"authentication_error"}}`},
	})
	client := ts.client(t, "")
	client.saveToken("stale")

	if err := signOut(ctx, client); err == nil {
		t.Error("expected the server error to be reported")
	}
	if saved, _ := readToken(client.tokenPath); saved != "" {
		t.Errorf("token still saved: %q", saved)
	}
}

func TestAnswer(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /quiz/answers/q1": `{"answers":{"q1":"o2"},"submitted":false,"recommendation":[]}`,
	})
	client := ts.client(t, "tok")

	q, err := answer(ctx, client, "q1", "o2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Answers["q1"] != "o2" {
		t.Errorf("answers = %v", q.Answers)
	}

	r := ts.requests[0]
	if r.Method != http.MethodPut || r.Path != "/quiz/answers/q1" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.Auth != "Bearer tok" {
		t.Errorf("auth = %q", r.Auth)
	}
	if r.Body != `{"option":"o2"}` {
		t.Errorf("body = %s", r.Body)
	}
}

func TestSubmit(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /quiz/submit": `{"recommendation":["bsc","btech"],"streams":[{"id":"bsc","title":"Science"},{"id":"btech","title":"Engineering"}]}`,
	})

	streams, err := submit(ctx, ts.client(t, "tok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 2 || streams[0].ID != "bsc" {
		t.Errorf("streams = %+v", streams)
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := ts.client(t, "").get(ctx, "/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v any
	err = decodeJSON(resp, &v)
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v", err)
	}
}

func TestReadToken_Missing(t *testing.T) {
	token, err := readToken(filepath.Join(t.TempDir(), "none"))
	if err != nil || token != "" {
		t.Errorf("readToken(missing) = %q, %v", token, err)
	}
}

func TestPrintStreams(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	var buf bytes.Buffer
	printStreams(&buf, []catalog.Category{
		{ID: "bsc", Title: "Science", Description: "Labs and research"},
		{ID: "bba", Title: "Management"},
	})
	want := "1. Science (bsc)\n   Labs and research\n2. Management (bba)\n"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestPrintQuestions(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	var buf bytes.Buffer
	printQuestions(&buf, catalog.Default().Questions[:1])
	out := buf.String()
	if !strings.HasPrefix(out, "q1 ") || !strings.Contains(out, "    o1  ") {
		t.Errorf("output = %q", out)
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]string{
		"debug": "DEBUG",
		"warn":  "WARN",
		"error": "ERROR",
		"info":  "INFO",
		"bogus": "INFO",
	}
	for in, want := range tests {
		if got := logLevel(in).String(); got != want {
			t.Errorf("logLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCommands_ArgValidation(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"quiz", "answer", "q1"}, "accepts 2 arg(s)"},
		{[]string{"profile", "set", "name"}, "accepts 2 arg(s)"},
		{[]string{"streams", "show"}, "accepts 1 arg(s)"},
		{[]string{"auth", "signin", "--password", "x"}, "required flag(s)"},
	}
	for _, tt := range tests {
		rootCmd.SetArgs(tt.args)
		err := rootCmd.Execute()
		if err == nil {
			t.Errorf("%v: expected error", tt.args)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%v: error = %q, want it to contain %q", tt.args, err.Error(), tt.want)
		}
	}
}

func TestStatusOutput(t *testing.T) {
	noColor = true
	var buf bytes.Buffer
	statusOut = &buf
	defer func() {
		noColor = false
		statusOut = os.Stderr
	}()

	printSuccess("Set %s = %s", "name", "Asha")
	printStatus("Server", "running on port %d", 4100)
	want := "✓ Set name = Asha\n  Server: running on port 4100\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

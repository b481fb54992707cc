package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/pathway/internal/catalog"
	"github.com/kalambet/pathway/internal/profile"
)

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("expected content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func mcpDeps(a *testApp) MCPDeps {
	return MCPDeps{
		Catalog:      a.deps.Catalog,
		Session:      a.deps.Session,
		Profiles:     a.deps.Profiles,
		Quiz:         a.deps.Quiz,
		AwaitTimeout: a.deps.AwaitTimeout,
	}
}

func (a *testApp) signUpDirect(t *testing.T, email string) {
	t.Helper()
	if _, err := a.deps.Identity.SignUp(context.Background(), email, "secret1"); err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
}

func TestMCP_NotSignedIn(t *testing.T) {
	deps := mcpDeps(setupApp(t))

	result, err := mcpGetProfile(deps)(context.Background(), makeCallToolRequest("get_profile", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(resultText(t, result), "nobody is signed in") {
		t.Errorf("get_profile without a user = %+v", result)
	}

	if _, err := mcpResourceProfile(deps)(context.Background(), makeReadResourceRequest("user://profile")); err == nil {
		t.Error("expected resource read to fail without a user")
	}
}

func TestMCP_GetProfile(t *testing.T) {
	a := setupApp(t)
	deps := mcpDeps(a)
	a.signUpDirect(t, "asha@example.com")

	result, err := mcpGetProfile(deps)(context.Background(), makeCallToolRequest("get_profile", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("get_profile failed: %s", resultText(t, result))
	}
	var p profile.Profile
	if err := json.Unmarshal([]byte(resultText(t, result)), &p); err != nil {
		t.Fatalf("decoding profile: %v", err)
	}
	if p.Name != "asha@example.com" || p.Grade != "12" {
		t.Errorf("profile = %+v, want default", p)
	}
}

func TestMCP_UpdateProfile(t *testing.T) {
	a := setupApp(t)
	deps := mcpDeps(a)
	a.signUpDirect(t, "asha@example.com")

	result, _ := mcpUpdateProfile(deps)(context.Background(), makeCallToolRequest("update_profile", map[string]any{}))
	if !result.IsError {
		t.Error("expected error when no fields are given")
	}

	result, err := mcpUpdateProfile(deps)(context.Background(), makeCallToolRequest("update_profile", map[string]any{
		"name":      "Asha",
		"interests": "biology",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("update_profile failed: %s", resultText(t, result))
	}
	if text := resultText(t, result); !strings.Contains(text, "name") || !strings.Contains(text, "interests") {
		t.Errorf("result = %q", text)
	}

	contents, err := mcpResourceProfile(deps)(context.Background(), makeReadResourceRequest("user://profile"))
	if err != nil {
		t.Fatalf("reading resource: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "user://profile" || tc.MIMEType != "application/json" {
		t.Errorf("resource = %s %s", tc.URI, tc.MIMEType)
	}
	var p profile.Profile
	json.Unmarshal([]byte(tc.Text), &p)
	if p.Name != "Asha" || p.Interests != "biology" || p.Grade != "12" {
		t.Errorf("profile after update = %+v", p)
	}
}

func TestMCP_QuizFlow(t *testing.T) {
	a := setupApp(t)
	deps := mcpDeps(a)
	a.signUpDirect(t, "asha@example.com")
	ctx := context.Background()

	result, _ := mcpAnswerQuestion(deps)(ctx, makeCallToolRequest("answer_question", map[string]any{
		"question_id": "q1",
	}))
	if !result.IsError {
		t.Error("expected error for missing option_id")
	}

	result, _ = mcpAnswerQuestion(deps)(ctx, makeCallToolRequest("answer_question", map[string]any{
		"question_id": "q1", "option_id": "o9",
	}))
	if !result.IsError {
		t.Error("expected error for unknown option")
	}

	for q, o := range map[string]string{"q1": "o2", "q2": "o4", "q3": "o3"} {
		result, err := mcpAnswerQuestion(deps)(ctx, makeCallToolRequest("answer_question", map[string]any{
			"question_id": q, "option_id": o,
		}))
		if err != nil || result.IsError {
			t.Fatalf("answer %s: err=%v result=%+v", q, err, result)
		}
	}

	result, err := mcpSubmitQuiz(deps)(ctx, makeCallToolRequest("submit_quiz", nil))
	if err != nil || result.IsError {
		t.Fatalf("submit_quiz: err=%v result=%+v", err, result)
	}
	if text := resultText(t, result); !strings.HasPrefix(text, "Recommended streams:\n1. ") {
		t.Errorf("submit text = %q", text)
	}

	result, err = mcpListStreams(deps)(ctx, makeCallToolRequest("list_streams", map[string]any{
		"recommended": true, "limit": float64(2),
	}))
	if err != nil || result.IsError {
		t.Fatalf("list_streams: err=%v result=%+v", err, result)
	}
	var streams []catalog.Category
	json.Unmarshal([]byte(resultText(t, result)), &streams)
	if len(streams) != 2 || streams[0].ID != "bsc" {
		t.Errorf("recommended streams = %+v", streams)
	}
}

func TestMCP_ListStreams(t *testing.T) {
	deps := mcpDeps(setupApp(t))

	result, err := mcpListStreams(deps)(context.Background(), makeCallToolRequest("list_streams", nil))
	if err != nil || result.IsError {
		t.Fatalf("list_streams: err=%v result=%+v", err, result)
	}
	var streams []catalog.Category
	json.Unmarshal([]byte(resultText(t, result)), &streams)
	if len(streams) != len(deps.Catalog.Categories) {
		t.Errorf("got %d streams, want %d", len(streams), len(deps.Catalog.Categories))
	}

	result, _ = mcpListStreams(deps)(context.Background(), makeCallToolRequest("list_streams", map[string]any{
		"recommended": true,
	}))
	if !result.IsError {
		t.Error("expected error for recommended streams without a user")
	}
}

func TestMCP_NewServer(t *testing.T) {
	if s := NewMCPServer(mcpDeps(setupApp(t))); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

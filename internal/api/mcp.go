package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/pathway/internal/catalog"
	"github.com/kalambet/pathway/internal/identity"
	"github.com/kalambet/pathway/internal/profile"
	"github.com/kalambet/pathway/internal/quiz"
	"github.com/kalambet/pathway/internal/recommend"
	"github.com/kalambet/pathway/internal/session"
)

type MCPDeps struct {
	Catalog  *catalog.Catalog
	Session  *session.Controller
	Profiles *profile.Manager
	Quiz     *quiz.Session
	// AwaitTimeout bounds waits for the profile to load; defaults to 5s.
	AwaitTimeout time.Duration
}

// NewMCPServer creates an MCP server exposing the signed-in user's profile
// and quiz.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.AwaitTimeout <= 0 {
		deps.AwaitTimeout = defaultAwaitTimeout
	}

	s := server.NewMCPServer(
		"pathway",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pathway: stream guidance for students. Read and edit the signed-in student's profile, take the stream quiz, and browse streams."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_profile",
			mcp.WithDescription("Return the signed-in student's profile as JSON."),
		),
		mcpGetProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("update_profile",
			mcp.WithDescription("Update profile fields. Only the fields given are changed."),
			mcp.WithString("name", mcp.Description("Display name")),
			mcp.WithString("grade", mcp.Description("Current grade or class")),
			mcp.WithString("interests", mcp.Description("Comma-separated interests")),
		),
		mcpUpdateProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("answer_question",
			mcp.WithDescription("Record an answer to one quiz question."),
			mcp.WithString("question_id", mcp.Description("Question id, e.g. q1"), mcp.Required()),
			mcp.WithString("option_id", mcp.Description("Option id, e.g. o2"), mcp.Required()),
		),
		mcpAnswerQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_quiz",
			mcp.WithDescription("Score the recorded answers, save the result to the profile and return the ranked streams."),
		),
		mcpSubmitQuiz(deps),
	)

	s.AddTool(
		mcp.NewTool("list_streams",
			mcp.WithDescription("List the available streams, or the top recommended ones."),
			mcp.WithBoolean("recommended", mcp.Description("Only the signed-in student's recommended streams")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of recommended streams (default 3)")),
		),
		mcpListStreams(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://profile",
			"Student Profile",
			mcp.WithResourceDescription("Signed-in student's profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

// current waits for the signed-in user's profile and returns it as the
// manager holds it, pending writes included.
func (d MCPDeps) current(ctx context.Context) (*identity.User, profile.Profile, error) {
	wctx, cancel := context.WithTimeout(ctx, d.AwaitTimeout)
	defer cancel()
	snap, err := d.Session.Await(wctx)
	if err != nil {
		return nil, profile.Profile{}, err
	}
	p, ok := d.Profiles.Current(snap.User.ID)
	if !ok {
		return nil, profile.Profile{}, session.ErrNotAuthenticated
	}
	return snap.User, p, nil
}

// boundQuiz waits for the profile and binds the quiz to the signed-in user.
func (d MCPDeps) boundQuiz(ctx context.Context) (*quiz.Session, error) {
	u, p, err := d.current(ctx)
	if err != nil {
		return nil, err
	}
	d.Quiz.Attach(u.ID, p)
	return d.Quiz, nil
}

func mcpGetProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		_, p, err := deps.current(ctx)
		if err != nil {
			return mcpError(describe(err)), nil
		}
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}
		return mcpText(string(b)), nil
	}
}

func mcpUpdateProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var partial profile.Partial
		var changed []string
		args := req.GetArguments()
		for _, field := range []struct {
			key string
			dst **string
		}{
			{"name", &partial.Name},
			{"grade", &partial.Grade},
			{"interests", &partial.Interests},
		} {
			if _, ok := args[field.key]; !ok {
				continue
			}
			v := req.GetString(field.key, "")
			*field.dst = &v
			changed = append(changed, field.key)
		}
		if len(changed) == 0 {
			return mcpError("give at least one of name, grade, interests"), nil
		}

		if _, _, err := deps.current(ctx); err != nil {
			return mcpError(describe(err)), nil
		}
		if err := deps.Session.UpdateProfile(ctx, partial); err != nil {
			return mcpError(describe(err)), nil
		}
		return mcpText("Updated " + strings.Join(changed, ", ")), nil
	}
}

func mcpAnswerQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		qid, err := req.RequireString("question_id")
		if err != nil {
			return mcpError("question_id is required"), nil
		}
		oid, err := req.RequireString("option_id")
		if err != nil {
			return mcpError("option_id is required"), nil
		}
		q, err := deps.boundQuiz(ctx)
		if err != nil {
			return mcpError(describe(err)), nil
		}
		if err := q.Select(qid, oid); err != nil {
			return mcpError(describe(err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s = %s (%d of %d answered)",
			qid, oid, len(q.Answers()), len(deps.Catalog.Questions))), nil
	}
}

func mcpSubmitQuiz(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := deps.boundQuiz(ctx)
		if err != nil {
			return mcpError(describe(err)), nil
		}
		ranking, err := q.Submit(ctx)
		if err != nil {
			return mcpError(describe(err)), nil
		}
		if len(ranking) == 0 {
			return mcpText("Quiz saved. No questions were answered, so there is no recommendation yet."), nil
		}

		var sb strings.Builder
		sb.WriteString("Recommended streams:\n")
		for i, c := range recommend.Resolve(ranking, deps.Catalog) {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, c.Title)
		}
		return mcpText(sb.String()), nil
	}
}

func mcpListStreams(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		streams := deps.Catalog.Categories
		if req.GetBool("recommended", false) {
			_, p, err := deps.current(ctx)
			if err != nil {
				return mcpError(describe(err)), nil
			}
			limit := req.GetInt("limit", 3)
			streams = recommend.Resolve(recommend.Top(p.QuizRecommendation, limit), deps.Catalog)
		}
		b, err := json.Marshal(streams)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal streams: %w", err)
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		_, p, err := deps.current(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// describe turns a domain error into text for a tool result.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return "nobody is signed in"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, profile.ErrNotLoaded):
		return "profile is still loading, try again"
	case errors.Is(err, profile.ErrPersistence):
		return "could not save, please try again"
	case identity.Code(err) != "":
		return identity.FriendlyMessage(err)
	default:
		return err.Error()
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

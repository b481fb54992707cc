package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/pathway/internal/catalog"
	"github.com/kalambet/pathway/internal/identity"
	"github.com/kalambet/pathway/internal/profile"
	"github.com/kalambet/pathway/internal/quiz"
	"github.com/kalambet/pathway/internal/recommend"
	"github.com/kalambet/pathway/internal/session"
)

const (
	maxRequestBodySize  = 64 << 10 // 64KB
	defaultAwaitTimeout = 5 * time.Second
)

type AppDeps struct {
	Catalog  *catalog.Catalog
	Identity identity.Provider
	Tokens   *identity.Tokens
	Session  *session.Controller
	Profiles *profile.Manager
	Quiz     *quiz.Session
	// AwaitTimeout bounds how long a request waits for a signed-in user's
	// profile to finish loading.
	AwaitTimeout time.Duration
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.AwaitTimeout <= 0 {
		deps.AwaitTimeout = defaultAwaitTimeout
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/streams", handleListStreams(deps))
	r.Get("/streams/{id}", handleGetStream(deps))
	r.Get("/quiz/questions", handleListQuestions(deps))
	r.Get("/session", handleGetSession(deps))
	r.Post("/auth/signup", handleSignUp(deps))
	r.Post("/auth/signin", handleSignIn(deps))

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(deps.Tokens, deps.Identity))

		r.Post("/auth/signout", handleSignOut(deps))
		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
		r.Get("/quiz", handleGetQuiz(deps))
		r.Put("/quiz/answers/{question}", handleAnswer(deps))
		r.Post("/quiz/submit", handleSubmit(deps))
		r.Post("/quiz/reset", handleReset(deps))
		r.Get("/recommendations", handleRecommendations(deps))
		r.Get("/ws/profile", handleProfileFeed(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- Catalog ---

func handleListStreams(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Catalog.Categories)
	}
}

func handleGetStream(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, ok := deps.Catalog.Category(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "stream %q not found", id)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleListQuestions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Catalog.Questions)
	}
}

// --- Auth ---

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *identity.User `json:"user"`
}

func handleSignUp(deps AppDeps) http.HandlerFunc {
	return handleCredentials(deps, http.StatusCreated, deps.Identity.SignUp)
}

func handleSignIn(deps AppDeps) http.HandlerFunc {
	return handleCredentials(deps, http.StatusOK, deps.Identity.SignIn)
}

func handleCredentials(deps AppDeps, status int, authenticate func(ctx context.Context, email, password string) (*identity.User, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		u, err := authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		token, expires, err := deps.Tokens.Issue(*u)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status, authResponse{Token: token, ExpiresAt: expires, User: u})
	}
}

func handleSignOut(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Identity.SignOut(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		deps.Quiz.Detach()
		if c := claimsFrom(r.Context()); c != nil {
			slog.Info("signed out", "user_id", c.Subject)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
	}
}

// --- Session and profile ---

type sessionResponse struct {
	State   string           `json:"state"`
	User    *identity.User   `json:"user,omitempty"`
	Profile *profile.Profile `json:"profile,omitempty"`
}

func sessionBody(snap session.Snapshot) sessionResponse {
	return sessionResponse{State: snap.State.String(), User: snap.User, Profile: snap.Profile}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionBody(deps.Session.Snapshot()))
	}
}

// awaitProfile waits for the signed-in user's profile to load.
func awaitProfile(ctx context.Context, deps AppDeps) (session.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, deps.AwaitTimeout)
	defer cancel()
	return deps.Session.Await(ctx)
}

// currentProfile returns the signed-in user and their profile as the manager
// holds it, pending writes included.
func currentProfile(ctx context.Context, deps AppDeps) (*identity.User, profile.Profile, error) {
	snap, err := awaitProfile(ctx, deps)
	if err != nil {
		return nil, profile.Profile{}, err
	}
	p, ok := deps.Profiles.Current(snap.User.ID)
	if !ok {
		return nil, profile.Profile{}, session.ErrNotAuthenticated
	}
	return snap.User, p, nil
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, p, err := currentProfile(r.Context(), deps)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var fields map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		partial, err := profile.ParsePartial(fields)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if _, err := awaitProfile(r.Context(), deps); err != nil {
			writeError(w, err)
			return
		}
		if err := deps.Session.UpdateProfile(r.Context(), partial); err != nil {
			writeError(w, err)
			return
		}
		_, p, err := currentProfile(r.Context(), deps)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// --- Quiz ---

type quizResponse struct {
	Answers        recommend.Answers `json:"answers"`
	Submitted      bool              `json:"submitted"`
	Recommendation []string          `json:"recommendation"`
}

func quizBody(s *quiz.Session) quizResponse {
	rec := s.Recommendation()
	if rec == nil {
		rec = []string{}
	}
	return quizResponse{Answers: s.Answers(), Submitted: s.Submitted(), Recommendation: rec}
}

// quizFor waits for the signed-in user's profile and binds the quiz to them,
// restoring stored answers the first time that user is seen.
func quizFor(ctx context.Context, deps AppDeps) (*quiz.Session, error) {
	u, p, err := currentProfile(ctx, deps)
	if err != nil {
		return nil, err
	}
	deps.Quiz.Attach(u.ID, p)
	return deps.Quiz, nil
}

func handleGetQuiz(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := quizFor(r.Context(), deps)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quizBody(q))
	}
}

func handleAnswer(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Option string `json:"option"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		q, err := quizFor(r.Context(), deps)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := q.Select(chi.URLParam(r, "question"), req.Option); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quizBody(q))
	}
}

func handleSubmit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := quizFor(r.Context(), deps)
		if err != nil {
			writeError(w, err)
			return
		}
		ranking, err := q.Submit(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"recommendation": ranking,
			"streams":        recommend.Resolve(ranking, deps.Catalog),
		})
	}
}

func handleReset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := quizFor(r.Context(), deps)
		if err != nil {
			writeError(w, err)
			return
		}
		q.Reset()
		writeJSON(w, http.StatusOK, quizBody(q))
	}
}

// handleRecommendations returns the top streams from the stored ranking.
func handleRecommendations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 3, len(deps.Catalog.Categories))
		_, p, err := currentProfile(r.Context(), deps)
		if err != nil {
			writeError(w, err)
			return
		}
		streams := recommend.Resolve(recommend.Top(p.QuizRecommendation, limit), deps.Catalog)
		writeJSON(w, http.StatusOK, map[string]any{
			"has_result": p.HasRecommendation(),
			"streams":    streams,
		})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

// Package quiz holds the in-progress answers of the stream quiz and submits
// them as a ranked recommendation.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kalambet/pathway/internal/catalog"
	"github.com/kalambet/pathway/internal/profile"
	"github.com/kalambet/pathway/internal/recommend"
	"github.com/kalambet/pathway/internal/session"
)

var (
	// ErrNotAuthenticated is returned by Submit when nobody is signed in or
	// the profile has not loaded yet.
	ErrNotAuthenticated = session.ErrNotAuthenticated
	ErrUnknownQuestion  = errors.New("unknown question")
	ErrUnknownOption    = errors.New("unknown option")
)

// ProfileWriter persists quiz results. Implemented by session.Controller.
type ProfileWriter interface {
	UpdateProfile(ctx context.Context, partial profile.Partial) error
}

// Session is the local state of one user's quiz.
type Session struct {
	catalog *catalog.Catalog
	writer  ProfileWriter

	mu             sync.Mutex
	owner          string
	answers        recommend.Answers
	submitted      bool
	recommendation []string
}

// NewSession creates an empty quiz over cat.
func NewSession(cat *catalog.Catalog, writer ProfileWriter) *Session {
	return &Session{
		catalog: cat,
		writer:  writer,
		answers: recommend.Answers{},
	}
}

// Select records optionID as the answer to questionID, replacing any
// earlier answer.
func (s *Session) Select(questionID, optionID string) error {
	q, ok := s.catalog.Question(questionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if _, ok := q.Option(optionID); !ok {
		return fmt.Errorf("%w: %s for question %s", ErrUnknownOption, optionID, questionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[questionID] = optionID
	return nil
}

// Submit scores the current answers and stores answers and ranking in the
// profile. An empty quiz submits an empty ranking. The ranking is returned
// on success.
func (s *Session) Submit(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	answers := s.answers.Clone()
	s.mu.Unlock()

	ranking := recommend.Score(answers, s.catalog.Questions)
	if err := s.writer.UpdateProfile(ctx, profile.QuizResult(answers, ranking)); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.submitted = true
	s.recommendation = ranking
	s.mu.Unlock()

	out := make([]string, len(ranking))
	copy(out, ranking)
	return out, nil
}

// Restore loads previously stored answers from p. The quiz counts as
// submitted when p carries a recommendation.
func (s *Session) Restore(p profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreLocked(p)
}

// Attach binds the quiz to userID. When the user differs from the one
// previously attached, local state is restored from p; otherwise it is kept.
func (s *Session) Attach(userID string, p profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == userID {
		return
	}
	s.owner = userID
	s.restoreLocked(p)
}

// Detach clears local state and forgets the attached user.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = ""
	s.resetLocked()
}

func (s *Session) restoreLocked(p profile.Profile) {
	s.answers = recommend.Answers(p.QuizAnswers).Clone()
	s.submitted = p.HasRecommendation()
	s.recommendation = append([]string(nil), p.QuizRecommendation...)
}

// Reset clears local answers so the quiz can be taken again. Stored results
// are untouched until the next Submit.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.answers = recommend.Answers{}
	s.submitted = false
	s.recommendation = nil
}

func (s *Session) Answers() recommend.Answers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// Recommendation returns the ranking from the last submit or restore.
func (s *Session) Recommendation() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recommendation...)
}

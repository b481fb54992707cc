package profile

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Collection is the document store collection holding profiles, keyed by
// user id.
const Collection = "profiles"

const (
	defaultName  = "New User"
	defaultGrade = "12"
)

// Profile is a user's stored profile document. Field names match the stored
// JSON keys.
type Profile struct {
	Name      string `json:"name"`
	Grade     string `json:"grade"`
	Interests string `json:"interests"` // comma-separated free text
	// QuizAnswers maps question id to the selected option id.
	QuizAnswers map[string]string `json:"quizAnswers"`
	// QuizRecommendation holds category ids in rank order.
	QuizRecommendation []string `json:"quizRecommendation"`
}

// Default returns the profile created the first time a user's document is
// found missing.
func Default(email string) Profile {
	name := email
	if name == "" {
		name = defaultName
	}
	return Profile{
		Name:               name,
		Grade:              defaultGrade,
		Interests:          "",
		QuizAnswers:        map[string]string{},
		QuizRecommendation: []string{},
	}
}

// HasRecommendation reports whether a quiz result has been stored.
func (p Profile) HasRecommendation() bool {
	return len(p.QuizRecommendation) > 0
}

// InterestList splits Interests on commas for display, dropping blanks.
func (p Profile) InterestList() []string {
	var out []string
	for _, s := range strings.Split(p.Interests, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a deep copy of p with nil collections normalized to empty ones.
func (p Profile) Clone() Profile {
	cp := p
	cp.QuizAnswers = make(map[string]string, len(p.QuizAnswers))
	for k, v := range p.QuizAnswers {
		cp.QuizAnswers[k] = v
	}
	cp.QuizRecommendation = make([]string, len(p.QuizRecommendation))
	copy(cp.QuizRecommendation, p.QuizRecommendation)
	return cp
}

// fields converts the full profile into document fields.
func (p Profile) fields() map[string]any {
	c := p.Clone()
	return map[string]any{
		"name":               c.Name,
		"grade":              c.Grade,
		"interests":          c.Interests,
		"quizAnswers":        c.QuizAnswers,
		"quizRecommendation": c.QuizRecommendation,
	}
}

// Partial is a field-level update. Nil fields are left untouched; set
// fields replace the stored value wholesale.
type Partial struct {
	Name               *string
	Grade              *string
	Interests          *string
	QuizAnswers        *map[string]string
	QuizRecommendation *[]string
}

// QuizResult builds the partial a quiz submission persists.
func QuizResult(answers map[string]string, ranking []string) Partial {
	a := make(map[string]string, len(answers))
	for k, v := range answers {
		a[k] = v
	}
	r := make([]string, len(ranking))
	copy(r, ranking)
	return Partial{QuizAnswers: &a, QuizRecommendation: &r}
}

// IsEmpty reports whether the partial names no fields.
func (p Partial) IsEmpty() bool {
	return p.Name == nil && p.Grade == nil && p.Interests == nil &&
		p.QuizAnswers == nil && p.QuizRecommendation == nil
}

// Apply overlays the set fields of p onto prof.
func (p Partial) Apply(prof *Profile) {
	if p.Name != nil {
		prof.Name = *p.Name
	}
	if p.Grade != nil {
		prof.Grade = *p.Grade
	}
	if p.Interests != nil {
		prof.Interests = *p.Interests
	}
	if p.QuizAnswers != nil {
		prof.QuizAnswers = make(map[string]string, len(*p.QuizAnswers))
		for k, v := range *p.QuizAnswers {
			prof.QuizAnswers[k] = v
		}
	}
	if p.QuizRecommendation != nil {
		prof.QuizRecommendation = make([]string, len(*p.QuizRecommendation))
		copy(prof.QuizRecommendation, *p.QuizRecommendation)
	}
}

// fields converts the set fields into document fields for a merge write.
func (p Partial) fields() map[string]any {
	f := make(map[string]any)
	if p.Name != nil {
		f["name"] = *p.Name
	}
	if p.Grade != nil {
		f["grade"] = *p.Grade
	}
	if p.Interests != nil {
		f["interests"] = *p.Interests
	}
	if p.QuizAnswers != nil {
		a := *p.QuizAnswers
		if a == nil {
			a = map[string]string{}
		}
		f["quizAnswers"] = a
	}
	if p.QuizRecommendation != nil {
		r := *p.QuizRecommendation
		if r == nil {
			r = []string{}
		}
		f["quizRecommendation"] = r
	}
	return f
}

// ParsePartial decodes a JSON object of profile fields into a Partial.
// Unknown keys and values of the wrong type are rejected.
func ParsePartial(fields map[string]json.RawMessage) (Partial, error) {
	var p Partial
	for key, raw := range fields {
		var err error
		switch key {
		case "name":
			p.Name = new(string)
			err = json.Unmarshal(raw, p.Name)
		case "grade":
			p.Grade = new(string)
			err = json.Unmarshal(raw, p.Grade)
		case "interests":
			p.Interests = new(string)
			err = json.Unmarshal(raw, p.Interests)
		case "quizAnswers":
			p.QuizAnswers = new(map[string]string)
			err = json.Unmarshal(raw, p.QuizAnswers)
		case "quizRecommendation":
			p.QuizRecommendation = new([]string)
			err = json.Unmarshal(raw, p.QuizRecommendation)
		default:
			return Partial{}, fmt.Errorf("unknown profile field %q", key)
		}
		if err != nil {
			return Partial{}, fmt.Errorf("invalid value for %q: %w", key, err)
		}
	}
	return p, nil
}

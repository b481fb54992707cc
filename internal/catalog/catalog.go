// Package catalog holds the static reference data the recommender works
// against: the recommendable streams and the aptitude quiz.
package catalog

import (
	"errors"
	"fmt"
)

// Category is a recommendable stream or programme.
type Category struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Icon        string   `json:"icon"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Outcomes    []string `json:"outcomes"`
}

// Option is one selectable answer to a Question. Categories lists every
// stream the option counts towards, in declared order.
type Option struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Categories []string `json:"categories"`
}

// Question is a single quiz question with its options in display order.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// Option returns the option with the given id.
func (q Question) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Catalog is the read-only set of categories and quiz questions loaded at
// process start.
type Catalog struct {
	Categories []Category
	Questions  []Question

	byID map[string]int
}

// New builds a Catalog and validates it.
func New(categories []Category, questions []Question) (*Catalog, error) {
	c := &Catalog{
		Categories: categories,
		Questions:  questions,
		byID:       make(map[string]int, len(categories)),
	}
	for i, cat := range categories {
		c.byID[cat.ID] = i
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Category looks up a category by id.
func (c *Catalog) Category(id string) (Category, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Category{}, false
	}
	return c.Categories[i], true
}

// Question looks up a question by id.
func (c *Catalog) Question(id string) (Question, bool) {
	for _, q := range c.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Validate checks that the catalog is well formed: ids are unique and
// non-empty, every option maps to at least one category, and every
// referenced category exists.
func Validate(c *Catalog) error {
	var errs []error

	seenCat := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.ID == "" {
			errs = append(errs, errors.New("category with empty id"))
			continue
		}
		if seenCat[cat.ID] {
			errs = append(errs, fmt.Errorf("duplicate category %q", cat.ID))
		}
		seenCat[cat.ID] = true
	}

	seenQ := make(map[string]bool, len(c.Questions))
	for _, q := range c.Questions {
		if q.ID == "" {
			errs = append(errs, errors.New("question with empty id"))
			continue
		}
		if seenQ[q.ID] {
			errs = append(errs, fmt.Errorf("duplicate question %q", q.ID))
		}
		seenQ[q.ID] = true

		if len(q.Options) == 0 {
			errs = append(errs, fmt.Errorf("question %q has no options", q.ID))
		}
		seenOpt := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			if seenOpt[o.ID] {
				errs = append(errs, fmt.Errorf("question %q: duplicate option %q", q.ID, o.ID))
			}
			seenOpt[o.ID] = true
			if len(o.Categories) == 0 {
				errs = append(errs, fmt.Errorf("question %q option %q maps to no category", q.ID, o.ID))
			}
			for _, cid := range o.Categories {
				if !seenCat[cid] {
					errs = append(errs, fmt.Errorf("question %q option %q: unknown category %q", q.ID, o.ID, cid))
				}
			}
		}
	}

	return errors.Join(errs...)
}

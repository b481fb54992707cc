// Package recommend turns aptitude quiz answers into a ranked list of streams.
package recommend

import (
	"sort"

	"github.com/kalambet/pathway/internal/catalog"
)

// Answers maps a question id to the id of the single selected option.
type Answers map[string]string

// Clone returns an independent copy of a. A nil map clones to an empty map.
func (a Answers) Clone() Answers {
	cp := make(Answers, len(a))
	for k, v := range a {
		cp[k] = v
	}
	return cp
}

// Score counts, for every answered question, one point towards each category
// of the selected option, and returns the category ids ordered by descending
// count. Equal counts keep the order in which the categories were first seen
// while scanning questions (and each option's categories) in declared order.
// Categories that received no points are omitted. Unanswered questions and
// option ids that do not exist on the question are ignored.
func Score(answers Answers, questions []catalog.Question) []string {
	counts := make(map[string]int)
	var order []string

	for _, q := range questions {
		optID, ok := answers[q.ID]
		if !ok {
			continue
		}
		opt, ok := q.Option(optID)
		if !ok {
			continue
		}
		for _, cid := range opt.Categories {
			if _, seen := counts[cid]; !seen {
				order = append(order, cid)
			}
			counts[cid]++
		}
	}

	ranked := make([]string, len(order))
	copy(ranked, order)
	// Stable sort keeps first-seen order among ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i]] > counts[ranked[j]]
	})
	return ranked
}

// Top returns at most n leading ids. n <= 0 returns all of them.
func Top(ids []string, n int) []string {
	if n <= 0 || n >= len(ids) {
		return ids
	}
	return ids[:n]
}

// Resolve maps ranked ids to their categories, silently dropping ids the
// catalog does not know.
func Resolve(ids []string, c *catalog.Catalog) []catalog.Category {
	out := make([]catalog.Category, 0, len(ids))
	for _, id := range ids {
		if cat, ok := c.Category(id); ok {
			out = append(out, cat)
		}
	}
	return out
}

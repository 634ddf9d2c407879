// Package grading decides whether a stored answer matches the answer key,
// using one equality rule per question variant.
package grading

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Grade reports whether answer matches the question's answer key.
// Questions without a key, or non-answerable ones, are never correct.
func Grade(q *model.Question, answer json.RawMessage) (bool, error) {
	if !q.Answerable() || len(q.CorrectAnswer) == 0 || len(answer) == 0 {
		return false, nil
	}

	want, err := model.DecodeAnswer(q.Type, q.CorrectAnswer)
	if err != nil {
		return false, fmt.Errorf("decode key: %w", err)
	}
	got, err := model.DecodeAnswer(q.Type, answer)
	if err != nil {
		return false, fmt.Errorf("decode answer: %w", err)
	}
	return Equal(want, got), nil
}

// Equal compares two answers of the same variant.
func Equal(want, got model.Answer) bool {
	switch w := want.(type) {
	case model.ChoiceAnswer:
		g, ok := got.(model.ChoiceAnswer)
		return ok && w == g
	case model.BooleanAnswer:
		g, ok := got.(model.BooleanAnswer)
		return ok && w == g
	case model.OptionTextAnswer:
		g, ok := got.(model.OptionTextAnswer)
		return ok && w == g
	case model.TextAnswer:
		g, ok := got.(model.TextAnswer)
		return ok && Normalize(string(w)) == Normalize(string(g))
	case model.MultiChoiceAnswer:
		g, ok := got.(model.MultiChoiceAnswer)
		return ok && sameIntSet(w, g)
	case model.ReorderAnswer:
		g, ok := got.(model.ReorderAnswer)
		if !ok || len(w) != len(g) {
			return false
		}
		for i := range w {
			if strings.TrimSpace(w[i]) != strings.TrimSpace(g[i]) {
				return false
			}
		}
		return true
	case model.MatchingAnswer:
		g, ok := got.(model.MatchingAnswer)
		return ok && samePairSet(w, g)
	case model.DialogueAnswer:
		g, ok := got.(model.DialogueAnswer)
		if !ok || len(w) != len(g) {
			return false
		}
		for line, sel := range w {
			if gs, ok := g[line]; !ok || gs != sel {
				return false
			}
		}
		return true
	case model.CompositeAnswer:
		g, ok := got.(model.CompositeAnswer)
		if !ok || len(w) != len(g) {
			return false
		}
		for idx, ws := range w {
			gs, ok := g[idx]
			if !ok || !subEqual(ws, gs) {
				return false
			}
		}
		return true
	}
	return false
}

// Normalize lowercases s, drops punctuation and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func subEqual(w, g model.SubAnswer) bool {
	if w.IsList != g.IsList {
		return false
	}
	if !w.IsList {
		return Normalize(w.Scalar) == Normalize(g.Scalar)
	}
	if len(w.List) != len(g.List) {
		return false
	}
	for i := range w.List {
		if Normalize(w.List[i]) != Normalize(g.List[i]) {
			return false
		}
	}
	return true
}

func sameIntSet(a, b []int) bool {
	x := dedupInts(a)
	y := dedupInts(b)
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func dedupInts(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

func samePairSet(a, b model.MatchingAnswer) bool {
	set := make(map[model.MatchPair]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	other := make(map[model.MatchPair]struct{}, len(b))
	for _, p := range b {
		if _, ok := set[p]; !ok {
			return false
		}
		other[p] = struct{}{}
	}
	return len(set) == len(other)
}

package repository

import (
	"fmt"
	"strings"
)

// whereBuilder accumulates AND-ed predicates with positional postgres arguments.
// Only predicates that were added appear in the clause.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

// add appends a predicate; format receives the placeholder index once per %d
func (w *whereBuilder) add(format string, arg interface{}) {
	w.args = append(w.args, arg)
	n := len(w.args)
	w.conditions = append(w.conditions, fmt.Sprintf(format, repeat(n, strings.Count(format, "%d"))...))
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

// setBuilder accumulates column assignments for partial updates
type setBuilder struct {
	assignments []string
	args        []interface{}
}

func (s *setBuilder) set(column string, value interface{}) {
	s.args = append(s.args, value)
	s.assignments = append(s.assignments, fmt.Sprintf("%s = $%d", column, len(s.args)))
}

func (s *setBuilder) raw(assignment string) {
	s.assignments = append(s.assignments, assignment)
}

func (s *setBuilder) clause() string {
	return strings.Join(s.assignments, ", ")
}

func repeat(n, times int) []interface{} {
	out := make([]interface{}, times)
	for i := range out {
		out[i] = n
	}
	return out
}

package store

import (
	"context"
	"strings"
)

// setClause collects the columns of a partial update. Nil values are skipped.
type setClause struct {
	cols []string
	args []any
}

func addField[T any](s *setClause, col string, v *T) {
	if v == nil {
		return
	}
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, *v)
}

func (s *setClause) add(col string, v *string) { addField(s, col, v) }

func (s *setClause) set(col string, v any) {
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, v)
}

// update applies the clause to the row with the given id and bumps updated_at.
// An empty clause still touches updated_at.
func (s *Store) update(ctx context.Context, table, id string, set setClause) error {
	set.set("updated_at", s.now())
	args := append(set.args, id)
	_, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET `+strings.Join(set.cols, ", ")+` WHERE id = ?`,
		args...,
	)
	return err
}

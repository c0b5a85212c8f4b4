package database

import (
	"strconv"
	"strings"
)

// SetClause accumulates "column = $n" assignments for partial updates.
type SetClause struct {
	sets []string
	args []any
}

func (c *SetClause) Add(column string, value any) {
	c.args = append(c.args, value)
	c.sets = append(c.sets, column+" = $"+strconv.Itoa(len(c.args)))
}

func (c *SetClause) Len() int {
	return len(c.sets)
}

// Build renders an UPDATE of table filtered by idColumn = id. An empty
// returning list omits the RETURNING clause.
func (c *SetClause) Build(table, idColumn string, id any, returning string) (string, []any) {
	args := append(append([]any{}, c.args...), id)
	query := "UPDATE " + table + " SET " + strings.Join(c.sets, ", ") +
		" WHERE " + idColumn + " = $" + strconv.Itoa(len(args))
	if returning != "" {
		query += " RETURNING " + returning
	}
	return query, args
}

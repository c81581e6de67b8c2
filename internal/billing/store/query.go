package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dukerupert/billow/internal/billing/model"
)

// listSQL builds the WHERE/ORDER/LIMIT tail for a list read. Filter and sort
// columns must appear in allowed; anything else is rejected.
func listSQL(q model.ListQuery, allowed map[string]bool) (string, []any, error) {
	q = q.Normalize()

	var b strings.Builder
	var args []any

	keys := make([]string, 0, len(q.Where))
	for k := range q.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if !allowed[k] {
			return "", nil, fmt.Errorf("cannot filter on %q", k)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		v := q.Where[k]
		if bv, ok := v.(bool); ok {
			v = boolInt(bv)
		}
		b.WriteString(k + " = ?")
		args = append(args, v)
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	if !allowed[orderBy] {
		return "", nil, fmt.Errorf("cannot order by %q", orderBy)
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, rowid %s LIMIT ? OFFSET ?", orderBy, q.OrderDirection, q.OrderDirection)
	args = append(args, q.Limit, q.Offset)

	return b.String(), args, nil
}

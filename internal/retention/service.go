package retention

import (
	"context"
	"database/sql"
)

// Keep is how many host_metrics rows survive each insert.
const Keep = 100

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Policy trims host_metrics to the newest Keep rows. Apply runs inside the
// caller's transaction so the insert and the trim commit together.
type Policy struct {
	keep int
}

func NewPolicy(keep int) Policy {
	if keep <= 0 {
		keep = Keep
	}
	return Policy{keep: keep}
}

func (p Policy) Keep() int { return p.keep }

// Apply returns the number of rows removed. Ties on timestamp fall back to id
// so the newest inserts win consistently.
func (p Policy) Apply(ctx context.Context, ex Execer) (int64, error) {
	res, err := ex.ExecContext(ctx, `DELETE FROM host_metrics
		WHERE id NOT IN (
			SELECT id FROM host_metrics
			ORDER BY timestamp DESC, id DESC
			LIMIT $1
		)`, p.keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package database

import (
	"context"
)

// BuildsCountAliveAgents returns the number of builds whose agent VM is
// still marked alive. A teardown failure leaves this flag set, so the
// count is the operational signal for agents that need manual cleanup.
func (q *Queries) BuildsCountAliveAgents(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, "SELECT count(*) FROM builds WHERE agent_alive")
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

package metric

import (
	"context"
	"fmt"
	"time"

	"nlcal/src-server/utils"
)

// database measures a trivial history query. The server only starts the
// collector when a database is open.
func database(as *utils.AppState, timeout time.Duration) (time.Duration, error) {
	if as.History == nil {
		return 0, fmt.Errorf("database: history store is not open")
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	latency, err := as.History.Ping(ctx)
	if err != nil {
		return 0, fmt.Errorf("database: %w", err)
	}
	return latency, nil
}

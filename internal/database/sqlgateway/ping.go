package sqlgateway

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const healthProbeQuery = "SELECT 1"

// Ping issues a trivial round trip query over the held connection
func Ping(ctx context.Context, conn *sqlx.Conn) error {
	var result int
	if err := conn.GetContext(ctx, &result, healthProbeQuery); err != nil {
		return errors.Wrap(err, "health probe failed")
	}

	if result != 1 {
		return errors.Errorf("health probe returned unexpected result %d", result)
	}

	return nil
}

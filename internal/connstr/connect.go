package connstr

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
	_ "github.com/denisenkom/go-mssqldb" // registers the "sqlserver" and "mssql" drivers
)

// DefaultConnectTimeout bounds each individual connection attempt.
const DefaultConnectTimeout = 15 * time.Second

// Connect establishes a live connection by trying, in order: the structured
// DSN built from cfg, then the raw original string verbatim. Some dialects
// (instance names, cloud hosts) are imperfectly captured by structured
// parsing, so the raw fallback recovers connections the parser mishandles.
// Attempt failures are logged and not fatal until all attempts are exhausted,
// at which point the last error surfaces as utils.ErrConnectionFailed.
func Connect(ctx context.Context, cfg *Config, raw string, logger utils.Logger) (*sql.DB, error) {
	type attempt struct {
		driver string
		dsn    string
		label  string
	}

	attempts := []attempt{
		{driver: "sqlserver", dsn: cfg.URL(), label: "structured config"},
	}
	if raw != "" {
		attempts = append(attempts, attempt{driver: "mssql", dsn: raw, label: "raw connection string"})
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	var lastErr error
	for i, a := range attempts {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrCanceled, ctx.Err())
		}

		db, err := sql.Open(a.driver, a.dsn)
		if err != nil {
			lastErr = err
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				return db, nil
			}
			_ = db.Close()
			lastErr = err
		}

		logger.Warn("Connection attempt %d/%d (%s) to %s failed: %v",
			i+1, len(attempts), a.label, Redact(raw), err)
	}

	return nil, fmt.Errorf("%w: %s", utils.ErrConnectionFailed, EnhanceNetworkError(lastErr.Error()))
}

// EnhanceNetworkError appends operator guidance for well-known network failure
// substrings. Cosmetic only; the error kind is unchanged.
func EnhanceNetworkError(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such host"):
		return msg + " (host not found - check the server name)"
	case strings.Contains(lower, "connection refused"):
		return msg + " (connection refused - verify the server is listening on that port)"
	case strings.Contains(lower, "login failed"):
		return msg + " (authentication failed - check the user id and password)"
	case strings.Contains(lower, "i/o timeout"), strings.Contains(lower, "context deadline exceeded"):
		return msg + " (timed out - check network access and firewall rules)"
	default:
		return msg
	}
}

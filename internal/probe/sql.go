package probe

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const defaultSQLQuery = "SELECT 1"

func sqlQuery(svc domain.Service) string {
	if q := strings.TrimSpace(svc.Query); q != "" {
		return q
	}
	return defaultSQLQuery
}

// evaluateRows checks row bounds first, then latency.
func evaluateRows(rows int, latency float64, bounds domain.RowBounds, maxLatency *float64) Outcome {
	out := Outcome{OK: true, LatencyMs: latency, Details: SQLDetails{RowCount: rows}}
	switch {
	case !bounds.Satisfied(rows):
		out.OK, out.Reason = false, domain.ReasonRowCount
		out.Error = fmt.Sprintf("row count %d outside expected bounds", rows)
	case overLatency(latency, maxLatency):
		out.OK, out.Reason = false, domain.ReasonLatency
		out.Error = fmt.Sprintf("latency %.2fms over %.2fms", latency, *maxLatency)
	}
	return out
}

func checkPostgres(ctx context.Context, rel *releaser, req Request) Outcome {
	start := time.Now()
	cfg, err := pgx.ParseConfig(req.Target)
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("parse postgres target: %w", err))
	}
	cfg.ConnectTimeout = req.Timeout

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("connect postgres: %w", err))
	}
	// hard close of the socket; safe while a query is still running
	rel.onRelease(func() { _ = conn.PgConn().Conn().Close() })
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Close(cctx)
	}()

	rows, err := conn.Query(ctx, sqlQuery(req.Service))
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("query postgres: %w", err))
	}
	n := 0
	for rows.Next() {
		n++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("read postgres rows: %w", err))
	}
	return evaluateRows(n, sinceMs(start), req.Service.ExpectedRows, req.MaxLatencyMs)
}

func checkMySQL(ctx context.Context, rel *releaser, req Request) Outcome {
	start := time.Now()
	dsn, err := mysqlDSN(req.Target, req.Timeout)
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("open mysql connection: %w", err))
	}
	db.SetMaxOpenConns(1)
	rel.onRelease(func() { _ = db.Close() })

	rows, err := db.QueryContext(ctx, sqlQuery(req.Service))
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("query mysql: %w", err))
	}
	n := 0
	for rows.Next() {
		n++
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("read mysql rows: %w", err))
	}
	return evaluateRows(n, sinceMs(start), req.Service.ExpectedRows, req.MaxLatencyMs)
}

// mysqlDSN accepts either a driver DSN or a mysql:// URL.
func mysqlDSN(target string, timeout time.Duration) (string, error) {
	var cfg *mysql.Config
	if strings.HasPrefix(strings.ToLower(target), "mysql://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("parse mysql target: %w", err)
		}
		cfg = mysql.NewConfig()
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		if u.Port() == "" {
			cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
		}
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		if q := u.Query(); len(q) > 0 {
			cfg.Params = map[string]string{}
			for k := range q {
				cfg.Params[k] = q.Get(k)
			}
		}
	} else {
		var err error
		if cfg, err = mysql.ParseDSN(target); err != nil {
			return "", fmt.Errorf("parse mysql target: %w", err)
		}
	}
	if timeout > 0 {
		cfg.Timeout = timeout
		cfg.ReadTimeout = timeout
	}
	return cfg.FormatDSN(), nil
}

package connstr

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ServerInfo describes a successfully tested connection.
type ServerInfo struct {
	Product  string   `json:"product"`
	Version  string   `json:"version"`
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
}

// Introspect reports product name, product version, current database and the
// full ordered list of base-table names visible to the connection.
func Introspect(ctx context.Context, db *sql.DB) (*ServerInfo, error) {
	info := &ServerInfo{}

	var banner string
	if err := db.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&banner); err != nil {
		return nil, fmt.Errorf("query server version: %w", err)
	}
	// @@VERSION is a multi-line banner; the product name is the first line.
	info.Product = strings.TrimSpace(strings.SplitN(banner, "\n", 2)[0])

	if err := db.QueryRowContext(ctx,
		"SELECT CAST(SERVERPROPERTY('ProductVersion') AS nvarchar(128))").Scan(&info.Version); err != nil {
		return nil, fmt.Errorf("query product version: %w", err)
	}

	if err := db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&info.Database); err != nil {
		return nil, fmt.Errorf("query current database: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME ASC`)
	if err != nil {
		return nil, fmt.Errorf("query base tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		info.Tables = append(info.Tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate base tables: %w", err)
	}

	return info, nil
}

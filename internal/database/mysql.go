package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
)

// NewMySQLDatabase opens and pings a MySQL pool.
func NewMySQLDatabase(cfg registry.DatabaseConfig) (*SQLDatabase, error) {
	return openPool(DriverMySQL, mysqlDSN(cfg), cfg)
}

func mysqlDSN(cfg registry.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = cfg.ConnectionTimeout
	return mc.FormatDSN()
}

const mysqlColumnsQuery = `SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, COLUMN_KEY
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

// mysqlSchema reads a table definition from INFORMATION_SCHEMA. COLUMN_TYPE
// keeps display widths, so TINYINT(1) stays recognisable as a boolean.
func mysqlSchema(ctx context.Context, db *sql.DB, table string) (*core.TableSchema, error) {
	rows, err := db.QueryContext(ctx, mysqlColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	schema := &core.TableSchema{Table: table}
	for rows.Next() {
		var colName, colType, isNullable, columnKey string
		var colDefault sql.NullString
		if err := rows.Scan(&colName, &colType, &isNullable, &colDefault, &columnKey); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		column := core.Column{
			Name:     colName,
			Type:     colType,
			Nullable: isNullable == "YES",
		}
		if colDefault.Valid {
			column.Default = colDefault.String
		}
		if columnKey == "PRI" && schema.PrimaryKey == "" {
			schema.PrimaryKey = colName
		}
		schema.Columns = append(schema.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	return schema, nil
}

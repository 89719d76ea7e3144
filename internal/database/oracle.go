package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/registry"
)

// NewOracleDatabase opens and pings an Oracle pool. cfg.Database is the
// service name.
func NewOracleDatabase(cfg registry.DatabaseConfig) (*SQLDatabase, error) {
	return openPool(DriverOracle, oracleURL(cfg), cfg)
}

func oracleURL(cfg registry.DatabaseConfig) string {
	options := map[string]string{}
	if cfg.ConnectionTimeout > 0 {
		options["TIMEOUT"] = fmt.Sprintf("%d", int(cfg.ConnectionTimeout.Seconds()))
	}
	return go_ora.BuildUrl(cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, options)
}

const oracleColumnsQuery = `SELECT COLUMN_NAME, DATA_TYPE, DATA_PRECISION, DATA_SCALE, NULLABLE
FROM USER_TAB_COLUMNS
WHERE TABLE_NAME = :1
ORDER BY COLUMN_ID`

const oraclePrimaryKeyQuery = `SELECT cols.COLUMN_NAME
FROM USER_CONSTRAINTS cons
JOIN USER_CONS_COLUMNS cols ON cols.CONSTRAINT_NAME = cons.CONSTRAINT_NAME
WHERE cons.CONSTRAINT_TYPE = 'P' AND cons.TABLE_NAME = :1
ORDER BY cols.POSITION`

// oracleSchema reads a table definition from the data dictionary.
// NUMBER(p,0) columns are reported as INTEGER.
func oracleSchema(ctx context.Context, db *sql.DB, table string) (*core.TableSchema, error) {
	rows, err := db.QueryContext(ctx, oracleColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	schema := &core.TableSchema{Table: table}
	for rows.Next() {
		var colName, dataType, nullable string
		var precision, scale sql.NullInt64
		if err := rows.Scan(&colName, &dataType, &precision, &scale, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		schema.Columns = append(schema.Columns, core.Column{
			Name:     colName,
			Type:     oracleType(dataType, precision, scale),
			Nullable: nullable == "Y",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}

	var pk string
	err = db.QueryRowContext(ctx, oraclePrimaryKeyQuery, table).Scan(&pk)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}
	schema.PrimaryKey = pk
	return schema, nil
}

func oracleType(dataType string, precision, scale sql.NullInt64) string {
	dataType = strings.ToUpper(dataType)
	if dataType != "NUMBER" {
		return dataType
	}
	if scale.Valid && scale.Int64 == 0 && precision.Valid {
		return "INTEGER"
	}
	return dataType
}

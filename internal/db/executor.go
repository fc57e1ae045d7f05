package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"

	"gorm.io/gorm"

	"github.com/arwahdevops/dbtyper/internal/typing"
)

var _ typing.Executor = (*Connector)(nil)

// Execute runs each transaction of sql in order. A failing statement rolls
// back its transaction and stops the batch; earlier transactions stay committed.
func (c *Connector) Execute(ctx context.Context, sql typing.SQL) error {
	for i, stmts := range sql.Transactions {
		var failed string
		err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, stmt := range stmts {
				if err := tx.Exec(stmt).Error; err != nil {
					failed = stmt
					return err
				}
			}
			return nil
		})
		if err != nil {
			return &typing.ExecutionError{
				Statement: failed,
				Err:       fmt.Errorf("transaction %d of %d: %w", i+1, len(sql.Transactions), err),
			}
		}
	}
	return nil
}

// Query runs a read-only statement and returns every row keyed by column name.
func (c *Connector) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	var rows []map[string]any
	if err := c.DB.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, &typing.ExecutionError{Statement: query, Err: err}
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = plainValue(v)
		}
	}
	return rows, nil
}

// plainValue unwraps what gorm leaves in map scans. Columns without a declared
// type (SQLite expressions such as COUNT(*)) come back as *interface{}; byte
// slices become strings.
func plainValue(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	v = rv.Interface()
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return v
		}
		v = dv
	}
	switch x := v.(type) {
	case sql.RawBytes:
		return string(x)
	case []byte:
		return string(x)
	}
	return v
}

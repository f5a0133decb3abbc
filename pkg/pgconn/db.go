// Copyright 2023 Ant Group Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pgconn

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"github.com/blockscope/blockscope/pkg/analyzer"
	"github.com/blockscope/blockscope/pkg/status"
	"github.com/blockscope/blockscope/pkg/util/stringutil"
)

const (
	resetStatsSQL = "SELECT pg_stat_reset();"
	ioStatsSQL    = "SELECT * FROM pg_statio_user_tables ORDER BY relname;"
	blockCountSQL = "SELECT relname AS table_name, pg_relation_size(pg_class.oid) / current_setting('block_size')::integer AS total_blocks " +
		"FROM pg_class JOIN pg_namespace ON pg_namespace.oid = pg_class.relnamespace " +
		"WHERE relkind = 'r' AND nspname NOT IN ('pg_catalog', 'information_schema');"
	columnsSQL = "SELECT column_name FROM information_schema.columns WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position;"

	defaultSchema = "public"
)

var _ analyzer.Conn = (*DB)(nil)

// DB is the database handle of one session. It holds a single connection.
type DB struct {
	db               *gorm.DB
	explainOptions   string
	statementTimeout time.Duration
}

func NewGormConfig() *gorm.Config {
	return &gorm.Config{
		// Reference gormlog.Default
		Logger: gormlog.New(
			logrus.StandardLogger(),
			gormlog.Config{
				SlowThreshold: 200 * time.Millisecond,
				Colorful:      false,
				LogLevel:      gormlog.Warn,
			}),
	}
}

// Open connects to the PostgreSQL database described by params and checks
// the connection is alive.
func Open(ctx context.Context, params ConnParams, opts Options) (*DB, error) {
	if err := params.Validate(); err != nil {
		return nil, status.Wrap(status.Code_BAD_REQUEST, err)
	}
	dsn := params.DSN(opts)
	gdb, err := gorm.Open(postgres.Open(dsn), NewGormConfig())
	if err != nil {
		logrus.Errorf("failed to connect to %s: %v", stringutil.RemoveSensitiveInfo(dsn), err)
		return nil, status.Wrap(status.Code_CONNECTION_FAILED, errors.Wrap(err, "database connection failed"))
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, status.Wrap(status.Code_CONNECTION_FAILED, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	d := NewDB(gdb, opts)
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// NewDB wraps an opened gorm handle.
func NewDB(gdb *gorm.DB, opts Options) *DB {
	explainOptions := opts.ExplainOptions
	if explainOptions == "" {
		explainOptions = DefaultExplainOptions
	}
	return &DB{
		db:               gdb,
		explainOptions:   explainOptions,
		statementTimeout: opts.StatementTimeout,
	}
}

func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return status.Wrap(status.Code_CONNECTION_FAILED, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return status.Wrap(status.Code_CONNECTION_FAILED, errors.Wrap(err, "database connection failed"))
	}
	return nil
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Tx is one short transaction. Call Finish once all statements are done.
type Tx struct {
	db *gorm.DB
}

func (d *DB) Begin(ctx context.Context, readOnly bool) (*Tx, error) {
	tx := d.db.WithContext(ctx).Begin(&sql.TxOptions{ReadOnly: readOnly})
	if tx.Error != nil {
		return nil, status.Wrap(status.Code_QUERY_EXECUTION_FAILED, errors.Wrap(tx.Error, "begin transaction"))
	}
	if d.statementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", d.statementTimeout.Milliseconds())
		if err := tx.Exec(stmt).Error; err != nil {
			tx.Rollback()
			return nil, status.Wrap(status.Code_QUERY_EXECUTION_FAILED, errors.Wrap(err, "set statement timeout"))
		}
	}
	return &Tx{db: tx}, nil
}

// Finish commits the transaction when err is nil and rolls it back
// otherwise.
func (t *Tx) Finish(err error) {
	if err == nil {
		t.db.Commit()
	} else {
		t.db.Rollback()
	}
}

func (t *Tx) Query(stmt string, args ...any) (*analyzer.Rows, error) {
	rows, err := t.db.Raw(stmt, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &analyzer.Rows{Columns: columns, Values: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Values = append(result.Values, values)
	}
	return result, rows.Err()
}

func (d *DB) query(ctx context.Context, readOnly bool, stmt string, args ...any) (rows *analyzer.Rows, err error) {
	tx, err := d.Begin(ctx, readOnly)
	if err != nil {
		return nil, err
	}
	defer func() {
		tx.Finish(err)
	}()
	rows, err = tx.Query(stmt, args...)
	if err != nil {
		return nil, status.Wrap(status.Code_QUERY_EXECUTION_FAILED, err)
	}
	return rows, nil
}

// RunExplain runs query under EXPLAIN with the configured options and
// returns the plan document. With ANALYZE on the query is executed, inside a
// read-only transaction.
func (d *DB) RunExplain(ctx context.Context, query string) ([]byte, error) {
	stmt := fmt.Sprintf("EXPLAIN (%s) %s", d.explainOptions, query)
	rows, err := d.query(ctx, true, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows.Values) == 0 || len(rows.Values[0]) == 0 {
		return nil, status.New(status.Code_PLAN_UNAVAILABLE, "EXPLAIN returned no plan")
	}
	switch doc := rows.Values[0][0].(type) {
	case string:
		return []byte(doc), nil
	case []byte:
		return doc, nil
	default:
		return nil, status.Newf(status.Code_PLAN_UNAVAILABLE, "unexpected EXPLAIN output of type %T", doc)
	}
}

func (d *DB) RunQuery(ctx context.Context, stmt string) (*analyzer.Rows, error) {
	return d.query(ctx, true, stmt)
}

// GetColumns lists the columns of relation. An unqualified relation is
// looked up in the public schema.
func (d *DB) GetColumns(ctx context.Context, relation string) ([]string, error) {
	schema, table := defaultSchema, relation
	if i := strings.IndexByte(relation, '.'); i >= 0 {
		schema, table = relation[:i], relation[i+1:]
	}
	rows, err := d.query(ctx, true, columnsSQL, schema, table)
	if err != nil {
		return nil, err
	}
	columns := make([]string, 0, len(rows.Values))
	for _, row := range rows.Values {
		columns = append(columns, fmt.Sprint(row[0]))
	}
	return columns, nil
}

func (d *DB) GetIOStats(ctx context.Context) (*analyzer.Rows, error) {
	return d.query(ctx, true, ioStatsSQL)
}

func (d *DB) GetRelationBlockCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := d.query(ctx, true, blockCountSQL)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows.Values))
	for _, row := range rows.Values {
		blocks, err := asInt64(row[1])
		if err != nil {
			return nil, status.Wrap(status.Code_QUERY_EXECUTION_FAILED, errors.Wrapf(err, "block count of %v", row[0]))
		}
		counts[fmt.Sprint(row[0])] = blocks
	}
	return counts, nil
}

// ResetStats zeroes the statistics counters of the current database.
func (d *DB) ResetStats(ctx context.Context) error {
	_, err := d.query(ctx, false, resetStatsSQL)
	return err
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value %v of type %T", v, v)
	}
}

// Package metadb owns the shared Postgres connection for the metadata and
// tracker tables, including schema migrations.
package metadb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/NadeemAtDure/dhis2-core/lib/logging"
	"go.uber.org/zap"
)

type PostgresConfig struct {
	PostgresUser string `yaml:"user"`
	PostgresDB   string `yaml:"dbname"`
	PostgresHost string `yaml:"host"`
	PostgresPass string `yaml:"password"`
}

func (p PostgresConfig) MakeConnectionString() (string, error) {
	if p.PostgresUser == "" || p.PostgresDB == "" || p.PostgresHost == "" {
		return "", fmt.Errorf("incomplete postgres config: user, dbname and host are required")
	}
	connStr := fmt.Sprintf("user=%s dbname=%s host=%s password=%s sslmode=disable", p.PostgresUser, p.PostgresDB, p.PostgresHost, p.PostgresPass)
	return connStr, nil
}

type Params struct {
	Postgres           PostgresConfig
	SQLDriverName      string
	DisableAutoMigrate bool
}

// DB wraps the shared *sql.DB handle. The query and import layers receive
// the handle read-only; DB itself holds no mutable state beyond it.
type DB struct {
	db *sql.DB
}

func Open(ctx context.Context, params Params) (*DB, error) {
	logger := logging.FromContext(ctx)

	connStr, err := params.Postgres.MakeConnectionString()
	if err != nil {
		return nil, err
	}

	sqlDriverName := params.SQLDriverName
	if sqlDriverName == "" {
		sqlDriverName = "postgres"
	}

	rawDB, err := sql.Open(sqlDriverName, connStr)
	if err != nil {
		return nil, err
	}

	db := &DB{db: rawDB}

	if !params.DisableAutoMigrate {
		if err := db.runMigrations(ctx); err != nil {
			return nil, err
		}
	}

	logger.Info("metadb ready", zap.String("host", params.Postgres.PostgresHost), zap.String("database", params.Postgres.PostgresDB))

	return db, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Handle exposes the underlying connection pool to the query layers.
func (d *DB) Handle() *sql.DB {
	return d.db
}

type TableStats struct {
	SchemaName          string
	TableName           string
	PgRelationSize      int64
	PgIndexesSize       int64
	PgTotalRelationSize int64
	NLiveTuples         int64
	NDeadTuples         int64
}

type Stats struct {
	NumDataElements  int
	NumDataSets      int
	NumIndicators    int
	NumPrograms      int
	NumEvents        int
	NumTrackedEntity int

	TableStats map[string]TableStats

	TotalSizeAllIndexes   int64
	TotalSizeAllRelations int64
}

func (d *DB) GetStats(ctx context.Context) (*Stats, error) {
	ts, err := d.getTableStats(ctx)
	if err != nil {
		return nil, err
	}

	rv := Stats{
		TableStats: ts,
	}

	for _, t := range ts {
		rv.TotalSizeAllRelations += t.PgTotalRelationSize
		rv.TotalSizeAllIndexes += t.PgIndexesSize
	}

	counts := []struct {
		table string
		dest  *int
	}{
		{"dataelement", &rv.NumDataElements},
		{"dataset", &rv.NumDataSets},
		{"indicator", &rv.NumIndicators},
		{"program", &rv.NumPrograms},
		{"programstageinstance", &rv.NumEvents},
		{"trackedentityinstance", &rv.NumTrackedEntity},
	}

	for _, c := range counts {
		if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("error counting %s: %w", c.table, err)
		}
	}

	return &rv, nil
}

func (d *DB) getTableStats(ctx context.Context) (map[string]TableStats, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT
		tables.schemaname
		, tables.relname
		, pg_relation_size(tables.schemaname || '.' || tables.relname) AS pg_relation_size
		, pg_indexes_size(tables.schemaname || '.' || tables.relname) AS pg_indexes_size
		, pg_total_relation_size(tables.schemaname || '.' || tables.relname) AS pg_total_relation_size
		, tables.n_live_tup
		, tables.n_dead_tup
	FROM pg_stat_all_tables AS tables
	WHERE tables.schemaname = 'public'
	;
`)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	tableStats := map[string]TableStats{}
	for rows.Next() {
		var tableStatsEntry TableStats
		if err := rows.Scan(
			&tableStatsEntry.SchemaName,
			&tableStatsEntry.TableName,
			&tableStatsEntry.PgRelationSize,
			&tableStatsEntry.PgIndexesSize,
			&tableStatsEntry.PgTotalRelationSize,
			&tableStatsEntry.NLiveTuples,
			&tableStatsEntry.NDeadTuples,
		); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s.%s", tableStatsEntry.SchemaName, tableStatsEntry.TableName)
		tableStats[name] = tableStatsEntry
	}

	return tableStats, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firmsocial/firm/resource"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	sqlCreateObjectsTableSqlite = `CREATE TABLE IF NOT EXISTS objects(
                        partition text NOT NULL,
                        uri text NOT NULL,
                        object text NOT NULL,
                        PRIMARY KEY (partition, uri)
                        )`
	sqlCreateObjectsTablePostgres = `CREATE TABLE IF NOT EXISTS objects(
                        partition text NOT NULL,
                        uri text NOT NULL,
                        object jsonb NOT NULL,
                        PRIMARY KEY (partition, uri)
                        )`
)

// Dialect selects the placeholder style and JSON matching SQL for a driver.
type Dialect string

const (
	DialectSqlite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore is a partition stored in an objects(partition, uri, object) table.
// Multiple partitions share one database; each SQLStore binds a partition
// name. Put is DELETE+INSERT inside a transaction so a re-put replaces the
// prior document in its entirety.
type SQLStore struct {
	name    string
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens the database and ensures the objects table exists. The
// driver is "sqlite" (modernc) or "postgres" (lib/pq).
func OpenSQL(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	createSQL := sqlCreateObjectsTableSqlite
	if driver == "postgres" {
		createSQL = sqlCreateObjectsTablePostgres
	}
	if _, err := db.Exec(createSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create objects table: %w", err)
	}
	return db, nil
}

// NewSQLStore binds a partition name in an already-opened database.
func NewSQLStore(db *sql.DB, dialect Dialect, partition string) *SQLStore {
	return &SQLStore{name: partition, db: db, dialect: dialect}
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Get(ctx context.Context, uri string) (resource.Resource, error) {
	query := fmt.Sprintf(
		"SELECT object FROM objects WHERE partition = %s AND uri = %s",
		s.placeholder(1), s.placeholder(2))
	var data []byte
	err := s.db.QueryRowContext(ctx, query, s.name, uri).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource %s: %w", uri, err)
	}
	var res resource.Resource
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse stored resource %s: %w", uri, err)
	}
	return res, nil
}

func (s *SQLStore) IsStored(ctx context.Context, uri string) (bool, error) {
	query := fmt.Sprintf(
		"SELECT count(*) FROM objects WHERE partition = %s AND uri = %s",
		s.placeholder(1), s.placeholder(2))
	var count int
	if err := s.db.QueryRowContext(ctx, query, s.name, uri).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLStore) Put(ctx context.Context, res resource.Resource) error {
	id, ok := res["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("resource must have an 'id' property")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal resource %s: %w", id, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	deleteSQL := fmt.Sprintf(
		"DELETE FROM objects WHERE partition = %s AND uri = %s",
		s.placeholder(1), s.placeholder(2))
	if _, err := tx.ExecContext(ctx, deleteSQL, s.name, id); err != nil {
		return fmt.Errorf("failed to replace resource %s: %w", id, err)
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO objects (partition, uri, object) VALUES (%s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	if _, err := tx.ExecContext(ctx, insertSQL, s.name, id, string(data)); err != nil {
		return fmt.Errorf("failed to store resource %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLStore) Remove(ctx context.Context, uri string) error {
	query := fmt.Sprintf(
		"DELETE FROM objects WHERE partition = %s AND uri = %s",
		s.placeholder(1), s.placeholder(2))
	_, err := s.db.ExecContext(ctx, query, s.name, uri)
	return err
}

// Query compiles criteria to per-field JSON matching: the extracted scalar
// equals the value, or a JSON array at that path contains it. Field names
// are interpolated into the JSON path, so they are validated first; values
// always travel as bind parameters.
func (s *SQLStore) Query(ctx context.Context, criteria Criteria) ([]resource.Resource, error) {
	var clauses []string
	args := []any{s.name}
	n := 2
	for key, value := range criteria {
		if strings.HasPrefix(key, "@") {
			continue
		}
		if err := validateFieldName(key); err != nil {
			return nil, err
		}
		var clause string
		if s.dialect == DialectPostgres {
			clause = fmt.Sprintf(
				"(object ->> '%[1]s' = %[2]s OR (jsonb_typeof(object -> '%[1]s') = 'array' AND jsonb_exists(object -> '%[1]s', %[3]s)))",
				key, s.placeholder(n), s.placeholder(n+1))
		} else {
			clause = fmt.Sprintf(
				"(json_extract(object, '$.\"%[1]s\"') = %[2]s OR (json_type(object, '$.\"%[1]s\"') = 'array' AND EXISTS (SELECT 1 FROM json_each(object, '$.\"%[1]s\"') WHERE json_each.value = %[3]s)))",
				key, s.placeholder(n), s.placeholder(n+1))
		}
		clauses = append(clauses, clause)
		args = append(args, value, value)
		n += 2
	}
	query := fmt.Sprintf("SELECT object FROM objects WHERE partition = %s", s.placeholder(1))
	if len(clauses) > 0 {
		query += " AND " + strings.Join(clauses, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	var matches []resource.Resource
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var res resource.Resource
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, fmt.Errorf("failed to parse stored resource: %w", err)
		}
		matches = append(matches, res)
	}
	return matches, rows.Err()
}

func (s *SQLStore) QueryOne(ctx context.Context, criteria Criteria) (resource.Resource, error) {
	return queryOne(ctx, s, criteria)
}

func (s *SQLStore) Update(ctx context.Context, uri string, updates resource.Resource) error {
	return update(ctx, s, uri, updates)
}

func (s *SQLStore) Upsert(ctx context.Context, criteria Criteria, updates resource.Resource) error {
	return upsert(ctx, s, criteria, updates)
}

func validateFieldName(key string) error {
	for _, r := range key {
		if r == '\'' || r == '"' || r == '\\' || r == '$' {
			return fmt.Errorf("invalid criteria field name: %q", key)
		}
	}
	return nil
}

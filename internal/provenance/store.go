package provenance

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store provides durable storage for lineage records.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path. Use
// ":memory:" for an ephemeral store in tests.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Record is one lineage row: a computed metric, the evaluation it belongs
// to, and the inputs it was derived from.
type Record struct {
	ID     string
	EvalID string
	Target string
	Result string // decimal text, empty when Absent
	Absent bool
	Unit   string
	Inputs map[string]string // input name -> decimal text ("" for absent)
	Seq    int64
}

// WriteRecord inserts a lineage record. Duplicate IDs are silently
// ignored (idempotent writes); other constraint violations still error.
func (s *Store) WriteRecord(ctx context.Context, rec Record) error {
	inputsJSON, err := marshalInputs(rec.Inputs)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lineage (id, eval_id, target, result, absent, unit, inputs, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.EvalID,
		rec.Target,
		rec.Result,
		boolToInt(rec.Absent),
		rec.Unit,
		inputsJSON,
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// ReadLineage returns every record for target ordered by seq.
func (s *Store) ReadLineage(ctx context.Context, target string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, eval_id, target, result, absent, unit, inputs, seq
		FROM lineage WHERE target = ? ORDER BY seq
	`, target)
	if err != nil {
		return nil, fmt.Errorf("read lineage: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ReadEvaluation returns every record written during one evaluation,
// ordered by seq (i.e. in resolution order).
func (s *Store) ReadEvaluation(ctx context.Context, evalID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, eval_id, target, result, absent, unit, inputs, seq
		FROM lineage WHERE eval_id = ? ORDER BY seq
	`, evalID)
	if err != nil {
		return nil, fmt.Errorf("read evaluation: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			rec        Record
			absent     int
			inputsJSON string
		)
		if err := rows.Scan(&rec.ID, &rec.EvalID, &rec.Target, &rec.Result,
			&absent, &rec.Unit, &inputsJSON, &rec.Seq); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Absent = absent != 0
		if err := json.Unmarshal([]byte(inputsJSON), &rec.Inputs); err != nil {
			return nil, fmt.Errorf("decode inputs for %q: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// marshalInputs produces sorted-key JSON so identical input sets always
// serialize identically. encoding/json emits map keys in sorted order.
func marshalInputs(inputs map[string]string) (string, error) {
	if inputs == nil {
		inputs = map[string]string{}
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

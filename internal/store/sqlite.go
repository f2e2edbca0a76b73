package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id            TEXT PRIMARY KEY,
	endpoint      TEXT NOT NULL,
	categories    TEXT NOT NULL,
	cost_per_call REAL NOT NULL DEFAULT 0,
	discovered    INTEGER NOT NULL DEFAULT 0,
	active        INTEGER NOT NULL DEFAULT 1,
	registered_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reputation (
	source_id            TEXT PRIMARY KEY REFERENCES sources(id),
	total_queries        INTEGER NOT NULL DEFAULT 0,
	correct_count        INTEGER NOT NULL DEFAULT 0,
	wrong_count          INTEGER NOT NULL DEFAULT 0,
	avg_response_time_ms REAL NOT NULL DEFAULT 0,
	avg_confidence       REAL NOT NULL DEFAULT 0,
	success_rate         REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	question_hash TEXT NOT NULL,
	question_text TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	result        TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS proofs (
	hash       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_question_hash ON runs(question_hash);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSource(ctx context.Context, src model.Source) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, endpoint, categories, cost_per_call, discovered, active, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			endpoint = excluded.endpoint,
			categories = excluded.categories,
			cost_per_call = excluded.cost_per_call,
			discovered = excluded.discovered,
			active = excluded.active`,
		src.ID, src.Endpoint, strings.Join(src.Categories, ","), src.CostPerCall,
		src.Discovered, src.Active, src.RegisteredAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save source %s", src.ID)
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint, categories, cost_per_call, discovered, active, registered_at FROM sources`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var categories string
		if err := rows.Scan(&src.ID, &src.Endpoint, &categories, &src.CostPerCall,
			&src.Discovered, &src.Active, &src.RegisteredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		if categories != "" {
			src.Categories = strings.Split(categories, ",")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) SaveReputation(ctx context.Context, rec model.ReputationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reputation (source_id, total_queries, correct_count, wrong_count, avg_response_time_ms, avg_confidence, success_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET
			total_queries = excluded.total_queries,
			correct_count = excluded.correct_count,
			wrong_count = excluded.wrong_count,
			avg_response_time_ms = excluded.avg_response_time_ms,
			avg_confidence = excluded.avg_confidence,
			success_rate = excluded.success_rate`,
		rec.SourceID, rec.TotalQueries, rec.CorrectCount, rec.WrongCount,
		rec.AvgResponseTimeMs, rec.AvgConfidence, rec.SuccessRate,
	)
	return eris.Wrapf(err, "sqlite: save reputation %s", rec.SourceID)
}

func (s *SQLiteStore) ListReputation(ctx context.Context) ([]model.ReputationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, total_queries, correct_count, wrong_count, avg_response_time_ms, avg_confidence, success_rate FROM reputation`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reputation")
	}
	defer rows.Close()

	var recs []model.ReputationRecord
	for rows.Next() {
		var rec model.ReputationRecord
		if err := rows.Scan(&rec.SourceID, &rec.TotalQueries, &rec.CorrectCount,
			&rec.WrongCount, &rec.AvgResponseTimeMs, &rec.AvgConfidence, &rec.SuccessRate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reputation")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list reputation iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.ResearchRun) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, question_hash, question_text, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.QuestionHash, run.QuestionText, string(run.Status), now, now,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status model.RunStatus, result *model.ConsensusResult) error {
	var resultJSON any
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal result")
		}
		resultJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		string(status), resultJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.ResearchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question_hash, question_text, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		id,
	)

	var run model.ResearchRun
	var resultJSON sql.NullString
	err := row.Scan(&run.ID, &run.QuestionHash, &run.QuestionText, &run.Status,
		&resultJSON, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}

	if resultJSON.Valid {
		run.Result = &model.ConsensusResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), run.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &run, nil
}

func (s *SQLiteStore) SaveProof(ctx context.Context, hash string, payload []byte) error {
	// Content addressing makes duplicate hashes identical payloads.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proofs (hash, payload, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		hash, payload, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save proof %s", hash)
}

func (s *SQLiteStore) GetProof(ctx context.Context, hash string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM proofs WHERE hash = ?`, hash,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get proof %s", hash)
	}
	return payload, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id            TEXT PRIMARY KEY,
	endpoint      TEXT NOT NULL,
	categories    JSONB NOT NULL,
	cost_per_call DOUBLE PRECISION NOT NULL DEFAULT 0,
	discovered    BOOLEAN NOT NULL DEFAULT false,
	active        BOOLEAN NOT NULL DEFAULT true,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reputation (
	source_id            TEXT PRIMARY KEY REFERENCES sources(id),
	total_queries        BIGINT NOT NULL DEFAULT 0,
	correct_count        BIGINT NOT NULL DEFAULT 0,
	wrong_count          BIGINT NOT NULL DEFAULT 0,
	avg_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	success_rate         DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	question_hash TEXT NOT NULL,
	question_text TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	result        JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proofs (
	hash       TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_question_hash ON runs(question_hash);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSource(ctx context.Context, src model.Source) error {
	categories, err := json.Marshal(src.Categories)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal categories")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sources (id, endpoint, categories, cost_per_call, discovered, active, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			endpoint = excluded.endpoint,
			categories = excluded.categories,
			cost_per_call = excluded.cost_per_call,
			discovered = excluded.discovered,
			active = excluded.active`,
		src.ID, src.Endpoint, categories, src.CostPerCall,
		src.Discovered, src.Active, src.RegisteredAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save source %s", src.ID)
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, endpoint, categories, cost_per_call, discovered, active, registered_at FROM sources`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var categories []byte
		if err := rows.Scan(&src.ID, &src.Endpoint, &categories, &src.CostPerCall,
			&src.Discovered, &src.Active, &src.RegisteredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		if err := json.Unmarshal(categories, &src.Categories); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal categories")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) SaveReputation(ctx context.Context, rec model.ReputationRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reputation (source_id, total_queries, correct_count, wrong_count, avg_response_time_ms, avg_confidence, success_rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_id) DO UPDATE SET
			total_queries = excluded.total_queries,
			correct_count = excluded.correct_count,
			wrong_count = excluded.wrong_count,
			avg_response_time_ms = excluded.avg_response_time_ms,
			avg_confidence = excluded.avg_confidence,
			success_rate = excluded.success_rate`,
		rec.SourceID, rec.TotalQueries, rec.CorrectCount, rec.WrongCount,
		rec.AvgResponseTimeMs, rec.AvgConfidence, rec.SuccessRate,
	)
	return eris.Wrapf(err, "postgres: save reputation %s", rec.SourceID)
}

func (s *PostgresStore) ListReputation(ctx context.Context) ([]model.ReputationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_id, total_queries, correct_count, wrong_count, avg_response_time_ms, avg_confidence, success_rate FROM reputation`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reputation")
	}
	defer rows.Close()

	var recs []model.ReputationRecord
	for rows.Next() {
		var rec model.ReputationRecord
		if err := rows.Scan(&rec.SourceID, &rec.TotalQueries, &rec.CorrectCount,
			&rec.WrongCount, &rec.AvgResponseTimeMs, &rec.AvgConfidence, &rec.SuccessRate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reputation")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list reputation iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.ResearchRun) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, question_hash, question_text, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.QuestionHash, run.QuestionText, string(run.Status), now, now,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id string, status model.RunStatus, result *model.ConsensusResult) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal result")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, result = $2, updated_at = $3 WHERE id = $4`,
		string(status), resultJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.ResearchRun, error) {
	var run model.ResearchRun
	var resultJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, question_hash, question_text, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		id,
	).Scan(&run.ID, &run.QuestionHash, &run.QuestionText, &run.Status,
		&resultJSON, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}

	if len(resultJSON) > 0 {
		run.Result = &model.ConsensusResult{}
		if err := json.Unmarshal(resultJSON, run.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &run, nil
}

func (s *PostgresStore) SaveProof(ctx context.Context, hash string, payload []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO proofs (hash, payload, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (hash) DO NOTHING`,
		hash, payload, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save proof %s", hash)
}

func (s *PostgresStore) GetProof(ctx context.Context, hash string) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM proofs WHERE hash = $1`, hash,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get proof %s", hash)
	}
	return payload, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = sql.ErrNoRows

// fixed width so text comparison orders by time
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Run: one finished pipeline run.
type Run struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	InputHash string          `json:"input_hash"`
	ModelID   string          `json:"model_id"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

type RunRepo struct {
	DB     *sql.DB
	Driver string
}

func NewRunRepo(db *sql.DB, driver string) *RunRepo { return &RunRepo{DB: db, Driver: driver} }

// Save inserts run, filling ID and CreatedAt when empty.
func (r *RunRepo) Save(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()
	if len(run.Result) == 0 {
		run.Result = json.RawMessage("{}")
	}

	const q = `insert into runs (id, kind, input_hash, model_id, result_json, created_at) values (?,?,?,?,?,?)`
	_, err := r.DB.ExecContext(ctx, rebind(r.Driver, q),
		run.ID, run.Kind, run.InputHash, run.ModelID, string(run.Result), run.CreatedAt.Format(tsLayout))
	if err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

// Record marshals result and saves it as a new run.
func (r *RunRepo) Record(ctx context.Context, kind, inputHash, modelID string, result any) (string, error) {
	js, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal %s result: %w", kind, err)
	}
	run, err := r.Save(ctx, Run{Kind: kind, InputHash: inputHash, ModelID: modelID, Result: js})
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

func (r *RunRepo) Find(ctx context.Context, id string) (*Run, error) {
	const q = `select id, kind, input_hash, model_id, result_json, created_at from runs where id = ?`
	return r.scan(r.DB.QueryRowContext(ctx, rebind(r.Driver, q), id))
}

// FindLatestByHash returns the newest run of kind for inputHash. With maxAge > 0
// older runs count as missing.
func (r *RunRepo) FindLatestByHash(ctx context.Context, kind, inputHash string, maxAge time.Duration) (*Run, error) {
	const q = `
select id, kind, input_hash, model_id, result_json, created_at
from runs
where kind = ? and input_hash = ?
order by created_at desc
limit 1`
	run, err := r.scan(r.DB.QueryRowContext(ctx, rebind(r.Driver, q), kind, inputHash))
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(run.CreatedAt) > maxAge {
		return nil, ErrNotFound
	}
	return run, nil
}

// PurgeOlderThan deletes runs created before now-age and returns how many went.
func (r *RunRepo) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).UTC().Format(tsLayout)
	res, err := r.DB.ExecContext(ctx, rebind(r.Driver, `delete from runs where created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *RunRepo) scan(row *sql.Row) (*Run, error) {
	var (
		run    Run
		result string
		ts     string
	)
	if err := row.Scan(&run.ID, &run.Kind, &run.InputHash, &run.ModelID, &result, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	created, err := time.Parse(tsLayout, ts)
	if err != nil {
		return nil, fmt.Errorf("run %s: bad created_at %q: %w", run.ID, ts, err)
	}
	run.CreatedAt = created
	if !json.Valid([]byte(result)) {
		result = "{}"
	}
	run.Result = json.RawMessage(result)
	return &run, nil
}

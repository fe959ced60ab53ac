package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null"

	"github.com/Europeia/eurocore/internal/apierr"
)

// InsertDispatchJob inserts a new dispatch_queue row in status "queued"
// and returns the persisted row.
func (d *DB) InsertDispatchJob(ctx context.Context, action DispatchAction, payload any) (*DispatchJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling dispatch payload")
	}

	row := d.conn.QueryRowContext(ctx,
		`INSERT INTO dispatch_queue (type, payload, status) VALUES ($1, $2, $3)
		 RETURNING id, type, payload, status, dispatch_id, error, created_at, modified_at`,
		string(action), raw, StatusQueued,
	)

	return scanDispatchJob(row)
}

// GetDispatchJob fetches one dispatch_queue row by id for the polling
// endpoint. Returns apierr.ErrJobNotFound if absent.
func (d *DB) GetDispatchJob(ctx context.Context, id int64) (*DispatchJob, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, type, payload, status, dispatch_id, error, created_at, modified_at
		 FROM dispatch_queue WHERE id = $1`, id,
	)
	job, err := scanDispatchJob(row)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateDispatchJobSuccess moves a dispatch_queue row to its terminal
// success state.
func (d *DB) UpdateDispatchJobSuccess(ctx context.Context, id int64, dispatchID int32) error {
	_, err := d.conn.ExecContext(ctx,
		`UPDATE dispatch_queue SET status = $1, dispatch_id = $2, error = NULL, modified_at = $3 WHERE id = $4`,
		StatusSuccess, dispatchID, now(), id,
	)
	return errors.Wrap(err, "updating dispatch job to success")
}

// UpdateDispatchJobFailure moves a dispatch_queue row to its terminal
// failure state with the stringified cause.
func (d *DB) UpdateDispatchJobFailure(ctx context.Context, id int64, cause string) error {
	_, err := d.conn.ExecContext(ctx,
		`UPDATE dispatch_queue SET status = $1, error = $2, modified_at = $3 WHERE id = $4`,
		StatusFailure, cause, now(), id,
	)
	return errors.Wrap(err, "updating dispatch job to failure")
}

// InsertDispatchHeader records a newly created dispatch's header row
// (dispatches.is_active defaults true), run once per successful Add.
func (d *DB) InsertDispatchHeader(ctx context.Context, dispatchID int32, nationName string) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO dispatches (dispatch_id, nation) VALUES ($1, $2)`,
		dispatchID, nationName,
	)
	return errors.Wrap(err, "inserting dispatch header")
}

// InsertDispatchContent appends a new content-history row for a
// dispatch_id, run on every successful Add/Edit. Edits never rewrite
// history — each one is a new row.
func (d *DB) InsertDispatchContent(ctx context.Context, dispatchID int32, category, subcategory int16, title, text, createdBy string) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO dispatch_content (dispatch_id, category, subcategory, title, text, created_by)
		 VALUES ((SELECT id FROM dispatches WHERE dispatch_id = $1), $2, $3, $4, $5, $6)`,
		dispatchID, category, subcategory, title, text, createdBy,
	)
	return errors.Wrap(err, "inserting dispatch content")
}

// SetDispatchInactive flips dispatches.is_active to false on a successful
// Remove.
func (d *DB) SetDispatchInactive(ctx context.Context, dispatchID int32) error {
	_, err := d.conn.ExecContext(ctx,
		`UPDATE dispatches SET is_active = false WHERE dispatch_id = $1`,
		dispatchID,
	)
	return errors.Wrap(err, "setting dispatch inactive")
}

// DispatchContentCount reports the number of dispatch_content rows for a
// dispatch (one per successful add or edit).
func (d *DB) DispatchContentCount(ctx context.Context, dispatchID int32) (int, error) {
	var count int
	err := d.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dispatch_content WHERE dispatch_id = (SELECT id FROM dispatches WHERE dispatch_id = $1)`,
		dispatchID,
	).Scan(&count)
	return count, errors.Wrap(err, "counting dispatch content rows")
}

// LatestDispatchContentText returns the text column of the most recently
// inserted dispatch_content row for a dispatch_id.
func (d *DB) LatestDispatchContentText(ctx context.Context, dispatchID int32) (string, error) {
	var text string
	err := d.conn.QueryRowContext(ctx,
		`SELECT text FROM dispatch_content
		 WHERE dispatch_id = (SELECT id FROM dispatches WHERE dispatch_id = $1)
		 ORDER BY id DESC LIMIT 1`,
		dispatchID,
	).Scan(&text)
	return text, errors.Wrap(err, "reading latest dispatch content text")
}

// IsDispatchActive reports dispatches.is_active for a dispatch_id.
func (d *DB) IsDispatchActive(ctx context.Context, dispatchID int32) (bool, error) {
	var active bool
	err := d.conn.QueryRowContext(ctx,
		`SELECT is_active FROM dispatches WHERE dispatch_id = $1`, dispatchID,
	).Scan(&active)
	if err != nil {
		return false, errors.Wrap(err, "reading dispatch active state")
	}
	return active, nil
}

// DispatchJobStatusCounts reports the number of dispatch_queue rows in
// each terminal and non-terminal status, for metrics exposition.
func (d *DB) DispatchJobStatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM dispatch_queue GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "counting dispatch job statuses")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "scanning dispatch job status count")
		}
		counts[status] = count
	}
	return counts, errors.Wrap(rows.Err(), "iterating dispatch job status counts")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispatchJob(row rowScanner) (*DispatchJob, error) {
	var job DispatchJob
	var payload []byte
	var dispatchID null.Int
	var jobErr null.String

	err := row.Scan(&job.ID, &job.Type, &payload, &job.Status, &dispatchID, &jobErr, &job.CreatedAt, &job.ModifiedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, apierr.ErrJobNotFound
		}
		return nil, errors.Wrap(err, "scanning dispatch job")
	}

	job.Payload = payload
	job.DispatchID = dispatchID
	job.Error = jobErr
	return &job, nil
}

func now() time.Time { return time.Now().UTC() }

package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null"

	"github.com/Europeia/eurocore/internal/apierr"
)

// InsertRmbPostJob inserts a new rmbpost_queue row in status "queued".
func (d *DB) InsertRmbPostJob(ctx context.Context, nationName, region, content string) (*RmbPostJob, error) {
	row := d.conn.QueryRowContext(ctx,
		`INSERT INTO rmbpost_queue (nation, region, content, status) VALUES ($1, $2, $3, $4)
		 RETURNING id, nation, region, content, status, rmbpost_id, error, created_at, modified_at`,
		nationName, region, content, StatusQueued,
	)
	return scanRmbPostJob(row)
}

// GetRmbPostJob fetches one rmbpost_queue row by id for the polling
// endpoint.
func (d *DB) GetRmbPostJob(ctx context.Context, id int64) (*RmbPostJob, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, nation, region, content, status, rmbpost_id, error, created_at, modified_at
		 FROM rmbpost_queue WHERE id = $1`, id,
	)
	return scanRmbPostJob(row)
}

// UpdateRmbPostJobSuccess moves an rmbpost_queue row to its terminal
// success state, rewriting content to the NCR-encoded form actually
// transmitted so the stored row matches what the remote received.
func (d *DB) UpdateRmbPostJobSuccess(ctx context.Context, id int64, postID int32, content string) error {
	_, err := d.conn.ExecContext(ctx,
		`UPDATE rmbpost_queue SET status = $1, rmbpost_id = $2, content = $3, error = NULL, modified_at = $4 WHERE id = $5`,
		StatusSuccess, postID, content, now(), id,
	)
	return errors.Wrap(err, "updating rmbpost job to success")
}

// UpdateRmbPostJobError moves an rmbpost_queue row to its terminal error
// state with the stringified cause.
func (d *DB) UpdateRmbPostJobError(ctx context.Context, id int64, cause string) error {
	_, err := d.conn.ExecContext(ctx,
		`UPDATE rmbpost_queue SET status = $1, error = $2, modified_at = $3 WHERE id = $4`,
		StatusError, cause, now(), id,
	)
	return errors.Wrap(err, "updating rmbpost job to error")
}

// RmbPostJobStatusCounts reports the number of rmbpost_queue rows in each
// terminal and non-terminal status, for metrics exposition.
func (d *DB) RmbPostJobStatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM rmbpost_queue GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "counting rmbpost job statuses")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "scanning rmbpost job status count")
		}
		counts[status] = count
	}
	return counts, errors.Wrap(rows.Err(), "iterating rmbpost job status counts")
}

func scanRmbPostJob(row rowScanner) (*RmbPostJob, error) {
	var job RmbPostJob
	var postID null.Int
	var jobErr null.String

	err := row.Scan(&job.ID, &job.Nation, &job.Region, &job.Content, &job.Status, &postID, &jobErr, &job.CreatedAt, &job.ModifiedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, apierr.ErrJobNotFound
		}
		return nil, errors.Wrap(err, "scanning rmbpost job")
	}

	job.RmbPostID = postID
	job.Error = jobErr
	return &job, nil
}

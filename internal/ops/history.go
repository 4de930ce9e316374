package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/stasher/internal/db"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/sequencer"
	"github.com/hpungsan/stasher/internal/stash"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Outcome string // optional: success, failed, noop
	Limit   int    // default: 20, max: 100
	Offset  int    // default: 0
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Items      []stash.BatchRecord `json:"items"`
	Pagination Pagination          `json:"pagination"`
	Sort       string              `json:"sort"`
}

// History lists recorded batches, newest first.
func History(ctx context.Context, database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	switch sequencer.Outcome(input.Outcome) {
	case "", sequencer.OutcomeSuccess, sequencer.OutcomeFailed, sequencer.OutcomeNoop:
	default:
		return nil, errors.NewInvalidRequest("outcome must be one of: success, failed, noop")
	}

	limit, offset := page(input.Limit, input.Offset)

	records, total, err := db.NewStore(database).ListBatches(ctx, input.Outcome, limit, offset)
	if err != nil {
		return nil, err
	}

	return &HistoryOutput{
		Items: records,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(records) < total,
			Total:   total,
		},
		Sort: "started_at_desc",
	}, nil
}

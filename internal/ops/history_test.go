package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/stasher/internal/db"
	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/stash"
)

func TestHistory(t *testing.T) {
	ctx := context.Background()
	database, _ := testSetup(t)
	store := db.NewStore(database)

	for i, outcome := range []string{"success", "noop", "failed", "success"} {
		_, err := store.RecordBatch(ctx, stash.BatchRecord{StartedAt: int64(100 + i), Outcome: outcome})
		if err != nil {
			t.Fatalf("RecordBatch failed: %v", err)
		}
	}

	output, err := History(ctx, database, HistoryInput{Limit: 3})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(output.Items) != 3 || output.Items[0].StartedAt != 103 {
		t.Errorf("Items = %+v, want newest first", output.Items)
	}
	if !output.Pagination.HasMore || output.Pagination.Total != 4 {
		t.Errorf("Pagination = %+v", output.Pagination)
	}
	if output.Sort != "started_at_desc" {
		t.Errorf("Sort = %q", output.Sort)
	}

	output, err = History(ctx, database, HistoryInput{Outcome: "success"})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if output.Pagination.Total != 2 {
		t.Errorf("success Total = %d, want 2", output.Pagination.Total)
	}

	_, err = History(ctx, database, HistoryInput{Outcome: "exploded"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("History error = %v, want INVALID_REQUEST", err)
	}
}

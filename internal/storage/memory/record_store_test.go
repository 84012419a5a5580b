package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

func TestRecordStoreSaveAndLookup(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()
	ref := cnr.CaseReference("ABCD1234567890EF")

	rec := &cnr.CaseRecord{Reference: ref, Documents: []cnr.DocumentReference{{OrderDate: "30-01-2025"}}}
	require.NoError(t, store.SaveRecord(ctx, cnr.RecordEntry{JobID: "job-1", Reference: ref, Outcome: cnr.OutcomeComplete, Record: rec}))
	require.NoError(t, store.SaveRecord(ctx, cnr.RecordEntry{JobID: "job-2", Reference: ref, Outcome: cnr.OutcomeExhausted}))

	rec.Documents[0].OrderDate = "mutated"

	first, ok := store.Get("job-1")
	require.True(t, ok)
	require.Equal(t, "30-01-2025", first.Record.Documents[0].OrderDate)

	latest, ok := store.Latest(ref)
	require.True(t, ok)
	require.Equal(t, "job-2", latest.JobID)
	require.Equal(t, cnr.OutcomeExhausted, latest.Outcome)

	_, ok = store.Latest("ZZZZ1234567890EF")
	require.False(t, ok)
	require.NoError(t, store.Close())
}

func TestRecordStoreRequiresJobID(t *testing.T) {
	t.Parallel()

	require.Error(t, NewRecordStore().SaveRecord(context.Background(), cnr.RecordEntry{}))
}

package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) Database {
	t.Helper()
	orm, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	db := NewDatabase(orm)
	require.NoError(t, db.Initialize())
	return db
}

func TestAppendAssignsSequenceInOrder(t *testing.T) {
	db := setupDB(t)
	taskID := uuid.New()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.AppendDetail(taskID, EntryTypeExecution, "engine", map[string]int{"step": i}))
	}

	entries, err := db.Query(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		require.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}
}

func TestQueryFilters(t *testing.T) {
	db := setupDB(t)
	taskA := uuid.New()
	taskB := uuid.New()

	require.NoError(t, db.AppendDetail(taskA, EntryTypeClassification, "engine", map[string]string{"risk": "low"}))
	require.NoError(t, db.AppendDetail(taskA, EntryTypeApproval, "policy", nil))
	require.NoError(t, db.AppendDetail(taskB, EntryTypeClassification, "engine", map[string]string{"risk": "high"}))

	entries, err := db.Query(Filter{TaskID: &taskA})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = db.Query(Filter{Types: []EntryType{EntryTypeApproval}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "policy", entries[0].Actor)

	entries, err = db.Query(Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, EntryTypeClassification, entries[0].Type)
}

func TestQueryTimeBounds(t *testing.T) {
	db := setupDB(t)
	taskID := uuid.New()

	early := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Append(&Entry{TaskID: &taskID, Type: EntryTypeError, Actor: "engine", Timestamp: early}))
	require.NoError(t, db.Append(&Entry{TaskID: &taskID, Type: EntryTypeError, Actor: "engine"}))

	cutoff := time.Now().Add(-time.Hour)
	entries, err := db.Query(Filter{From: &cutoff})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = db.Query(Filter{To: &cutoff})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.WithinDuration(t, early, entries[0].Timestamp, time.Second)
}

func TestCountByTaskAndType(t *testing.T) {
	db := setupDB(t)
	taskID := uuid.New()

	require.NoError(t, db.AppendDetail(taskID, EntryTypeApproval, "alice", nil))
	require.NoError(t, db.AppendDetail(taskID, EntryTypeExecution, "engine", nil))

	count, err := db.CountByTaskAndType(taskID, EntryTypeApproval)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, err = db.CountByTaskAndType(uuid.New(), EntryTypeApproval)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

package migration

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestIsFirstRunBeforeSchemaExists(t *testing.T) {
	t.Parallel()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	first, err := IsFirstRun(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestMarkAppliedAndListRecords(t *testing.T) {
	t.Parallel()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(Schema)
	require.NoError(t, err)

	first, err := IsFirstRun(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, first)

	sum := Checksum([]byte("CREATE TABLE foo (id TEXT);"))
	assert.Len(t, sum, 16)

	require.NoError(t, MarkApplied(context.Background(), db, Record{Name: "0001_init", AppliedAt: 1700000000, Checksum: sum}))

	first, err = IsFirstRun(context.Background(), db)
	require.NoError(t, err)
	assert.False(t, first)

	records, err := Applied(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "0001_init", records[0].Name)
	assert.Equal(t, sum, records[0].Checksum)
}

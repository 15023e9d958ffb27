package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-session-sync/kvstore"
	"github.com/jrsteele09/go-session-sync/kvstore/sqlitestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*sqlitestore.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := sqlitestore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestBucketCRUD(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	creds := db.Bucket(sqlitestore.BucketCredentials)

	_, err := creds.Get(ctx, "mm-auth")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, creds.Put(ctx, "mm-auth", []byte(`{"a":1}`)))
	value, err := creds.Get(ctx, "mm-auth")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(value))

	require.NoError(t, creds.Delete(ctx, "mm-auth"))
	require.NoError(t, creds.Delete(ctx, "mm-auth"))
	_, err = creds.Get(ctx, "mm-auth")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestBucketsAreIsolatedAndOrdered(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	queue := db.Bucket(sqlitestore.BucketPendingWorkouts)
	creds := db.Bucket(sqlitestore.BucketCredentials)

	require.NoError(t, queue.Put(ctx, "z", []byte("1")))
	require.NoError(t, creds.Put(ctx, "x", []byte("c")))
	require.NoError(t, queue.Put(ctx, "a", []byte("2")))
	require.NoError(t, queue.Put(ctx, "z", []byte("3")))

	items, err := queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "z", items[0].Key)
	assert.Equal(t, []byte("3"), items[0].Value)
	assert.Equal(t, "a", items[1].Key)

	credItems, err := creds.List(ctx)
	require.NoError(t, err)
	assert.Len(t, credItems, 1)
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	db, path := openTestDB(t)
	require.NoError(t, db.Bucket(sqlitestore.BucketPendingWorkouts).Put(ctx, "id-1", []byte("payload")))
	require.NoError(t, db.Close())

	reopened, err := sqlitestore.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Bucket(sqlitestore.BucketPendingWorkouts).Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)
}

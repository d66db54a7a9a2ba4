package snapshots_test

import (
	"context"
	"errors"
	"testing"

	"github.com/2beens/gymstats-predictor/internal/gymstats/snapshots"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	store := snapshots.NewRedisStore(db)
	ctx := context.Background()

	blob := []byte(`{"weights":{"linear":0.5,"forest":0.3,"neural":0.2}}`)

	mock.ExpectSet("gymstats::snapshot::ensemble", blob, 0).SetVal("OK")
	require.NoError(t, store.Save(ctx, "ensemble", blob))

	mock.ExpectGet("gymstats::snapshot::ensemble").SetVal(string(blob))
	loaded, err := store.Load(ctx, "ensemble")
	require.NoError(t, err)
	assert.Equal(t, blob, loaded)

	mock.ExpectGet("gymstats::snapshot::missing").SetErr(redis.Nil)
	loaded, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, snapshots.ErrSnapshotNotFound)
	assert.Nil(t, loaded)

	mock.ExpectGet("gymstats::snapshot::broken").SetErr(errors.New("connection reset"))
	_, err = store.Load(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, snapshots.ErrSnapshotNotFound)
	assert.Contains(t, err.Error(), "connection reset")

	mock.ExpectSet("gymstats::snapshot::ensemble", blob, 0).SetErr(errors.New("read only replica"))
	err = store.Save(ctx, "ensemble", blob)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read only replica")

	assert.NoError(t, mock.ExpectationsWereMet())
}

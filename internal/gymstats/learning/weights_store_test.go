package learning_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/ensemble"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/gymstats/snapshots"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestWeightsStore_DiskRoundTrip(t *testing.T) {
	disk, err := snapshots.NewDiskStore(filepath.Join(t.TempDir(), "weights"))
	require.NoError(t, err)
	store := learning.NewWeightsStore(disk)
	ctx := context.Background()

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, snapshots.ErrSnapshotNotFound)

	state := learning.ModelState{
		Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Weights:   ensemble.Weights{Linear: 0.2, Forest: 0.5, Neural: 0.3},
		Validation: map[string]learning.FoldScore{
			"linear": {MSE: 1.2, R2: 0.8},
		},
		Version: "v1709287200000.1a2b3c4d",
	}
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestWeightsStore_CorruptState(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockStore(ctrl)
	mock.EXPECT().Load(gomock.Any(), learning.WeightsKey).Return([]byte(`{"weights":`), nil)

	_, err := learning.NewWeightsStore(mock).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal model state")
}

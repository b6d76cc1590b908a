package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/service"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store/memory"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/types"
)

func TestHeartbeatService_Record(t *testing.T) {
	ms := memory.New()
	ms.PutReader(store.Reader{ID: "gate-out-1", Direction: store.DirectionExit, Status: store.ReaderOffline})
	svc := service.NewHeartbeatService(ms)

	resp, err := svc.Record(context.Background(), " gate-out-1 ", types.HeartbeatRequest{FirmwareVersion: "1.0.0"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "gate-out-1", resp.ReaderID)
	assert.Equal(t, "exit", resp.Direction)
	assert.NotEmpty(t, resp.ServerTime)

	r, _ := ms.Reader("gate-out-1")
	assert.Equal(t, store.ReaderActive, r.Status)
	assert.NotNil(t, r.LastSeenAt)
}

func TestHeartbeatService_Record_Errors(t *testing.T) {
	svc := service.NewHeartbeatService(memory.New())

	_, err := svc.Record(context.Background(), "  ", types.HeartbeatRequest{})
	assert.ErrorIs(t, err, service.ErrInvalidReaderID)

	_, err = svc.Record(context.Background(), "ghost", types.HeartbeatRequest{})
	assert.ErrorIs(t, err, service.ErrReaderNotFound)
}

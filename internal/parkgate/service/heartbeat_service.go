package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/types"
)

type HeartbeatService struct {
	heartbeatStore store.HeartbeatStore
	now            func() time.Time
}

func NewHeartbeatService(hs store.HeartbeatStore) *HeartbeatService {
	return &HeartbeatService{heartbeatStore: hs, now: time.Now}
}

// Record stores a liveness report and marks the reader active.  The
// response echoes the reader's configured direction so a device can pick
// its gate role from the server.
func (s *HeartbeatService) Record(ctx context.Context, readerID string, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return types.HeartbeatResponse{}, ErrInvalidReaderID
	}

	now := s.now().UTC()
	rec := store.HeartbeatRecord{
		ReceivedAt: now,
		Request:    req,
	}

	reader, err := s.heartbeatStore.RecordHeartbeat(ctx, readerID, rec)
	if errors.Is(err, store.ErrNotFound) {
		return types.HeartbeatResponse{}, ErrReaderNotFound
	}
	if err != nil {
		return types.HeartbeatResponse{}, err
	}

	return types.HeartbeatResponse{
		OK:         true,
		ReaderID:   reader.ID,
		Direction:  string(reader.Direction),
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}

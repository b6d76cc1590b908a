package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/types"
)

func ptr[T any](v T) *T { return &v }

func TestEventRequest_KnownBytes(t *testing.T) {
	// card_uid "AB", action "exit"
	raw := []byte{0x0a, 0x02, 'A', 'B', 0x12, 0x04, 'e', 'x', 'i', 't'}

	assert.Equal(t, raw, MarshalEventRequest(types.EventRequest{CardUID: "AB", Action: "exit"}))

	got, err := UnmarshalEventRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, types.EventRequest{CardUID: "AB", Action: "exit"}, got)
}

func TestEventRequest_SkipsUnknownFields(t *testing.T) {
	b := MarshalEventRequest(types.EventRequest{CardUID: "04A1B2C3", Action: "enter"})
	b = protowire.AppendTag(b, 9, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)
	b = protowire.AppendTag(b, 10, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	got, err := UnmarshalEventRequest(b)
	require.NoError(t, err)
	assert.Equal(t, "04A1B2C3", got.CardUID)
	assert.Equal(t, "enter", got.Action)
}

func TestEventRequest_Malformed(t *testing.T) {
	_, err := UnmarshalEventRequest([]byte{0x0a, 0x05, 'A'})
	assert.Error(t, err, "truncated string")

	_, err = UnmarshalEventRequest([]byte{0x08, 0x01})
	assert.Error(t, err, "card_uid sent as varint")
}

func TestEventResponse_OptionalFields(t *testing.T) {
	billed := types.EventResponse{
		Result:          "granted",
		Message:         "Exit granted. Parked 61 min, fee due 10000",
		OwnerName:       ptr("Ana"),
		VehiclePlate:    ptr("B 1 AA"),
		DurationMinutes: ptr(int64(61)),
		Fee:             ptr(int64(10000)),
	}
	got, err := UnmarshalEventResponse(MarshalEventResponse(billed))
	require.NoError(t, err)
	assert.Equal(t, billed, got)

	notFound := types.EventResponse{
		Result:  "denied",
		Reason:  ptr("not_found"),
		Message: "Card not found in system",
	}
	got, err = UnmarshalEventResponse(MarshalEventResponse(notFound))
	require.NoError(t, err)
	assert.Equal(t, notFound, got)
	assert.Nil(t, got.OwnerName)
	assert.Nil(t, got.Fee)
}

func TestHeartbeatRequest_NegativeRSSI(t *testing.T) {
	req := types.HeartbeatRequest{
		FirmwareVersion: "1.4.2",
		UptimeSeconds:   86400,
		RSSIDbm:         ptr(-67),
		IP:              "10.0.0.12",
	}
	got, err := UnmarshalHeartbeatRequest(MarshalHeartbeatRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestHeartbeatResponse(t *testing.T) {
	resp := types.HeartbeatResponse{OK: true, ReaderID: "gate-in-1", Direction: "entry", ServerTime: "2026-03-02T09:00:00Z"}
	got, err := UnmarshalHeartbeatResponse(MarshalHeartbeatResponse(resp))
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

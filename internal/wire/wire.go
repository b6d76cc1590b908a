// Package wire is the protobuf encoding of the reader payloads.  Readers
// with little RAM send these instead of JSON; the messages are small and
// fixed, so they are encoded field by field with protowire.
//
//	EventRequest       1 card_uid (string)  2 action (string)
//	EventResponse      1 result  2 reason  3 message  4 owner_name
//	                   5 vehicle_plate (strings)  6 duration_minutes
//	                   7 fee (int64)
//	HeartbeatRequest   1 firmware_version (string)  2 uptime_s (uint64)
//	                   3 rssi_dbm (sint32)  4 ip (string)
//	HeartbeatResponse  1 ok (bool)  2 reader_id  3 direction
//	                   4 server_time (strings)
//
// Unset optional fields are omitted.  Unknown fields are skipped.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/types"
)

const ContentType = "application/x-protobuf"

// field is one decoded top-level field.  Only varint and bytes values are
// kept; other wire types are skipped by the caller.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	b   []byte
}

func parse(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("wire: field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) str() (string, error) {
	if f.typ != protowire.BytesType {
		return "", fmt.Errorf("wire: field %d: expected bytes, got wire type %d", f.num, f.typ)
	}
	return string(f.b), nil
}

func (f field) varint() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("wire: field %d: expected varint, got wire type %d", f.num, f.typ)
	}
	return f.v, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendOptString(b []byte, num protowire.Number, s *string) []byte {
	if s == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, *s)
}

func appendOptInt64(b []byte, num protowire.Number, v *int64) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*v))
}

// ── Events ───────────────────────────────────────────────────────────────────

func MarshalEventRequest(r types.EventRequest) []byte {
	var b []byte
	b = appendString(b, 1, r.CardUID)
	b = appendString(b, 2, r.Action)
	return b
}

func UnmarshalEventRequest(b []byte) (types.EventRequest, error) {
	var r types.EventRequest
	err := parse(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.CardUID, err = f.str()
		case 2:
			r.Action, err = f.str()
		}
		return err
	})
	return r, err
}

func MarshalEventResponse(r types.EventResponse) []byte {
	var b []byte
	b = appendString(b, 1, r.Result)
	b = appendOptString(b, 2, r.Reason)
	b = appendString(b, 3, r.Message)
	b = appendOptString(b, 4, r.OwnerName)
	b = appendOptString(b, 5, r.VehiclePlate)
	b = appendOptInt64(b, 6, r.DurationMinutes)
	b = appendOptInt64(b, 7, r.Fee)
	return b
}

func UnmarshalEventResponse(b []byte) (types.EventResponse, error) {
	var r types.EventResponse
	err := parse(b, func(f field) error {
		switch f.num {
		case 1, 2, 3, 4, 5:
			s, err := f.str()
			if err != nil {
				return err
			}
			switch f.num {
			case 1:
				r.Result = s
			case 2:
				r.Reason = &s
			case 3:
				r.Message = s
			case 4:
				r.OwnerName = &s
			case 5:
				r.VehiclePlate = &s
			}
		case 6, 7:
			u, err := f.varint()
			if err != nil {
				return err
			}
			v := int64(u)
			if f.num == 6 {
				r.DurationMinutes = &v
			} else {
				r.Fee = &v
			}
		}
		return nil
	})
	return r, err
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func MarshalHeartbeatRequest(r types.HeartbeatRequest) []byte {
	var b []byte
	b = appendString(b, 1, r.FirmwareVersion)
	if r.UptimeSeconds != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, r.UptimeSeconds)
	}
	if r.RSSIDbm != nil {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(*r.RSSIDbm)))
	}
	b = appendString(b, 4, r.IP)
	return b
}

func UnmarshalHeartbeatRequest(b []byte) (types.HeartbeatRequest, error) {
	var r types.HeartbeatRequest
	err := parse(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.FirmwareVersion, err = f.str()
		case 2:
			r.UptimeSeconds, err = f.varint()
		case 3:
			var u uint64
			if u, err = f.varint(); err == nil {
				v := int(int32(protowire.DecodeZigZag(u)))
				r.RSSIDbm = &v
			}
		case 4:
			r.IP, err = f.str()
		}
		return err
	})
	return r, err
}

func MarshalHeartbeatResponse(r types.HeartbeatResponse) []byte {
	var b []byte
	if r.OK {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	b = appendString(b, 2, r.ReaderID)
	b = appendString(b, 3, r.Direction)
	b = appendString(b, 4, r.ServerTime)
	return b
}

func UnmarshalHeartbeatResponse(b []byte) (types.HeartbeatResponse, error) {
	var r types.HeartbeatResponse
	err := parse(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var u uint64
			if u, err = f.varint(); err == nil {
				r.OK = protowire.DecodeBool(u)
			}
		case 2:
			r.ReaderID, err = f.str()
		case 3:
			r.Direction, err = f.str()
		case 4:
			r.ServerTime, err = f.str()
		}
		return err
	})
	return r, err
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/types"
	"github.com/BrandonDHaskell/parkgate/internal/wire"
)

const banner = "************************************************************"

type client struct {
	http     *http.Client
	base     string
	readerID string
	proto    bool
}

func newClient(server, readerID string, proto bool, timeout time.Duration) *client {
	return &client{
		http:     &http.Client{Timeout: timeout},
		base:     strings.TrimRight(server, "/"),
		readerID: readerID,
		proto:    proto,
	}
}

func (c *client) url(suffix string) string {
	return c.base + "/v1/readers/" + url.PathEscape(c.readerID) + suffix
}

func (c *client) Scan(ctx context.Context, uid, action string) (types.EventResponse, error) {
	req := types.EventRequest{CardUID: uid, Action: action}

	var resp types.EventResponse
	err := c.post(ctx, "/events", req, wire.MarshalEventRequest(req), func(b []byte) error {
		var err error
		resp, err = wire.UnmarshalEventResponse(b)
		return err
	}, &resp)
	return resp, err
}

func (c *client) Heartbeat(ctx context.Context) (types.HeartbeatResponse, error) {
	req := types.HeartbeatRequest{FirmwareVersion: "parkgate-reader"}

	var resp types.HeartbeatResponse
	err := c.post(ctx, "/heartbeat", req, wire.MarshalHeartbeatRequest(req), func(b []byte) error {
		var err error
		resp, err = wire.UnmarshalHeartbeatResponse(b)
		return err
	}, &resp)
	return resp, err
}

// post sends either the JSON or the protobuf form of a request and decodes
// the reply into jsonOut or through decodeProto.
func (c *client) post(ctx context.Context, suffix string, jsonIn any, protoIn []byte, decodeProto func([]byte) error, jsonOut any) error {
	var (
		body []byte
		ct   = "application/json"
		err  error
	)
	if c.proto {
		body, ct = protoIn, wire.ContentType
	} else if body, err = json.Marshal(jsonIn); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(suffix), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", ct)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var e types.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s (HTTP %d)", e.Error, e.Message, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if c.proto {
		return decodeProto(raw)
	}
	return json.Unmarshal(raw, jsonOut)
}

func printResult(w io.Writer, r types.EventResponse) {
	ts := time.Now().Format(time.DateTime)
	rule := strings.Repeat("=", 60)

	switch r.Result {
	case "granted":
		fmt.Fprintf(w, "%s\n[%s] ACCESS GRANTED\n%s\n", rule, ts, rule)
		fmt.Fprintf(w, "Owner:   %s\nVehicle: %s\n", orNA(r.OwnerName), orNA(r.VehiclePlate))
		if r.Fee != nil && r.DurationMinutes != nil {
			fmt.Fprintf(w, "Parked:  %d min\nFee:     %d\n", *r.DurationMinutes, *r.Fee)
		}
	case "denied":
		fmt.Fprintf(w, "%s\n[%s] ACCESS DENIED\n%s\n", rule, ts, rule)
		fmt.Fprintf(w, "Reason:  %s\n", orNA(r.Reason))
		if r.OwnerName != nil {
			fmt.Fprintf(w, "Owner:   %s\n", *r.OwnerName)
		}
	default:
		fmt.Fprintf(w, "[%s] unexpected result %q\n", ts, r.Result)
	}
	fmt.Fprintf(w, "Message: %s\n%s\n", r.Message, rule)
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

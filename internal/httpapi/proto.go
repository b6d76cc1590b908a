package httpapi

import (
	"io"
	"net/http"
	"strings"
)

// maxRequestBody caps the request body for both protobuf and JSON
// payloads.  A scan event is well under 200 bytes either way.
const maxRequestBody = 4096

// isProtobuf reports whether the request carries a protobuf payload.
func isProtobuf(r *http.Request) bool {
	ct, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	switch strings.TrimSpace(ct) {
	case "application/x-protobuf", "application/protobuf", "application/octet-stream":
		return true
	}
	return false
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
}

func writeProto(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

package transport

import (
	"bytes"
	"encoding/json"

	"github.com/klauspost/compress/gzip"

	"github.com/swarmsim/swarmsim/internal/swarm"
)

// Message kinds carried over the mock DataChannel (spec §4.4). These are
// never marshaled on the wire here — the transport is an in-process
// function-call bus — but every delay calculation is keyed to the byte
// length one of these would have had on a real channel.
const (
	MsgFileRequest      = "file-request"
	MsgFileResponse     = "file-response"
	MsgFileChunk        = "file-chunk"
	MsgFileComplete     = "file-complete"
	MsgManifestRequest  = "manifest-request"
	MsgManifestResponse = "manifest-response"
	MsgHeartbeat        = "heartbeat"
)

// FileRequest is the request-scoped message a peer sends to ask another
// for a hash.
type FileRequest struct {
	Hash      string `json:"hash"`
	RequestID string `json:"requestId"`
}

// FileResponse announces the shape of the chunked reply that follows.
type FileResponse struct {
	RequestID   string `json:"requestId"`
	Success     bool   `json:"success"`
	MimeType    string `json:"mimeType,omitempty"`
	TotalChunks int    `json:"totalChunks"`
	ByteLength  int    `json:"byteLength"`
}

// ManifestByteLength estimates the wire size of a manifest-response
// message by gzip-compressing its JSON encoding — the manifest struct
// itself is never persisted, only used to derive a realistic byte count
// for the transfer-delay formula (spec §3 Manifest, §4.4).
func ManifestByteLength(m swarm.Manifest) (int, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

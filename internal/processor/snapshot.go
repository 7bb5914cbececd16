package processor

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/zulandar/racetiming/internal/sessionstate"
)

// SnapshotInterval is the cadence at which a full SessionState snapshot is
// broadcast to late-joining subscribers (§4.B).
const SnapshotInterval = 5 * time.Second

var msgpackHandle = &codec.MsgpackHandle{}

// EncodeSnapshot serializes a SessionState both ways the wire protocol
// supports: MessagePack is the primary format consumers should prefer;
// gzip-compressed JSON is kept for the legacy clients that predate the
// MessagePack rollout (§4.B).
func EncodeSnapshot(s *sessionstate.SessionState) (msgpackBody []byte, gzipJSONBody []byte, err error) {
	var mpBuf bytes.Buffer
	enc := codec.NewEncoder(&mpBuf, msgpackHandle)
	if err := enc.Encode(s); err != nil {
		return nil, nil, fmt.Errorf("processor: encode msgpack snapshot: %w", err)
	}

	jsonBody, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("processor: encode json snapshot: %w", err)
	}

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	if _, err := w.Write(jsonBody); err != nil {
		return nil, nil, fmt.Errorf("processor: gzip snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, nil, fmt.Errorf("processor: gzip snapshot: %w", err)
	}

	return mpBuf.Bytes(), gz.Bytes(), nil
}

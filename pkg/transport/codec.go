package transport

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype this package registers with grpc's
// codec registry (google.golang.org/grpc/encoding). There is no .proto
// schema here: peer processes exchange the concrete raft.* request/
// response structs gob-encoded, the same way the teacher's generated pb
// types were exchanged, minus the generation step.
const codecName = "gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// gobCodec implements encoding.Codec (formerly grpc.Codec) for gob.
// Registering it lets grpc dispatch by content-subtype instead of the
// usual protobuf wire format; both ends of this package's Dial/Serve
// pair import it, so registration happens in every process that links
// pkg/transport.
type gobCodec struct{}

func (gobCodec) Name() string { return codecName }

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob unmarshal: %w", err)
	}
	return nil
}

// Package codec abstracts envelope serialization.
//
// The wire format is WebSocket text frames, so JSON is the only codec in
// production use. The interface stays pluggable: an alternate-keyspace relay
// could negotiate a different serialization without touching the transport
// or the correlation layer.
package codec

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec returns the codec for the given type. Unknown types fall back to
// JSON; a peer speaking something else fails envelope parsing downstream,
// which the dispatcher treats as droppable noise.
func GetCodec(codecType CodecType) Codec {
	return &JSONCodec{}
}

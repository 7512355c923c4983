package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// Client types announced during the handshake.
const (
	ClientCLI = "cli"
	ClientWeb = "web"
)

// Codec converts records to and from channel messages.
type Codec interface {
	Name() string
	Encode(Record) ([]byte, error)
	Decode([]byte) (Record, error)
}

// SelectCodec picks the wire codec for a pair of parties. Binary msgpack is
// only used when both sides are CLI clients; anything else gets JSON.
func SelectCodec(peerType, localType string) Codec {
	if peerType == ClientCLI && localType == ClientCLI {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// Decode sniffs the framing: JSON records are objects, msgpack records are
// maps and never start with '{'.
func Decode(data []byte) (Record, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return JSONCodec{}.Decode(data)
	}
	return MsgpackCodec{}.Decode(data)
}

// JSONCodec is the web-compatible encoding: one flat object per record with
// chunk bytes as a plain numeric array.
type JSONCodec struct{}

// ByteArray marshals as a JSON array of numbers instead of base64.
type ByteArray []byte

func (b ByteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, 2+len(b)*4)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

func (b *ByteArray) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

type jsonRecord struct {
	Type        string    `json:"type"`
	Name        string    `json:"name,omitempty"`
	Size        *int64    `json:"size,omitempty"`
	TotalChunks *int      `json:"totalChunks,omitempty"`
	MimeType    string    `json:"mimeType,omitempty"`
	ChunkIndex  *int      `json:"chunkIndex,omitempty"`
	Chunk       ByteArray `json:"chunk,omitempty"`
	Text        *string   `json:"text,omitempty"`
}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(r Record) ([]byte, error) {
	var w jsonRecord
	switch rec := r.(type) {
	case FileStart:
		w = jsonRecord{Type: TypeFileStart, Name: rec.Name, Size: &rec.Size, TotalChunks: &rec.TotalChunks, MimeType: rec.MimeType}
	case FileChunk:
		w = jsonRecord{Type: TypeFileChunk, ChunkIndex: &rec.ChunkIndex, Chunk: ByteArray(rec.Chunk)}
	case ChatText:
		w = jsonRecord{Type: TypeMessage, Text: &rec.Text}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownRecord, r)
	}
	return json.Marshal(w)
}

func (JSONCodec) Decode(data []byte) (Record, error) {
	var w jsonRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	var rec Record
	switch w.Type {
	case TypeFileStart:
		if w.Size == nil || w.TotalChunks == nil {
			return nil, fmt.Errorf("%w: file-start missing size or totalChunks", ErrMalformedRecord)
		}
		rec = FileStart{Name: w.Name, Size: *w.Size, TotalChunks: *w.TotalChunks, MimeType: w.MimeType}
	case TypeFileChunk:
		if w.ChunkIndex == nil {
			return nil, fmt.Errorf("%w: file-chunk missing chunkIndex", ErrMalformedRecord)
		}
		rec = FileChunk{ChunkIndex: *w.ChunkIndex, Chunk: []byte(w.Chunk)}
	case TypeMessage:
		if w.Text == nil {
			return nil, fmt.Errorf("%w: message missing text", ErrMalformedRecord)
		}
		rec = ChatText{Text: *w.Text}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecord, w.Type)
	}

	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// MsgpackCodec wraps each record in a typed envelope with a msgpack payload.
type MsgpackCodec struct{}

type envelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Encode(r Record) ([]byte, error) {
	switch r.(type) {
	case FileStart, FileChunk, ChatText:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownRecord, r)
	}

	payload, err := msgpack.Marshal(r)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(envelope{Type: r.Type(), Payload: payload})
}

func (MsgpackCodec) Decode(data []byte) (Record, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	var (
		rec Record
		err error
	)
	switch env.Type {
	case TypeFileStart:
		var v FileStart
		err = msgpack.Unmarshal(env.Payload, &v)
		rec = v
	case TypeFileChunk:
		var v FileChunk
		err = msgpack.Unmarshal(env.Payload, &v)
		rec = v
	case TypeMessage:
		var v ChatText
		err = msgpack.Unmarshal(env.Payload, &v)
		rec = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecord, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

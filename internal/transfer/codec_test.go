package transfer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestChunkCount(t *testing.T) {
	tests := []struct {
		size int64
		want int
	}{
		{0, 0},
		{1, 1},
		{16 * 1024, 1},
		{16*1024 + 1, 2},
		{40 * 1024, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkCount(tt.size, 16*1024), "size %d", tt.size)
	}
}

func TestJSONChunkIsNumericArray(t *testing.T) {
	data, err := JSONCodec{}.Encode(FileChunk{ChunkIndex: 4, Chunk: []byte{0, 7, 255}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"file-chunk","chunkIndex":4,"chunk":[0,7,255]}`, string(data))

	data, err = JSONCodec{}.Encode(FileStart{Name: "a.txt", Size: 5, TotalChunks: 1, MimeType: "text/plain"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"file-start","name":"a.txt","size":5,"totalChunks":1,"mimeType":"text/plain"}`, string(data))
}

func TestDecodeBrowserRecords(t *testing.T) {
	rec, err := Decode([]byte(`{"type":"file-start","name":"photo.png","size":20000,"totalChunks":2,"mimeType":"image/png"}`))
	require.NoError(t, err)
	assert.Equal(t, FileStart{Name: "photo.png", Size: 20000, TotalChunks: 2, MimeType: "image/png"}, rec)

	rec, err = Decode([]byte(`{"type":"file-chunk","chunk":[104,105],"chunkIndex":1}`))
	require.NoError(t, err)
	assert.Equal(t, FileChunk{ChunkIndex: 1, Chunk: []byte("hi")}, rec)

	rec, err = Decode([]byte(`{"type":"message","text":""}`))
	require.NoError(t, err)
	assert.Equal(t, ChatText{Text: ""}, rec)
}

func TestDecodeRejects(t *testing.T) {
	badEnvelope, err := msgpack.Marshal(envelope{Type: "file-delete", Payload: []byte{0x80}})
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		want error
	}{
		{"unknown tag", `{"type":"file-delete"}`, ErrUnknownRecord},
		{"unknown msgpack tag", string(badEnvelope), ErrUnknownRecord},
		{"not json", `{"type":`, ErrMalformedRecord},
		{"garbage", "\x01\x02", ErrMalformedRecord},
		{"chunk without index", `{"type":"file-chunk","chunk":[1]}`, ErrMalformedRecord},
		{"chunk without data", `{"type":"file-chunk","chunkIndex":0}`, ErrMalformedRecord},
		{"byte out of range", `{"type":"file-chunk","chunkIndex":0,"chunk":[300]}`, ErrMalformedRecord},
		{"negative index", `{"type":"file-chunk","chunkIndex":-1,"chunk":[1]}`, ErrMalformedRecord},
		{"start without size", `{"type":"file-start","name":"a","totalChunks":1}`, ErrMalformedRecord},
		{"start without name", `{"type":"file-start","name":"","size":1,"totalChunks":1}`, ErrMalformedRecord},
		{"chunks for empty file", `{"type":"file-start","name":"a","size":0,"totalChunks":2}`, ErrMalformedRecord},
		{"more chunks than bytes", `{"type":"file-start","name":"a","size":2,"totalChunks":3}`, ErrMalformedRecord},
		{"too few chunks for size", `{"type":"file-start","name":"a","size":1048576,"totalChunks":1}`, ErrMalformedRecord},
		{"oversized chunk", `{"type":"file-chunk","chunkIndex":0,"chunk":[` + strings.Repeat("0,", 64*1024) + `0]}`, ErrMalformedRecord},
		{"message without text", `{"type":"message"}`, ErrMalformedRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMsgpackRecordsDecodeBySniffing(t *testing.T) {
	records := []Record{
		FileStart{Name: "a.bin", Size: 3, TotalChunks: 1, MimeType: "application/octet-stream"},
		FileChunk{ChunkIndex: 0, Chunk: []byte{1, 2, 3}},
		ChatText{Text: "hello"},
	}
	for _, rec := range records {
		data, err := MsgpackCodec{}.Encode(rec)
		require.NoError(t, err)
		assert.NotEqual(t, byte('{'), data[0])

		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	}
}

func TestSelectCodec(t *testing.T) {
	tests := []struct {
		peer, local string
		want        string
	}{
		{ClientCLI, ClientCLI, "msgpack"},
		{ClientWeb, ClientCLI, "json"},
		{ClientCLI, ClientWeb, "json"},
		{"", ClientCLI, "json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectCodec(tt.peer, tt.local).Name(), "%q/%q", tt.peer, tt.local)
	}
}

// Package transfer moves files and chat text over an open peer channel.
//
// Files are split into fixed-size chunks and announced with a file-start
// record; the receiving side reassembles them by chunk index. Chat text
// travels as message records on the same ordered channel.
package transfer

import (
	"fmt"

	"github.com/BioHazard786/Roomdrop/internal/config"
)

// Record tags on the wire.
const (
	TypeFileStart = "file-start"
	TypeFileChunk = "file-chunk"
	TypeMessage   = "message"
)

// Record is one of FileStart, FileChunk or ChatText.
type Record interface {
	Type() string
	validate() error
}

// FileStart announces a file. TotalChunks is zero exactly when Size is zero.
type FileStart struct {
	Name        string `json:"name" msgpack:"name"`
	Size        int64  `json:"size" msgpack:"size"`
	TotalChunks int    `json:"totalChunks" msgpack:"totalChunks"`
	MimeType    string `json:"mimeType" msgpack:"mimeType"`
}

// FileChunk carries bytes [ChunkIndex*C, min((ChunkIndex+1)*C, Size)) of the
// announced file.
type FileChunk struct {
	ChunkIndex int    `json:"chunkIndex" msgpack:"chunkIndex"`
	Chunk      []byte `json:"chunk" msgpack:"chunk"`
}

// ChatText is a chat line.
type ChatText struct {
	Text string `json:"text" msgpack:"text"`
}

func (FileStart) Type() string { return TypeFileStart }
func (FileChunk) Type() string { return TypeFileChunk }
func (ChatText) Type() string  { return TypeMessage }

func (r FileStart) validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: file-start without name", ErrMalformedRecord)
	case r.Size < 0 || r.TotalChunks < 0:
		return fmt.Errorf("%w: negative size or chunk count", ErrMalformedRecord)
	case (r.Size == 0) != (r.TotalChunks == 0):
		return fmt.Errorf("%w: %d chunks for %d bytes", ErrMalformedRecord, r.TotalChunks, r.Size)
	case int64(r.TotalChunks) > r.Size:
		return fmt.Errorf("%w: %d chunks for %d bytes", ErrMalformedRecord, r.TotalChunks, r.Size)
	case r.TotalChunks < ChunkCount(r.Size, config.MaxChunkSize):
		return fmt.Errorf("%w: %d chunks cannot carry %d bytes", ErrMalformedRecord, r.TotalChunks, r.Size)
	}
	return nil
}

func (r FileChunk) validate() error {
	if r.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative chunk index %d", ErrMalformedRecord, r.ChunkIndex)
	}
	if r.Chunk == nil {
		return fmt.Errorf("%w: file-chunk without data", ErrMalformedRecord)
	}
	if len(r.Chunk) > config.MaxChunkSize {
		return fmt.Errorf("%w: %d byte chunk", ErrMalformedRecord, len(r.Chunk))
	}
	return nil
}

func (r ChatText) validate() error {
	return nil
}

// ChunkCount returns ceil(size / chunkSize).
func ChunkCount(size int64, chunkSize int) int {
	if size <= 0 {
		return 0
	}
	c := int64(chunkSize)
	return int((size + c - 1) / c)
}

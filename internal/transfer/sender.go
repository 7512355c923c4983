package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/BioHazard786/Roomdrop/internal/events"
	"github.com/BioHazard786/Roomdrop/internal/files"
	"github.com/BioHazard786/Roomdrop/internal/peer"
)

const (
	opRead = "read"
	opSend = "send"
)

// Source is a file waiting to be sent. Open is called once, when its turn
// in the queue comes.
type Source struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FileSource reads a validated local file.
func FileSource(info files.Info) Source {
	return Source{
		Name:     info.Name,
		MimeType: info.Type,
		Size:     info.Size,
		Open: func() (io.ReadCloser, error) {
			return os.Open(info.Path)
		},
	}
}

// BytesSource sends an in-memory buffer.
func BytesSource(name, mimeType string, data []byte) Source {
	return Source{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Enqueue appends files to the outbound queue. They are sent back to back
// in order by the engine's worker.
func (e *Engine) Enqueue(sources ...Source) error {
	if e.Closed() {
		return ErrEngineClosed
	}

	e.queueMu.Lock()
	e.queue = append(e.queue, sources...)
	e.queueMu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// Queued returns the number of files waiting behind the one in flight.
func (e *Engine) Queued() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return len(e.queue)
}

func (e *Engine) run() {
	for {
		src, ok := e.next()
		if !ok {
			return
		}

		err := e.SendFile(e.ctx, src)
		switch {
		case err == nil, errors.Is(err, ErrTransferAborted):
		case isReadError(err):
			slog.Error("file read failed", "file", src.Name, "error", err)
			e.events.OnNotify("Error reading file", events.KindError)
		default:
			slog.Error("file send failed", "file", src.Name, "error", err)
			e.events.OnNotify("Error sending file. Connection may be lost.", events.KindError)
		}
	}
}

func (e *Engine) next() (Source, bool) {
	for {
		if e.Closed() {
			return Source{}, false
		}

		e.queueMu.Lock()
		if len(e.queue) > 0 {
			src := e.queue[0]
			e.queue = e.queue[1:]
			e.queueMu.Unlock()
			return src, true
		}
		e.queueMu.Unlock()

		select {
		case <-e.wake:
		case <-e.ctx.Done():
			return Source{}, false
		}
	}
}

// SendFile sends one file and returns once its last chunk was handed to
// the channel. It returns ErrTransferAborted if ctx or the engine is
// cancelled part way; no event is raised in that case.
func (e *Engine) SendFile(ctx context.Context, src Source) error {
	e.fileMu.Lock()
	defer e.fileMu.Unlock()

	if e.aborted(ctx) {
		return NewFileError(opSend, src.Name, ErrTransferAborted)
	}

	rc, err := src.Open()
	if err != nil {
		return NewFileError(opRead, src.Name, err)
	}
	defer rc.Close()

	total := ChunkCount(src.Size, e.chunkSize)
	e.events.OnNotify(fmt.Sprintf("Sending: %s (%s)", src.Name, files.FormatSize(src.Size)), events.KindInfo)

	start := FileStart{Name: src.Name, Size: src.Size, TotalChunks: total, MimeType: src.MimeType}
	if err := e.send(start); err != nil {
		return e.sendFailure(ctx, src.Name, err)
	}

	m := newMeter(e.clock, total)
	e.events.OnProgress(src.Name, m.percent(), src.Size, 0)

	buf := make([]byte, e.chunkSize)
	for i := range total {
		if e.aborted(ctx) {
			return NewFileError(opSend, src.Name, ErrTransferAborted)
		}

		n := e.chunkSize
		if rest := src.Size - int64(i)*int64(e.chunkSize); rest < int64(n) {
			n = int(rest)
		}
		position := fmt.Sprintf("chunk %d of %d", i+1, total)
		if _, err := io.ReadFull(rc, buf[:n]); err != nil {
			return WrapError(opRead, src.Name, err, position)
		}

		if err := e.send(FileChunk{ChunkIndex: i, Chunk: buf[:n]}); err != nil {
			if e.aborted(ctx) {
				return NewFileError(opSend, src.Name, ErrTransferAborted)
			}
			return WrapError(opSend, src.Name, err, position)
		}

		m.add(n)
		e.events.OnProgress(src.Name, m.percent(), src.Size, m.speed())

		// Let chat and channel callbacks run between chunks.
		runtime.Gosched()
	}

	slog.Debug("file sent", "file", src.Name, "chunks", total, "codec", e.codec.Name())
	e.events.OnNotify(fmt.Sprintf("File sent: %s (%s)", src.Name, files.FormatElapsed(m.elapsed())), events.KindSuccess)
	return nil
}

// SendText sends a chat line and echoes it locally once written.
func (e *Engine) SendText(text string) error {
	if e.Closed() {
		return NewError("send message", peer.ErrChannelNotReady)
	}
	if err := e.send(ChatText{Text: text}); err != nil {
		return NewError("send message", err)
	}
	e.events.OnChatMessage(text, events.Sent)
	return nil
}

func (e *Engine) send(rec Record) error {
	data, err := e.codec.Encode(rec)
	if err != nil {
		return err
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	return e.conn.Send(data)
}

func (e *Engine) aborted(ctx context.Context) bool {
	return ctx.Err() != nil || e.Closed()
}

func (e *Engine) sendFailure(ctx context.Context, name string, err error) error {
	if e.aborted(ctx) {
		return NewFileError(opSend, name, ErrTransferAborted)
	}
	return NewFileError(opSend, name, err)
}

func isReadError(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && te.Op == opRead
}

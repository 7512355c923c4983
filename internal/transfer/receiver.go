package transfer

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/Roomdrop/internal/events"
	"github.com/BioHazard786/Roomdrop/internal/files"
)

// inbound is the single file being reassembled. Slots fill in as chunks
// arrive, so memory follows the bytes received rather than the declared count.
type inbound struct {
	start    FileStart
	slots    map[int][]byte
	received int
	meter    *meter
}

// HandleMessage decodes and applies one channel message. Undecodable
// records are logged and dropped.
func (e *Engine) HandleMessage(data []byte) {
	rec, err := Decode(data)
	if err != nil {
		slog.Warn("dropping peer record", "error", err)
		return
	}

	// Events are raised after the lock is released so handlers may call
	// back into the engine.
	for _, fn := range e.apply(rec) {
		fn()
	}
}

func (e *Engine) apply(rec Record) []func() {
	e.recvMu.Lock()
	defer e.recvMu.Unlock()

	if e.closed {
		return nil
	}
	switch r := rec.(type) {
	case FileStart:
		return e.begin(r)
	case FileChunk:
		return e.store(r)
	case ChatText:
		return []func(){func() { e.events.OnChatMessage(r.Text, events.Received) }}
	}
	return nil
}

func (e *Engine) begin(r FileStart) []func() {
	if prev := e.inbound; prev != nil {
		slog.Warn("abandoning unfinished transfer", "file", prev.start.Name,
			"received", prev.received, "total", prev.start.TotalChunks)
	}

	in := &inbound{
		start: r,
		slots: make(map[int][]byte),
		meter: newMeter(e.clock, r.TotalChunks),
	}
	e.inbound = in

	emit := []func(){
		func() {
			e.events.OnNotify(fmt.Sprintf("Receiving: %s (%s)", r.Name, files.FormatSize(r.Size)), events.KindInfo)
		},
	}
	if r.TotalChunks == 0 {
		return append(emit, e.complete(in)...)
	}

	return append(emit, func() { e.events.OnProgress(r.Name, 0, r.Size, 0) })
}

func (e *Engine) store(r FileChunk) []func() {
	in := e.inbound
	switch {
	case in == nil:
		slog.Debug("dropping chunk without active transfer", "index", r.ChunkIndex)
		return nil
	case r.ChunkIndex >= in.start.TotalChunks:
		slog.Warn("dropping chunk out of range", "file", in.start.Name, "index", r.ChunkIndex, "total", in.start.TotalChunks)
		return nil
	case in.slots[r.ChunkIndex] != nil:
		slog.Debug("dropping duplicate chunk", "file", in.start.Name, "index", r.ChunkIndex)
		return nil
	}

	in.slots[r.ChunkIndex] = bytes.Clone(r.Chunk)
	in.received++
	in.meter.add(len(r.Chunk))

	name, size := in.start.Name, in.start.Size
	percent, speed := in.meter.percent(), in.meter.speed()
	emit := []func(){func() { e.events.OnProgress(name, percent, size, speed) }}

	if in.received == in.start.TotalChunks {
		emit = append(emit, e.complete(in)...)
	}
	return emit
}

// complete assembles the artifact and clears the slot.
func (e *Engine) complete(in *inbound) []func() {
	size := 0
	for _, chunk := range in.slots {
		size += len(chunk)
	}
	artifact := make([]byte, 0, size)
	for i := 0; i < in.start.TotalChunks; i++ {
		artifact = append(artifact, in.slots[i]...)
	}
	e.inbound = nil

	start := in.start
	elapsed := in.meter.elapsed()
	slog.Debug("file received", "file", start.Name, "bytes", len(artifact))

	return []func(){
		func() {
			e.events.OnNotify(fmt.Sprintf("Received: %s (%s)", start.Name, files.FormatElapsed(elapsed)), events.KindInfo)
		},
		func() { e.events.OnTransferComplete(artifact, start.Name, start.MimeType) },
		func() { e.events.OnNotify("File received: "+start.Name, events.KindSuccess) },
	}
}

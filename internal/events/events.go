// Package events defines the notifications the session core raises for the
// user-facing layer (terminal UI, tests, or any other front end).
package events

// Kind classifies a notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Direction tells whether a chat line was sent or received locally.
type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
)

// Handler receives session events. Implementations must be safe for use from
// multiple goroutines; events may arrive from relay and peer callbacks.
type Handler interface {
	OnStatusChange(text string)
	OnNotify(text string, kind Kind)
	OnChatMessage(text string, dir Direction)
	OnProgress(fileName string, percent float64, totalSize int64, speed float64)
	OnTransferComplete(artifact []byte, fileName, mimeType string)
}

// Funcs adapts optional closures to a Handler. Nil fields are ignored.
type Funcs struct {
	Status   func(text string)
	Notify   func(text string, kind Kind)
	Chat     func(text string, dir Direction)
	Progress func(fileName string, percent float64, totalSize int64, speed float64)
	Complete func(artifact []byte, fileName, mimeType string)
}

func (f Funcs) OnStatusChange(text string) {
	if f.Status != nil {
		f.Status(text)
	}
}

func (f Funcs) OnNotify(text string, kind Kind) {
	if f.Notify != nil {
		f.Notify(text, kind)
	}
}

func (f Funcs) OnChatMessage(text string, dir Direction) {
	if f.Chat != nil {
		f.Chat(text, dir)
	}
}

func (f Funcs) OnProgress(fileName string, percent float64, totalSize int64, speed float64) {
	if f.Progress != nil {
		f.Progress(fileName, percent, totalSize, speed)
	}
}

func (f Funcs) OnTransferComplete(artifact []byte, fileName, mimeType string) {
	if f.Complete != nil {
		f.Complete(artifact, fileName, mimeType)
	}
}

// Nop discards every event.
var Nop Handler = Funcs{}

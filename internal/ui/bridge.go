package ui

import (
	"log/slog"
	"sync"

	"github.com/BioHazard786/Roomdrop/internal/events"
	"github.com/BioHazard786/Roomdrop/internal/files"
	tea "github.com/charmbracelet/bubbletea"
)

type statusMsg string

type notifyMsg struct {
	text string
	kind events.Kind
}

type chatMsg struct {
	text string
	dir  events.Direction
}

type progressMsg struct {
	name    string
	percent float64
	size    int64
	speed   float64
}

type savedMsg struct {
	name string
	path string
	err  error
}

// ClosedMsg tells the chat view the session ended.
type ClosedMsg struct{}

// Bridge turns session events into bubbletea messages. Events raised before
// the program runs are buffered; progress updates are dropped rather than
// blocking a transfer when the buffer is full.
type Bridge struct {
	msgs      chan tea.Msg
	done      chan struct{}
	once      sync.Once
	outputDir string
	summary   *Summary
}

// NewBridge saves received files under outputDir; an empty dir keeps them
// in memory only.
func NewBridge(outputDir string, summary *Summary) *Bridge {
	if summary == nil {
		summary = NewSummary()
	}
	return &Bridge{
		msgs:      make(chan tea.Msg, 256),
		done:      make(chan struct{}),
		outputDir: outputDir,
		summary:   summary,
	}
}

// Attach forwards buffered and future messages to p.
func (b *Bridge) Attach(p *tea.Program) {
	go func() {
		for {
			select {
			case msg := <-b.msgs:
				p.Send(msg)
			case <-b.done:
				return
			}
		}
	}()
}

// Close stops forwarding.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

// SessionClosed queues a ClosedMsg.
func (b *Bridge) SessionClosed() {
	b.push(ClosedMsg{})
}

func (b *Bridge) push(msg tea.Msg) {
	select {
	case b.msgs <- msg:
	case <-b.done:
	}
}

func (b *Bridge) OnStatusChange(text string) {
	b.push(statusMsg(text))
}

func (b *Bridge) OnNotify(text string, kind events.Kind) {
	b.push(notifyMsg{text: text, kind: kind})
}

func (b *Bridge) OnChatMessage(text string, dir events.Direction) {
	b.summary.AddMessage()
	b.push(chatMsg{text: text, dir: dir})
}

func (b *Bridge) OnProgress(fileName string, percent float64, totalSize int64, speed float64) {
	msg := progressMsg{name: fileName, percent: percent, size: totalSize, speed: speed}
	if percent >= 100 {
		b.push(msg)
		return
	}
	select {
	case b.msgs <- msg:
	default:
	}
}

func (b *Bridge) OnTransferComplete(artifact []byte, fileName, mimeType string) {
	if b.outputDir == "" {
		b.summary.AddReceived(int64(len(artifact)), "")
		b.push(savedMsg{name: fileName})
		return
	}

	path, err := files.Save(b.outputDir, fileName, artifact)
	if err != nil {
		slog.Error("saving received file failed", "file", fileName, "error", err)
		b.push(savedMsg{name: fileName, err: err})
		return
	}
	slog.Info("received file saved", "file", fileName, "path", path, "type", mimeType)
	b.summary.AddReceived(int64(len(artifact)), path)
	b.push(savedMsg{name: fileName, path: path})
}

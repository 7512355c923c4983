package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/BioHazard786/Roomdrop/internal/files"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Summary accumulates what a session moved. Safe for concurrent use.
type Summary struct {
	mu            sync.Mutex
	start         time.Time
	sent          int
	sentBytes     int64
	received      int
	receivedBytes int64
	saved         []string
	messages      int
}

func NewSummary() *Summary {
	return &Summary{start: time.Now()}
}

func (s *Summary) AddSent(n int, bytes int64) {
	s.mu.Lock()
	s.sent += n
	s.sentBytes += bytes
	s.mu.Unlock()
}

func (s *Summary) AddReceived(bytes int64, savedPath string) {
	s.mu.Lock()
	s.received++
	s.receivedBytes += bytes
	if savedPath != "" {
		s.saved = append(s.saved, savedPath)
	}
	s.mu.Unlock()
}

func (s *Summary) AddMessage() {
	s.mu.Lock()
	s.messages++
	s.mu.Unlock()
}

// Saved returns the paths of received files written to disk.
func (s *Summary) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

// View renders the summary as a go-pretty table.
func (s *Summary) View() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetTitle("Session Summary")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Files sent", fmt.Sprintf("%d (%s)", s.sent, files.FormatSize(s.sentBytes))},
		{"Files received", fmt.Sprintf("%d (%s)", s.received, files.FormatSize(s.receivedBytes))},
		{"Chat messages", s.messages},
		{"Duration", files.FormatDuration(time.Since(s.start))},
	})
	return t.Render()
}

func (s *Summary) Render() {
	fmt.Println(s.View())
}

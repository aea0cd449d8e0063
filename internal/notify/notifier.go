package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/example/timetable-scheduler/internal/messaging"
)

// Sink is an append-only destination for rendered notifications.
type Sink interface {
	Append(block string) error
}

// FileSink appends notification blocks to a text file, creating it on first
// use. Appends are serialized so concurrent writers cannot interleave blocks.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink wires a sink for the given path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Append writes one block to the end of the file.
func (s *FileSink) Append(block string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open notification sink: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(block); err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	return nil
}

// Notifier renders consumed events and appends them to the sink. A failed
// append is logged and the consumer loop carries on.
type Notifier struct {
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

// NewNotifier wires a notifier writing to the given sink.
func NewNotifier(sink Sink, now func() time.Time, logger *slog.Logger) *Notifier {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{sink: sink, now: now, logger: logger}
}

// Handle implements the messaging consumer contract.
func (n *Notifier) Handle(_ context.Context, event messaging.DomainEvent) {
	block := fmt.Sprintf("[%s]\n%s\n", n.now().UTC().Format(time.RFC3339), Render(event))
	if err := n.sink.Append(block); err != nil {
		n.logger.Error("failed to append notification", "type", event.Type, "schedule_id", event.ScheduleID, "error", err)
	}
}

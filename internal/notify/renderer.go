package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/timetable-scheduler/internal/messaging"
)

const boxRule = "=========================================="

// Render formats one domain event as a fixed human-readable block: a boxed
// header followed by key/value lines.
func Render(event messaging.DomainEvent) string {
	var b strings.Builder

	b.WriteString(boxRule + "\n")
	b.WriteString("  " + headerFor(event) + "\n")
	b.WriteString(boxRule + "\n")

	writeField(&b, "Schedule ID", scheduleIDLabel(event.ScheduleID))
	writeField(&b, "Occurred", event.Timestamp.UTC().Format(time.RFC3339))

	switch event.Type {
	case messaging.EventTypeUpdated:
		if event.Updated != nil {
			writeField(&b, "Change", string(event.Updated.Change))
		}
	case messaging.EventTypeOptimized:
		if event.Optimized != nil {
			writeField(&b, "Status", string(event.Optimized.Status))
			if event.Optimized.Status == messaging.OptimizationCompleted {
				writeField(&b, "Windows reduced", fmt.Sprintf("%d", event.Optimized.WindowsReduced))
				writeField(&b, "Conflicts resolved", fmt.Sprintf("%d", event.Optimized.ConflictsResolved))
				writeField(&b, "Load balance", fmt.Sprintf("%.1f", event.Optimized.LoadBalanceScore))
				writeField(&b, "Duration", fmt.Sprintf("%dms", event.Optimized.DurationMillis))
			}
		}
	case messaging.EventTypeConflict:
		if event.Conflict != nil {
			writeField(&b, "Scope", event.Conflict.Scope)
			for _, conflict := range event.Conflict.Conflicts {
				writeField(&b, "Conflict", conflict)
			}
		}
	}

	if event.Details != "" {
		writeField(&b, "Details", event.Details)
	}

	return b.String()
}

func headerFor(event messaging.DomainEvent) string {
	switch event.Type {
	case messaging.EventTypeUpdated:
		return "SCHEDULE UPDATED"
	case messaging.EventTypeOptimized:
		return "SCHEDULE OPTIMIZED"
	case messaging.EventTypeConflict:
		return "SCHEDULE CONFLICT"
	}
	return "SCHEDULE EVENT"
}

func scheduleIDLabel(id int64) string {
	if id == 0 {
		return "(not created)"
	}
	return fmt.Sprintf("%d", id)
}

func writeField(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "  %-18s : %s\n", name, value)
}

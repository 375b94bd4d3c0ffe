package domain

// DispatchStatus is the lifecycle state of a dispatch log entry.
// Processing is initial, Sent is terminal.
type DispatchStatus string

const (
	StatusProcessing DispatchStatus = "Processing"
	StatusSent       DispatchStatus = "Sent"
)

// DispatchLogEntry records one simulated notification.
type DispatchLogEntry struct {
	ID        string         `json:"id"`
	AgentName string         `json:"agent"`
	Action    string         `json:"action"`
	Timestamp string         `json:"timestamp"`
	Status    DispatchStatus `json:"status"`
}

// TimestampLayout is the display layout for DispatchLogEntry.Timestamp.
const TimestampLayout = "3:04:05 PM"

// Action label prefixes.
const (
	AutoActionPrefix  = "Auto-SMS: "
	ShareActionPrefix = "Shared Alert: "
)

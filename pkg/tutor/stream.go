package tutor

// StreamEvent represents a single decoded record from the streaming chat
// endpoint. All fields are optional on the wire; checked in this order when
// present: Error, Done, Content.
type StreamEvent struct {
	Content   string `json:"content,omitempty"`   // Incremental token(s) to append
	Done      bool   `json:"done,omitempty"`      // Marks turn completion
	Timestamp string `json:"timestamp,omitempty"` // ISO instant for the finalized message
	Error     string `json:"error,omitempty"`     // Hard failure of this turn
}

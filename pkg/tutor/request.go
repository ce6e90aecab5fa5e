package tutor

// TurnRequest represents one conversation turn sent to the chat endpoints.
// At most one TurnRequest is outstanding per session at a time.
type TurnRequest struct {
	StudentID string `json:"student_id"` // Student the conversation belongs to
	Message   string `json:"message"`    // The student's message text
}

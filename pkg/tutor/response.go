package tutor

// ChatResponse represents a buffered (non-streaming) chat reply.
type ChatResponse struct {
	StudentID string    `json:"student_id"`
	Message   string    `json:"message"`  // Echo of the student's message
	Response  string    `json:"response"` // The tutor's full reply
	Timestamp Timestamp `json:"timestamp"`
}

// ChatHistory represents the persisted transcript for one student.
type ChatHistory struct {
	StudentID     string    `json:"student_id"`
	Messages      []Message `json:"messages"`
	TotalMessages int       `json:"total_messages"`
}

// ChatStats represents aggregate conversation statistics across students.
type ChatStats struct {
	ActiveConversations int            `json:"active_conversations"`
	TotalMessages       int            `json:"total_messages"`
	MessagesPerStudent  map[string]int `json:"messages_per_student,omitempty"`
}

// ClearResponse acknowledges a history deletion.
type ClearResponse struct {
	Status    string `json:"status"`
	StudentID string `json:"student_id"`
}

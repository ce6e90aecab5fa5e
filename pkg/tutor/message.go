package tutor

// Roles used by the Tutor Service conversation log.
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
)

// Message represents a single message in a conversation transcript.
// Messages are immutable once appended; arrival order, not timestamp
// order, is authoritative.
type Message struct {
	Role      string    `json:"role"`      // "student" or "tutor"
	Content   string    `json:"content"`   // The message text
	Timestamp Timestamp `json:"timestamp"` // When the message was recorded
}

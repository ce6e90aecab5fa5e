package tutor

// StudentProfile represents a student record held by the Tutor Service.
type StudentProfile struct {
	StudentID      string   `json:"student_id"`
	Name           string   `json:"name"`
	Degree         string   `json:"degree"`
	Major          string   `json:"major,omitempty"`
	CompletedUnits []string `json:"completed_units"`
	EnrolledUnits  []string `json:"enrolled_units"`
}

package tutor

// TutorReport represents a generated study report for one unit. The report
// is produced entirely by the Tutor Service; this client only renders it.
type TutorReport struct {
	UnitCode            string           `json:"unit_code"`
	Summary             string           `json:"summary"`
	Difficulty          string           `json:"difficulty"` // "easy", "medium", "hard"
	CoreSkills          []string         `json:"core_skills"`
	KeyConcepts         []KeyConcept     `json:"key_concepts"`
	StudyPlan           []WeeklyTask     `json:"study_plan"`
	Quizzes             []Quiz           `json:"quizzes"`
	PublicResources     []PublicResource `json:"public_resources"`
	StudentSpecificNote string           `json:"student_specific_notes"`
	Meta                ReportMeta       `json:"meta"`
}

// KeyConcept pairs a concept name with a short explanation.
type KeyConcept struct {
	Concept string `json:"concept"`
	Explain string `json:"explain"`
}

// WeeklyTask lists the study tasks for one week of the plan.
type WeeklyTask struct {
	Week  int      `json:"week"`
	Tasks []string `json:"tasks"`
}

// Quiz is a single practice question with its answer.
type Quiz struct {
	Question   string `json:"q"`
	Answer     string `json:"a"`
	Difficulty string `json:"difficulty"`
}

// PublicResource points at external study material.
type PublicResource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"` // "video", "article", "tutorial"
	Why   string `json:"why"`
}

// ReportMeta carries report provenance.
type ReportMeta struct {
	Source      string `json:"source"`
	GeneratedAt string `json:"generated_at"`
}

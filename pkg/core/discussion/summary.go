package discussion

import "time"

// Summary is the optional end-of-session synthesis artifact
// Controller.Summarize produces once a room reaches Stopped. It plays the
// same role the teacher's FinalDebateReport plays for a debate, generalized
// from financial-assumption extraction to the open-ended key
// points/open-questions this engine's undifferentiated discussions need
// instead.
type Summary struct {
	ExecutiveSummary string    `json:"executive_summary"`
	KeyPoints        []string  `json:"key_points,omitempty"`
	OpenQuestions    []string  `json:"open_questions,omitempty"`
	GeneratedAt      time.Time `json:"generated_at"`
}

package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionGoTo   Action = "goto"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestPayload is the superset of all client messages; Action selects
// which fields are meaningful.
type RequestPayload struct {
	Action Action `json:"action"`
	QID    string `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"`
	Index  int    `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSaved    Event = "saved"
	EventFeedback Event = "feedback"
	EventGraded   Event = "graded"
	EventTick     Event = "tick"
	EventExpired  Event = "expired"
	EventPong     Event = "pong"
)

// SavedResponse acknowledges a recorded answer when no feedback is due.
type SavedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// FeedbackResponse carries immediate per-answer feedback in practice mode.
type FeedbackResponse struct {
	Event         Event  `json:"event"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
}

// TickResponse is the countdown heartbeat for timed sessions.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// GradedResponse is sent once on completion, manual or expiry-forced.
type GradedResponse struct {
	Event        Event   `json:"event"`
	Status       string  `json:"status"`
	Score        float64 `json:"score"`
	CorrectCount int     `json:"correct_count"`
	Total        int     `json:"total"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

package domain

// MessageAction is an opaque action token the UI layer maps to a callback.
type MessageAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// UserMessage is the user-facing rendering of a classified failure.
// The engine never shows raw errors or internal codes to end users.
type UserMessage struct {
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Severity    Severity        `json:"severity"`
	Category    string          `json:"category"`
	Dismissible bool            `json:"dismissible"`
	Actions     []MessageAction `json:"actions"`
}

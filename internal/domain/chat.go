package domain

// Roles used in conversation histories and completion requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape sent to the
// completion integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the result of a completion call. TokensUsed is the total
// token cost reported by the provider and may be zero when not reported.
type Completion struct {
	Text       string
	TokensUsed int
}

// Transcription is the recognized text of a voice note. FileName is the name
// the transcription service stored the audio under.
type Transcription struct {
	Text     string
	FileName string
}

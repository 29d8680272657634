package domain

// Alert is an operator notification about a failed turn. ChatID and UserID
// identify the user who hit the failure.
type Alert struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	ChatID  int64  `json:"chatId"`
}

package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Update and User are the Bot API shapes decoded from polling, webhook and
// queue intake.
type (
	Update = tgbotapi.Update
	User   = tgbotapi.User
)

// APIError is a Bot API response with ok=false.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
	Method      string
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram: %s (%d): %s, retry after %ds", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram: %s (%d): %s", e.Method, e.Code, e.Description)
}

package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contestbot/pkg/validator"
)

// ErrValidation marks participant input the flow rejects with a reprompt.
var ErrValidation = errors.New("invalid input")

var (
	ErrEmptyTeamName   = fmt.Errorf("%w: team name is empty", ErrValidation)
	ErrTeamNameTooLong = fmt.Errorf("%w: team name is too long", ErrValidation)
)

type teamNameInput struct {
	TeamName string `validate:"required,max=64"`
}

// ValidateTeamName trims raw and checks it is non-empty and at most 64 runes.
func ValidateTeamName(ctx context.Context, raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrEmptyTeamName
	}
	if err := validator.Validate(ctx, teamNameInput{TeamName: name}); err != nil {
		return "", fmt.Errorf("%w (%v)", ErrTeamNameTooLong, err)
	}
	return name, nil
}

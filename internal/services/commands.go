package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"messaging-service/internal/apperrors"
)

var validate = validator.New()

// CreateChatCommand opens a two-party chat with ParticipantID.
type CreateChatCommand struct {
	Name          string `json:"name" validate:"max=120"`
	ParticipantID string `json:"participant_id" validate:"required"`
}

// CreateGroupCommand opens a group chat. The creator is implicit.
type CreateGroupCommand struct {
	Name           string   `json:"name" validate:"max=120"`
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,required"`
}

// UpdateGroupCommand renames a group and/or adds participants.
type UpdateGroupCommand struct {
	Name           string   `json:"name" validate:"max=120"`
	ParticipantIDs []string `json:"participant_ids" validate:"dive,required"`
}

// SendMessageCommand posts text into a chat. Empty Recipients means every member.
type SendMessageCommand struct {
	ChatID     string   `json:"chat_id" validate:"required"`
	Text       string   `json:"text" validate:"required,max=4096"`
	Recipients []string `json:"recipients" validate:"dive,required"`
}

type editMessageCommand struct {
	MessageID string `validate:"required"`
	Text      string `validate:"required,max=4096"`
}

// validateCommand runs struct validation and reports failures as InvalidArgument.
func validateCommand(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
			return fe.Field() + " " + fe.Tag()
		})
		return apperrors.InvalidArgument("%s", strings.Join(fields, ", "))
	}
	return apperrors.InvalidArgument("%v", err)
}

// cleanIDs drops empty ids and duplicates, keeping first-seen order.
func cleanIDs(ids []string) []string {
	return lo.Uniq(lo.Filter(ids, func(id string, _ int) bool {
		return strings.TrimSpace(id) != ""
	}))
}

// Package assistant: автоматический фильтр перед живой поддержкой.
// Classifier отвечает пользователю; ответ с маркером эскалации передаёт диалог администратору.
package assistant

import (
	"context"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const DefaultEscalationMarker = "call the administrator"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Classifier отвечает на последнюю реплику пользователя. Ошибки оборачивают errs.ErrClassifier.
type Classifier interface {
	Classify(ctx context.Context, conversation []Message) (string, error)
}

// IsEscalation: ответ содержит marker (без учёта регистра).
func IsEscalation(reply, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(reply), strings.ToLower(marker))
}

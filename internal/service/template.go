package service

import (
	"strings"

	"github.com/relaymesh/messaging-relay/internal/model"
)

// RenderTemplate substitutes {variable} placeholders with customer data.
// Unknown placeholders are left untouched.
func RenderTemplate(text string, conv *model.Conversation) string {
	name := conv.CustomerName
	if name == "" {
		name = conv.CustomerPhone
	}

	replacer := strings.NewReplacer(
		"{nombre}", name,
		"{name}", name,
		"{telefono}", conv.CustomerPhone,
		"{phone}", conv.CustomerPhone,
	)
	return replacer.Replace(text)
}

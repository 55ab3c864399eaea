package service

import (
	"testing"

	"github.com/relaymesh/messaging-relay/internal/model"
)

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	conv := &model.Conversation{
		CustomerName:  "Ana",
		CustomerPhone: "5215512345678",
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"name spanish", "Gracias {nombre}!", "Gracias Ana!"},
		{"name english", "Thanks {name}!", "Thanks Ana!"},
		{"phone both", "{telefono} / {phone}", "5215512345678 / 5215512345678"},
		{"mixed", "Hola {nombre}, te escribimos al {telefono}", "Hola Ana, te escribimos al 5215512345678"},
		{"no placeholders", "plain text", "plain text"},
		{"unknown placeholder kept", "Hi {username}", "Hi {username}"},
		{"repeated", "{name} {name}", "Ana Ana"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderTemplate(tt.text, conv); got != tt.want {
				t.Errorf("RenderTemplate(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestRenderTemplateFallsBackToPhone(t *testing.T) {
	t.Parallel()

	conv := &model.Conversation{CustomerPhone: "5215500000000"}
	got := RenderTemplate("Hola {nombre}", conv)
	if got != "Hola 5215500000000" {
		t.Errorf("got %q, want phone fallback", got)
	}
}

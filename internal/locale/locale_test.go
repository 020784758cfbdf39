package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/yourusername/wiki-gate/internal/identity"
)

func TestNegotiate(t *testing.T) {
	tests := []struct {
		header string
		want   language.Tag
	}{
		{"", language.Russian},
		{"ru-RU,ru;q=0.9", language.Russian},
		{"en-US,en;q=0.9", language.English},
		{"de-DE", language.Russian},
		{"fr;q=0.9, en;q=0.5", language.English},
		{";;;", language.Russian},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, Negotiate(tt.header))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Требуется более надежный пароль", Message(language.Russian, identity.KindWeakPassword, "Password should be at least 6 characters."))
	assert.Equal(t, "Invalid email or password", Message(language.English, identity.KindInvalidCredentials, ""))
	assert.Equal(t, "Что-то пошло не так: boom", Message(language.Russian, identity.KindUnknown, "boom"))
	assert.Equal(t, "Something went wrong: boom", Message(language.English, identity.KindUnknown, "boom"))
	// 未対応の言語は既定値にフォールバックする
	assert.Equal(t, "Этот email уже зарегистрирован", Message(language.German, identity.KindAlreadyRegistered, ""))
}

func TestCatalogsCoverSameKinds(t *testing.T) {
	ru := catalogs[language.Russian].kinds
	en := catalogs[language.English].kinds
	assert.Len(t, en, len(ru))
	for kind := range ru {
		assert.Contains(t, en, kind)
	}
}

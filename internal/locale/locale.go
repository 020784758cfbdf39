// Package locale はクライアント向けのエラーメッセージを言語ごとに提供します。
package locale

import (
	"fmt"

	"golang.org/x/text/language"

	"github.com/yourusername/wiki-gate/internal/identity"
)

// 対応言語です。先頭が既定値になります。
var supported = []language.Tag{
	language.Russian,
	language.English,
}

var matcher = language.NewMatcher(supported)

type catalog struct {
	kinds map[identity.Kind]string
	// generic は分類できないエラーの書式です。%s にプロバイダーのメッセージが入ります。
	generic string
}

var catalogs = map[language.Tag]catalog{
	language.Russian: {
		kinds: map[identity.Kind]string{
			identity.KindAlreadyRegistered:  "Этот email уже зарегистрирован",
			identity.KindWeakPassword:       "Требуется более надежный пароль",
			identity.KindEmailNotConfirmed:  "Сначала подтвердите почту",
			identity.KindInvalidCredentials: "Неверный email или пароль",
			identity.KindUserNotFound:       "Пользователь не найден",
			identity.KindRateLimited:        "Слишком много попыток. Попробуйте позже.",
		},
		generic: "Что-то пошло не так: %s",
	},
	language.English: {
		kinds: map[identity.Kind]string{
			identity.KindAlreadyRegistered:  "This email is already registered",
			identity.KindWeakPassword:       "A stronger password is required",
			identity.KindEmailNotConfirmed:  "Please confirm your email first",
			identity.KindInvalidCredentials: "Invalid email or password",
			identity.KindUserNotFound:       "User not found",
			identity.KindRateLimited:        "Too many attempts. Please try again later.",
		},
		generic: "Something went wrong: %s",
	},
}

// Negotiate は Accept-Language ヘッダーから応答言語を決めます。
// 解釈できない場合や対応言語がない場合はロシア語です。
func Negotiate(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return supported[0]
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return supported[0]
	}
	return supported[index]
}

// Message は分類 kind に対応するメッセージを返します。
// 分類できない場合は providerMessage を含む汎用メッセージになります。
func Message(tag language.Tag, kind identity.Kind, providerMessage string) string {
	cat, ok := catalogs[tag]
	if !ok {
		cat = catalogs[supported[0]]
	}
	if msg, ok := cat.kinds[kind]; ok {
		return msg
	}
	return fmt.Sprintf(cat.generic, providerMessage)
}

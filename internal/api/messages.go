package api

import (
	"net/http"

	"golang.org/x/text/language"

	"github.com/nerrad567/gallery-core/internal/auth"
)

// Supported response languages. The first is the default.
var supportedLanguages = []language.Tag{
	language.English,
	language.German,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// messages holds one entry per error code, indexed like supportedLanguages.
var messages = map[string][]string{
	ErrCodeBadRequest: {
		"The request is malformed.",
		"Die Anfrage ist fehlerhaft.",
	},
	ErrCodeNotFound: {
		"Not found.",
		"Nicht gefunden.",
	},
	ErrCodeUnauthorized: {
		"Authentication required.",
		"Anmeldung erforderlich.",
	},
	ErrCodeInvalidCredentials: {
		"Invalid username or password.",
		"Benutzername oder Passwort ist falsch.",
	},
	ErrCodeForbidden: {
		"You do not have permission to do this.",
		"Dazu fehlt Ihnen die Berechtigung.",
	},
	ErrCodeSelfModification: {
		"You cannot delete, deactivate or demote your own account.",
		"Sie können Ihr eigenes Konto nicht löschen, deaktivieren oder herabstufen.",
	},
	ErrCodeAccessDenied: {
		"Access denied.",
		"Zugriff verweigert.",
	},
	ErrCodeLastAdmin: {
		"At least one active admin must remain.",
		"Es muss mindestens ein aktiver Administrator bestehen bleiben.",
	},
	ErrCodeConflict: {
		"A folder with this name already exists.",
		"Ein Ordner mit diesem Namen existiert bereits.",
	},
	ErrCodeInvalidName: {
		"The name is not allowed.",
		"Der Name ist nicht zulässig.",
	},
	ErrCodeUnsupportedType: {
		"Only image and video files can be uploaded.",
		"Es können nur Bild- und Videodateien hochgeladen werden.",
	},
	ErrCodeTooLarge: {
		"The file is too large.",
		"Die Datei ist zu groß.",
	},
	ErrCodeRateLimited: {
		"Too many attempts. Please try again later.",
		"Zu viele Versuche. Bitte später erneut versuchen.",
	},
	ErrCodeInternal: {
		"Internal server error.",
		"Interner Serverfehler.",
	},
	auth.CodeUsernameLength: {
		"Username must be between 3 and 30 characters.",
		"Der Benutzername muss zwischen 3 und 30 Zeichen lang sein.",
	},
	auth.CodeUsernameCharset: {
		"Username may only contain letters, digits, dots, dashes and underscores.",
		"Der Benutzername darf nur Buchstaben, Ziffern, Punkte, Binde- und Unterstriche enthalten.",
	},
	auth.CodeUsernameTaken: {
		"This username is already taken.",
		"Dieser Benutzername ist bereits vergeben.",
	},
	auth.CodePasswordLength: {
		"Password must be between 8 and 1024 characters.",
		"Das Passwort muss zwischen 8 und 1024 Zeichen lang sein.",
	},
	auth.CodeRoleInvalid: {
		"Role must be user, uploader or admin.",
		"Die Rolle muss user, uploader oder admin sein.",
	},
	auth.CodeUnknownField: {
		"The request contains a field that cannot be changed.",
		"Die Anfrage enthält ein Feld, das nicht geändert werden kann.",
	},
	auth.CodeEmptyPatch: {
		"Nothing to update.",
		"Es gibt nichts zu aktualisieren.",
	},
}

// localize returns the message for code in the language r asks for.
// fallback is returned for codes without a catalog entry; the English
// message is used if fallback is empty too.
func localize(r *http.Request, code, fallback string) string {
	msgs, ok := messages[code]
	if !ok {
		if fallback != "" {
			return fallback
		}
		return messages[ErrCodeInternal][0]
	}
	idx := 0
	if r != nil {
		_, idx = language.MatchStrings(languageMatcher, r.Header.Get("Accept-Language"))
	}
	if idx < 0 || idx >= len(msgs) {
		idx = 0
	}
	return msgs[idx]
}

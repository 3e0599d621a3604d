package firebase

import (
	"encoding/json"
	"strings"

	iam "github.com/chimerakang/portfolio-iam"
)

// restError is the error envelope of the Firebase Auth REST API.
type restError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var codes = map[string]string{
	"EMAIL_EXISTS":                   iam.CodeEmailExists,
	"EMAIL_NOT_FOUND":                iam.CodeUserNotFound,
	"USER_NOT_FOUND":                 iam.CodeUserNotFound,
	"INVALID_PASSWORD":               iam.CodeInvalidCredential,
	"INVALID_LOGIN_CREDENTIALS":      iam.CodeInvalidCredential,
	"INVALID_EMAIL":                  iam.CodeInvalidCredential,
	"USER_DISABLED":                  iam.CodeUserDisabled,
	"TOO_MANY_ATTEMPTS_TRY_LATER":    iam.CodeTooManyRequests,
	"WEAK_PASSWORD":                  iam.CodeWeakPassword,
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": iam.CodeRequiresRecentLogin,
	"TOKEN_EXPIRED":                  iam.CodeTokenExpired,
	"INVALID_ID_TOKEN":               iam.CodeTokenExpired,
	"INVALID_REFRESH_TOKEN":          iam.CodeTokenExpired,
}

// decodeError maps a REST error body to an *iam.IdentityError.
// Messages look like "WEAK_PASSWORD : Password should be at least 6 characters".
func decodeError(body []byte) *iam.IdentityError {
	var e restError
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return &iam.IdentityError{Code: iam.CodeInternal, Message: strings.TrimSpace(string(body))}
	}
	reason, detail, _ := strings.Cut(e.Error.Message, " : ")
	reason = strings.TrimSpace(reason)
	code, ok := codes[reason]
	if !ok {
		code = iam.CodeInternal
	}
	msg := reason
	if detail != "" {
		msg = strings.TrimSpace(detail)
	}
	return &iam.IdentityError{Code: code, Message: msg}
}

// mustReauthenticate reports whether a refresh failure means the session is gone.
func mustReauthenticate(err error) bool {
	switch iam.IdentityErrorCode(err) {
	case iam.CodeTokenExpired, iam.CodeUserDisabled, iam.CodeUserNotFound:
		return true
	}
	return false
}

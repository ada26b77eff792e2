package speech

import (
	"errors"
	"strings"

	"github.com/echocode/echo/backend/internal/config"
)

var errMissingCredentials = errors.New("volcengine speech credentials missing: set SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")

// resolveCredentials returns the normalised app id and access token.
func resolveCredentials(cfg config.SpeechConfig) (appID, token string, err error) {
	appID = strings.TrimSpace(cfg.AppID)
	token = strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", errMissingCredentials
	}
	return appID, token, nil
}

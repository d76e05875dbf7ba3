package adrive

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
)

// bearerPrefix is stripped from pasted tokens so the header never becomes
// "Bearer Bearer <token>".
const bearerPrefix = "bearer "

// NormalizeAccessToken trims whitespace and a leading "Bearer " (any case)
// from a token copied out of a browser's request headers.
func NormalizeAccessToken(raw string) string {
	tok := strings.TrimSpace(raw)
	if len(tok) >= len(bearerPrefix) && strings.EqualFold(tok[:len(bearerPrefix)], bearerPrefix) {
		tok = strings.TrimSpace(tok[len(bearerPrefix):])
	}

	return tok
}

// StaticToken returns a TokenSource for a fixed access token taken from the
// config file. The web API's tokens cannot be refreshed by this tool, so the
// source never changes during a run.
func StaticToken(accessToken string, logger *slog.Logger) TokenSource {
	if logger == nil {
		logger = slog.Default()
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: NormalizeAccessToken(accessToken),
		TokenType:   "Bearer",
	})

	return &tokenBridge{src: src, logger: logger}
}

// tokenBridge adapts oauth2.TokenSource to adrive.TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("adrive: obtaining token: %w", err)
	}

	if t.AccessToken == "" {
		return "", fmt.Errorf("adrive: obtaining token: %w", ErrUnauthorized)
	}

	return t.AccessToken, nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type JWTConfig struct {
	JWKSURL    string
	HMACSecret string
	Issuer     string
	Audience   string
	Logger     *zap.Logger
}

// JWTResolver validates bearer tokens and returns their sub claim. Keys come
// from a JWKS endpoint or a shared HMAC secret.
type JWTResolver struct {
	keyFunc jwt.Keyfunc
	options []jwt.ParserOption
	logger  *zap.Logger
}

// NewJWTResolver returns nil without error when neither a JWKS URL nor an HMAC
// secret is configured.
func NewJWTResolver(ctx context.Context, config JWTConfig) (*JWTResolver, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	resolver := &JWTResolver{logger: logger}
	switch {
	case strings.TrimSpace(config.JWKSURL) != "":
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{strings.TrimSpace(config.JWKSURL)})
		if err != nil {
			return nil, fmt.Errorf("load jwks: %w", err)
		}
		resolver.keyFunc = jwks.Keyfunc
		resolver.options = append(resolver.options, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256"}))
	case config.HMACSecret != "":
		secret := []byte(config.HMACSecret)
		resolver.keyFunc = func(*jwt.Token) (any, error) { return secret, nil }
		resolver.options = append(resolver.options, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	default:
		return nil, nil
	}

	if issuer := strings.TrimSpace(config.Issuer); issuer != "" {
		resolver.options = append(resolver.options, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(config.Audience); audience != "" {
		resolver.options = append(resolver.options, jwt.WithAudience(audience))
	}
	return resolver, nil
}

func (j *JWTResolver) Resolve(r *http.Request) (string, bool) {
	if j == nil {
		return "", false
	}
	token, ok := BearerToken(r)
	if !ok {
		return "", false
	}
	subject, err := j.Subject(token)
	if err != nil {
		j.logger.Debug("jwt rejected", zap.Error(err))
		return "", false
	}
	return subject, true
}

// Subject validates token and returns its sub claim.
func (j *JWTResolver) Subject(token string) (string, error) {
	parsed, err := jwt.Parse(token, j.keyFunc, j.options...)
	if err != nil {
		return "", err
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if subject == "" {
		return "", errors.New("token has no sub claim")
	}
	return subject, nil
}

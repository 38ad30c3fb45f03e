package middleware

import (
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lshigami/cefrexam/config"
	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/rs/zerolog/log"
)

const (
	RequestIDHeader = "X-Request-ID"
	DevUserHeader   = "X-User-ID"
	DevAdminHeader  = "X-User-Admin"

	requestIDKey = "request_id"
	userIDKey    = "user_id"
	isAdminKey   = "is_admin"
)

// TokenVerifier parses a bearer token into Casdoor claims. *casdoorsdk.Client satisfies it.
type TokenVerifier interface {
	ParseJwtToken(token string) (*casdoorsdk.Claims, error)
}

// NewTokenVerifier returns nil when Casdoor is not configured.
func NewTokenVerifier(cfg *config.Config) TokenVerifier {
	if !cfg.Casdoor.Enabled() {
		return nil
	}
	return casdoorsdk.NewClient(
		cfg.Casdoor.Endpoint,
		cfg.Casdoor.ClientID,
		cfg.Casdoor.ClientSecret,
		cfg.Casdoor.Certificate,
		cfg.Casdoor.Organization,
		cfg.Casdoor.Application,
	)
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set(requestIDKey, requestID)
		c.Next()
	}
}

// RequestLogger writes one zerolog line per request instead of gin's text log.
func RequestLogger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		requestID, _ := param.Keys[requestIDKey].(string)
		userID, _ := param.Keys[userIDKey].(string)
		log.Info().
			Str("request_id", requestID).
			Str("user_id", userID).
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("user_agent", param.Request.UserAgent()).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	})
}

type Authenticator struct {
	verifier     TokenVerifier
	trustDevUser bool
}

// NewAuthenticator verifies Casdoor tokens when a verifier is given. Without one, the
// X-User-ID header is trusted only if allowDevHeader is set.
func NewAuthenticator(verifier TokenVerifier, allowDevHeader bool) *Authenticator {
	return &Authenticator{verifier: verifier, trustDevUser: verifier == nil && allowDevHeader}
}

func NewAuthenticatorFromConfig(cfg *config.Config, verifier TokenVerifier) *Authenticator {
	if verifier == nil {
		log.Warn().Bool("devHeader", cfg.Casdoor.DevUserHeader).Msg("Casdoor is not configured")
	}
	return NewAuthenticator(verifier, cfg.Casdoor.DevUserHeader)
}

// RequireUser aborts with 401 unless the request carries an identity.
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, isAdmin, ok := a.identify(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "Authentication required"})
			return
		}
		c.Set(userIDKey, userID)
		c.Set(isAdminKey, isAdmin)
		c.Next()
	}
}

// RequireAdmin must run after RequireUser.
func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(isAdminKey) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.ErrorResponse{Message: "Administrator access required"})
			return
		}
		c.Next()
	}
}

func (a *Authenticator) identify(c *gin.Context) (string, bool, bool) {
	if a.verifier != nil {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			return "", false, false
		}
		claims, err := a.verifier.ParseJwtToken(token)
		if err != nil {
			log.Warn().Err(err).Str("path", c.FullPath()).Msg("Rejected bearer token")
			return "", false, false
		}
		if claims.Id == "" {
			return "", false, false
		}
		return claims.Id, claims.User.IsAdmin, true
	}

	if a.trustDevUser {
		userID := strings.TrimSpace(c.GetHeader(DevUserHeader))
		if userID == "" {
			return "", false, false
		}
		return userID, strings.EqualFold(c.GetHeader(DevAdminHeader), "true"), true
	}
	return "", false, false
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// UserID returns the identity set by RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	operatorKey = "operator"

	// OperatorHeader names the operator when token auth is disabled
	OperatorHeader = "X-Operator-ID"
)

var (
	errMissingToken = errors.New("authorization credentials required")
	errBadHeader    = errors.New("invalid authorization header format")
	errNoSubject    = errors.New("token has no subject")
)

// Operator is the authenticated back-office user behind a request
type Operator struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// Enabled requires HS256 bearer tokens. When false the operator is read
	// from X-Operator-ID and given DefaultRole, for trusted networks only.
	Enabled     bool
	Secret      string
	DefaultRole string
	Leeway      time.Duration
}

// Authentication resolves the operator of each request
type Authentication struct {
	config AuthConfig
	logger Logger
}

// NewAuthentication creates a new authentication middleware
func NewAuthentication(config AuthConfig, logger Logger) *Authentication {
	if config.DefaultRole == "" {
		config.DefaultRole = "admin"
	}
	return &Authentication{
		config: config,
		logger: orDefault(logger),
	}
}

// Middleware attaches the operator to the context when the request carries valid credentials.
// It never rejects; RequireOperator and RequireRole do.
func (a *Authentication) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.config.Enabled {
			if id := strings.TrimSpace(c.GetHeader(OperatorHeader)); id != "" {
				c.Set(operatorKey, Operator{ID: id, Role: a.config.DefaultRole})
			}
			c.Next()
			return
		}

		op, err := a.authenticate(c)
		switch {
		case err == nil:
			c.Set(operatorKey, op)
		case !errors.Is(err, errMissingToken):
			a.logger.Warn("Authentication failed", "error", err.Error(), "client_ip", GetClientIP(c), "request_id", GetRequestID(c))
		}
		c.Next()
	}
}

func (a *Authentication) authenticate(c *gin.Context) (Operator, error) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return Operator{}, errMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return Operator{}, errBadHeader
	}

	return ParseToken(a.config.Secret, strings.TrimSpace(parts[1]), a.config.Leeway)
}

// ParseToken validates an HS256 token and extracts the operator from `sub` (or `user_id`) and `role`
func ParseToken(secret, tokenString string, leeway time.Duration) (Operator, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithLeeway(leeway))
	if err != nil {
		return Operator{}, err
	}

	id, _ := claims.GetSubject()
	if id == "" {
		id = claimString(claims["user_id"])
	}
	if id == "" {
		return Operator{}, errNoSubject
	}

	return Operator{ID: id, Role: claimString(claims["role"])}, nil
}

func claimString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return ""
	}
}

// IssueToken signs an HS256 operator token
func IssueToken(secret, operatorID, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret is empty")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  operatorID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// OperatorFromContext returns the operator set by Authentication
func OperatorFromContext(c *gin.Context) (Operator, bool) {
	v, ok := c.Get(operatorKey)
	if !ok {
		return Operator{}, false
	}
	op, ok := v.(Operator)
	return op, ok && op.ID != ""
}

// OperatorID returns the operator id or ""
func OperatorID(c *gin.Context) string {
	op, _ := OperatorFromContext(c)
	return op.ID
}

// RequireOperator rejects requests without an operator
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := OperatorFromContext(c); !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unauthenticated"})
			return
		}
		c.Next()
	}
}

// RequireRole rejects requests whose operator lacks one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		op, ok := OperatorFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unauthenticated"})
			return
		}
		for _, role := range roles {
			if op.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

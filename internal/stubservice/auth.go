package stubservice

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const sessionIDKey = "authSessionID"

// accessClaims are carried by every minted access token.
type accessClaims struct {
	SessionID  string `json:"sid"`
	DeviceHash string `json:"dvh"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// deviceHash keys the raw device token so it is never stored.
func (t *tokenIssuer) deviceHash(deviceToken string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(deviceToken))
	return hex.EncodeToString(mac.Sum(nil))
}

func (t *tokenIssuer) mint(sessionID, deviceHash string) (string, error) {
	now := t.now()
	claims := accessClaims{
		SessionID:  sessionID,
		DeviceHash: deviceHash,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *tokenIssuer) verify(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.SessionID == "" || claims.DeviceHash == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// requireUserAuth resolves the calling session. With RequireAuth it demands a
// bearer token and a matching device token; otherwise a known session_id is
// enough.
func requireUserAuth(backend *Backend, issuer *tokenIssuer, requireAuth bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer, bearerErr := extractBearerToken(c.GetHeader("Authorization"))
		deviceToken := strings.TrimSpace(c.GetHeader("X-Device-Token"))

		if requireAuth || (bearerErr == nil && deviceToken != "") {
			if bearerErr != nil {
				unauthorized(c, bearerErr.Error())
				return
			}
			if deviceToken == "" {
				unauthorized(c, "Missing X-Device-Token")
				return
			}
			claims, err := issuer.verify(bearer)
			if err != nil {
				unauthorized(c, err.Error())
				return
			}
			if issuer.deviceHash(deviceToken) != claims.DeviceHash {
				unauthorized(c, "Device token mismatch")
				return
			}
			if !backend.sessionMatches(claims.SessionID, claims.DeviceHash) {
				unauthorized(c, "Unknown session")
				return
			}
			c.Set(sessionIDKey, claims.SessionID)
			c.Next()
			return
		}

		sessionID := c.Query("session_id")
		if sessionID == "" {
			unauthorized(c, "Missing session_id")
			return
		}
		if !backend.hasSession(sessionID) {
			unauthorized(c, "Unknown session")
			return
		}
		c.Set(sessionIDKey, sessionID)
		c.Next()
	}
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization bearer token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": message})
}

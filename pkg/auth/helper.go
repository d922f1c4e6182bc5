package auth

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// parseJWT parses and validates a JWT token string.
func parseJWT(tokenString string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure token is signed with HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	// Tokens without expiry are not accepted.
	if _, ok := claims["exp"].(float64); !ok {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}

	return claims, nil
}

// GenerateToken mints an HS256 token for subject carrying role.
func GenerateToken(subject, role string, config *Config) (*TokenResponse, error) {
	expirationTime := time.Now().Add(config.TokenExpiration)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  expirationTime.Unix(),
		"iat":  time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(config.JwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &TokenResponse{
		AccessToken: tokenString,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expirationTime).Seconds()),
	}, nil
}

// WriteJSONResponse writes a JSON response with the specified HTTP status and data.
func WriteJSONResponse(w http.ResponseWriter, httpStatus int, data *HttpResp) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteSuccessResponse sends a successful JSON response.
func WriteSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	WriteJSONResponse(w,
		http.StatusOK,
		&HttpResp{Status: "success", Data: data, Message: message})
}

// WriteErrorResponse sends an error JSON response.
func WriteErrorResponse(w http.ResponseWriter, message string, httpStatus int) {
	WriteJSONResponse(w,
		httpStatus,
		&HttpResp{Status: "error", Data: nil, Message: message})
}

// WriteErrorResponseData sends an error JSON response with additional data.
func WriteErrorResponseData(w http.ResponseWriter, message string, data interface{}, httpStatus int) {
	WriteJSONResponse(w,
		httpStatus,
		&HttpResp{Status: "error", Data: data, Message: message})
}

// extractToken extracts the bearer token from the Authorization header.
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrTokenNotFound
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		if token := strings.TrimSpace(parts[1]); token != "" {
			return token, nil
		}
	}
	return "", ErrTokenNotFound
}

// ClientIP retrieves the client's IP address from the request.
func ClientIP(r *http.Request) string {
	// Look for X-Forwarded-For header
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// X-Forwarded-For can have multiple IPs; the first one is usually the original client IP
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	// Fallback to RemoteAddr if X-Forwarded-For is not set
	clientIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	return clientIP
}

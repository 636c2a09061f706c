package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aimine/bunshin/internal/config"
)

// Identity is the resolved (company, user, role) triple the chat
// pipeline consumes. Authentication itself stays at this boundary; the
// pipeline only ever sees the triple.
type Identity struct {
	UserID    string
	CompanyID string
	Role      string
}

func GenerateJWT(id Identity) (string, error) {
	claims := jwt.MapClaims{
		"sub":       id.UserID,
		"companyId": id.CompanyID,
		"role":      id.Role,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(time.Hour * 24).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func ValidateJWT(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	id := Identity{}
	if id.UserID, ok = claims["sub"].(string); !ok || id.UserID == "" {
		return Identity{}, fmt.Errorf("token missing subject")
	}
	if id.CompanyID, ok = claims["companyId"].(string); !ok || id.CompanyID == "" {
		return Identity{}, fmt.Errorf("token missing company")
	}
	if id.Role, ok = claims["role"].(string); !ok || id.Role == "" {
		return Identity{}, fmt.Errorf("token missing role")
	}
	return id, nil
}

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// TokenKind はトークンの種類を表す。
type TokenKind string

const (
	// TokenKindProvider はエコシステム管理者（プロバイダ）用のトークン。
	TokenKindProvider TokenKind = "provider"
	// TokenKindWallet はウォレット所有者用のトークン。
	TokenKindWallet TokenKind = "wallet"
)

// tokenIssuer はトークンのiss クレーム。
const tokenIssuer = "credgw-sandbox"

// contextKeyClaims はGinコンテキストにクレームを格納するキー。
const contextKeyClaims = "token_claims"

// TokenClaims はサンドボックスが発行するトークンのクレーム。
type TokenClaims struct {
	jwt.RegisteredClaims
	// Kind はトークンの種類。
	Kind TokenKind `json:"kind"`
	// EcosystemID はトークンが属するエコシステムID。
	EcosystemID string `json:"ecosystem_id"`
	// WalletID はウォレットトークンの場合のウォレットID。
	WalletID string `json:"wallet_id,omitempty"`
}

// TokenParams はGenerateTokenの入力。
type TokenParams struct {
	// ID はトークン自体の一意識別子（jti）。
	ID          string
	Kind        TokenKind
	EcosystemID string
	WalletID    string
	// TTL は有効期間。0の場合は無期限。
	TTL time.Duration
}

// GenerateToken はHS256で署名したトークンを生成する。
func GenerateToken(secret string, p TokenParams) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       p.ID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   tokenIssuer,
			Subject:  p.EcosystemID,
		},
		Kind:        p.Kind,
		EcosystemID: p.EcosystemID,
		WalletID:    p.WalletID,
	}
	if p.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(p.TTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseToken はトークンを検証し、クレームを返す。
func ParseToken(secret, tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("トークンが無効です")
	}
	return claims, nil
}

// TokenAuth はBearerトークンを検証するGinミドルウェアを返す。
// kindsに含まれない種類のトークンは403で拒否する。
// 検証に成功した場合、コンテキストにクレームを設定する。
func TokenAuth(secret string, kinds ...TokenKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		if len(kinds) > 0 && !slices.Contains(kinds, claims.Kind) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "このトークンでは操作できません",
			})
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims はGinコンテキストからクレームを取得する。
// TokenAuthミドルウェアが事前に適用されていない場合はnilを返す。
func GetClaims(c *gin.Context) *TokenClaims {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*TokenClaims)
	return claims
}

// Package auth はアクセストークンの検証を提供する。
// ユーザー登録・ログイン・トークン発行は外部IDプロバイダーの責務であり、
// 本サービスはBearerトークンの検証と主体（ユーザーID）の取り出しのみを行う。
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はトークンが検証を通らなかったことを表す。
// 失効・署名不正・クレーム不足を呼び出し側で区別する必要はない。
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier はアクセストークン検証のインターフェース。
type TokenVerifier interface {
	// Verify はトークンを検証し、主体のユーザーIDを返す。
	Verify(tokenString string) (string, error)
}

// tokenAudience は外部IdPが発行するアクセストークンのaudクレーム値。
const tokenAudience = "authenticated"

// JWTVerifier はHS256署名の共有シークレットJWTを検証するTokenVerifier実装。
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier はJWTVerifierを生成する。
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify はトークンの署名・有効期限・audienceを検証し、subクレームのユーザーIDを返す。
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}

	return sub, nil
}

// compile-time interface check
var _ TokenVerifier = (*JWTVerifier)(nil)

// Package auth はアクセストークンの検証と管理者権限の判定を提供する。
// トークンの発行は外部の認証プロバイダーが行い、本パッケージは検証のみを担う。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"

	"github.com/hitoshi/ministers/internal/model"
)

// ErrInvalidToken はアクセストークンが無効な場合に返される。
var ErrInvalidToken = errors.New("アクセストークンが無効です")

// DefaultLeeway は有効期限判定で許容する時計のずれ。
const DefaultLeeway = 30 * time.Second

// VerifierConfig はトークン検証の設定。
// IssuerとAudienceは空の場合は検証しない。
type VerifierConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Claims はアクセストークンのクレーム。
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Identity はクレームから操作主体を組み立てる。
func (c *Claims) Identity() model.Identity {
	return model.Identity{UserID: c.Subject, Email: c.Email}
}

// Verifier はHS256署名のBearerトークンを検証する。
type Verifier struct {
	cfg VerifierConfig
	now func() time.Time
}

// NewVerifier はVerifierを生成する。
func NewVerifier(cfg VerifierConfig) *Verifier {
	if cfg.Leeway == 0 {
		cfg.Leeway = DefaultLeeway
	}
	return &Verifier{cfg: cfg, now: time.Now}
}

// Verify はトークン文字列を検証し、認証済みのIdentityを返す。
func (v *Verifier) Verify(tokenString string) (model.Identity, error) {
	if len(v.cfg.Secret) == 0 {
		return model.Anonymous, fmt.Errorf("認証設定が構成されていません")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.cfg.Secret, nil
	}, jwt.WithLeeway(v.cfg.Leeway), jwt.WithTimeFunc(v.now))
	if err != nil || !token.Valid {
		return model.Anonymous, ErrInvalidToken
	}

	if v.cfg.Issuer != "" && claims.Issuer != v.cfg.Issuer {
		return model.Anonymous, ErrInvalidToken
	}
	if v.cfg.Audience != "" && !lo.Contains(claims.Audience, v.cfg.Audience) {
		return model.Anonymous, ErrInvalidToken
	}
	if claims.Subject == "" {
		return model.Anonymous, ErrInvalidToken
	}

	return claims.Identity(), nil
}

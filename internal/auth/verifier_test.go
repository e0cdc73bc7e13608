package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-0123456789")

// signToken はテスト用にHS256で署名したトークンを生成する。
func signToken(t *testing.T, claims Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func validClaims() Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "https://auth.example.com",
			Audience:  jwt.ClaimStrings{"ministers"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email: "user@example.com",
	}
}

// 正しいトークンから認証済みIdentityが得られることを検証
func TestVerifier_Verify_Valid(t *testing.T) {
	v := NewVerifier(VerifierConfig{Secret: testSecret, Issuer: "https://auth.example.com", Audience: "ministers"})

	identity, err := v.Verify(signToken(t, validClaims(), jwt.SigningMethodHS256, testSecret))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UserID != "user-123" {
		t.Errorf("UserID = %q, want %q", identity.UserID, "user-123")
	}
	if identity.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q", identity.Email, "user@example.com")
	}
	if !identity.IsAuthenticated() {
		t.Error("identity should be authenticated")
	}
}

// 不正なトークンがすべて拒否されることを検証
func TestVerifier_Verify_Rejects(t *testing.T) {
	v := NewVerifier(VerifierConfig{Secret: testSecret, Issuer: "https://auth.example.com", Audience: "ministers"})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://evil.example.com"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	noSubject := validClaims()
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{"期限切れ", signToken(t, expired, jwt.SigningMethodHS256, testSecret)},
		{"発行者不一致", signToken(t, wrongIssuer, jwt.SigningMethodHS256, testSecret)},
		{"オーディエンス不一致", signToken(t, wrongAudience, jwt.SigningMethodHS256, testSecret)},
		{"subjectなし", signToken(t, noSubject, jwt.SigningMethodHS256, testSecret)},
		{"別の鍵", signToken(t, validClaims(), jwt.SigningMethodHS256, []byte("other-secret"))},
		{"HS512", signToken(t, validClaims(), jwt.SigningMethodHS512, testSecret)},
		{"形式不正", "not.a.token"},
		{"空文字", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := v.Verify(tt.token)
			if err == nil {
				t.Fatal("expected error")
			}
			if identity.IsAuthenticated() {
				t.Error("rejected token must yield anonymous identity")
			}
		})
	}
}

// 発行者とオーディエンスの設定が空の場合は検証しないことを検証
func TestVerifier_Verify_OptionalChecks(t *testing.T) {
	v := NewVerifier(VerifierConfig{Secret: testSecret})

	claims := validClaims()
	claims.Issuer = "anything"
	claims.Audience = nil

	if _, err := v.Verify(signToken(t, claims, jwt.SigningMethodHS256, testSecret)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// 時計のずれが許容範囲内なら受け入れることを検証
func TestVerifier_Verify_Leeway(t *testing.T) {
	v := NewVerifier(VerifierConfig{Secret: testSecret})

	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-10 * time.Second))

	if _, err := v.Verify(signToken(t, claims, jwt.SigningMethodHS256, testSecret)); err != nil {
		t.Fatalf("token within leeway should be accepted: %v", err)
	}
}

// シークレット未設定の場合はエラーになることを検証
func TestVerifier_Verify_NoSecret(t *testing.T) {
	v := NewVerifier(VerifierConfig{})
	if _, err := v.Verify(signToken(t, validClaims(), jwt.SigningMethodHS256, testSecret)); err == nil {
		t.Fatal("expected error without secret")
	}
}

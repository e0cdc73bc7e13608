// Package session は現在の操作主体（Identity）を保持し、変更を購読者へ通知する。
// トークンの署名検証はサーバーが行うため、ここではクレームの読み出しのみを行う。
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/ministers/internal/auth"
	"github.com/hitoshi/ministers/internal/model"
)

// ErrExpiredToken はトークンの有効期限が切れている場合に返される。
var ErrExpiredToken = errors.New("アクセストークンの有効期限が切れています")

// Listener はIdentityの変更通知を受け取る関数。
type Listener = func(model.Identity)

// Provider は現在のIdentityとアクセストークンを保持する。
// ゼロ値は使用せず、NewProviderで生成すること。
type Provider struct {
	mu        sync.RWMutex
	identity  model.Identity
	token     string
	listeners map[uint64]Listener
	nextID    uint64
	now       func() time.Time
}

// NewProvider は匿名状態のProviderを生成する。
func NewProvider() *Provider {
	return &Provider{
		identity:  model.Anonymous,
		listeners: make(map[uint64]Listener),
		now:       time.Now,
	}
}

// Current は現在のIdentityを返す。
func (p *Provider) Current() model.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

// Token は現在のアクセストークンを返す。匿名の場合は空文字。
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// Subscribe はIdentity変更の購読を登録し、解除関数を返す。
// 解除関数は複数回呼び出しても安全。
func (p *Provider) Subscribe(fn Listener) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// SignIn はアクセストークンを読み込み、認証済み状態に遷移する。
func (p *Provider) SignIn(token string) (model.Identity, error) {
	claims := &auth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return model.Anonymous, fmt.Errorf("アクセストークンを解析できません: %w", err)
	}
	if claims.Subject == "" {
		return model.Anonymous, fmt.Errorf("アクセストークンにsubjectがありません")
	}
	if exp := claims.ExpiresAt; exp != nil && !exp.After(p.now()) {
		return model.Anonymous, ErrExpiredToken
	}

	identity := claims.Identity()
	p.transition(identity, token)
	return identity, nil
}

// SignOut は匿名状態に遷移する。
func (p *Provider) SignOut() {
	p.transition(model.Anonymous, "")
}

// transition は状態を更新し、変化があった場合のみ購読者へ通知する。
// 通知はロックの外で行う。
func (p *Provider) transition(identity model.Identity, token string) {
	p.mu.Lock()
	changed := p.identity != identity
	p.identity = identity
	p.token = token
	listeners := make([]Listener, 0, len(p.listeners))
	if changed {
		for _, fn := range p.listeners {
			listeners = append(listeners, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(identity)
	}
}

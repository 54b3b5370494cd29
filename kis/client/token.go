package client

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/kistrade/internal/metrics"
	"github.com/betbot/kistrade/kis/types"
	"github.com/betbot/kistrade/pkg/logger"
)

// TokenIssuer 向认证接口申请新令牌
type TokenIssuer interface {
	IssueToken(ctx context.Context) (types.Token, error)
}

// TokenManager 维护令牌槽位：可用则复用，否则签发并写回。
// 同一进程内的调用串行化，不会并发发起两次签发。
type TokenManager struct {
	mu     sync.Mutex
	store  TokenStore
	issuer TokenIssuer
	now    func() time.Time
}

func NewTokenManager(store TokenStore, issuer TokenIssuer) *TokenManager {
	return &TokenManager{
		store:  store,
		issuer: issuer,
		now:    time.Now,
	}
}

// WithClock 替换时间源（测试用）
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Store 当前槽位
func (m *TokenManager) Store() TokenStore {
	return m.store
}

// GetToken 返回可用令牌，必要时签发新令牌
func (m *TokenManager) GetToken(ctx context.Context) (types.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(ctx)
}

// ForceRefresh 清空槽位后重新获取（会话过期时调用）
func (m *TokenManager) ForceRefresh(ctx context.Context) (types.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics.SessionRefresh.Inc()
	if err := m.store.Delete(); err != nil {
		return types.Token{}, errors.Wrap(err, "kis: clear token slot")
	}
	return m.getLocked(ctx)
}

func (m *TokenManager) getLocked(ctx context.Context) (types.Token, error) {
	tok, err := m.store.Load()
	switch {
	case err == nil && tok.Usable(m.now()):
		return tok, nil
	case err == nil:
		logger.Debugf("[token] 槽位中的令牌已过期 expired=%s", tok.Expired)
	case errors.Is(err, ErrTokenNotFound):
		logger.Debugf("[token] 槽位为空")
	default:
		// 槽位损坏按空处理，签发后覆盖
		logger.Warnf("[token] 读取槽位失败，重新签发: %v", err)
	}

	tok, err = m.issuer.IssueToken(ctx)
	if err != nil {
		return types.Token{}, err
	}
	if err := m.store.Save(tok); err != nil {
		// 写回失败只影响下一次调用是否复用，本次令牌仍然有效
		logger.Warnf("[token] 写入槽位失败: %v", err)
	}
	return tok, nil
}

package types

import (
	"strings"
	"time"
)

// ExpiryLayout 令牌过期时间字面量格式（access_token_token_expired）
const ExpiryLayout = "2006-01-02 15:04:05"

// KST 券商返回的过期时间均为韩国标准时间
var KST = time.FixedZone("KST", 9*60*60)

// Token 访问令牌。槽位文件只保存 token/expired 两个字段，ExpiresAt 在加载时重新解析。
type Token struct {
	Value     string    `json:"token"`
	Expired   string    `json:"expired"`
	ExpiresAt time.Time `json:"-"`
}

// NewToken 根据券商返回的字面量构造令牌；过期时间无法解析时 ExpiresAt 为零值（视为不可用）
func NewToken(value, expired string) Token {
	t := Token{Value: value, Expired: expired}
	if at, err := ParseExpiry(expired); err == nil {
		t.ExpiresAt = at
	}
	return t
}

// ParseExpiry 按 KST 解析 "YYYY-MM-DD HH:MM:SS"
func ParseExpiry(s string) (time.Time, error) {
	return time.ParseInLocation(ExpiryLayout, strings.TrimSpace(s), KST)
}

// Usable 过期时间严格晚于 now 时可用
func (t Token) Usable(now time.Time) bool {
	if t.Value == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return t.ExpiresAt.After(now)
}

// Normalize 补齐 ExpiresAt（从存储反序列化之后调用）
func (t Token) Normalize() Token {
	return NewToken(t.Value, t.Expired)
}

package client

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTransport 网络失败、超时、非 200 或响应体不是 JSON
	ErrTransport = errors.New("kis: transport error")
	// ErrAuthFailed 令牌签发失败
	ErrAuthFailed = errors.New("kis: auth failed")
	// ErrAuthExpired 刷新后会话仍然过期
	ErrAuthExpired = errors.New("kis: session expired")
	// ErrBusiness rt_cd != "0"
	ErrBusiness = errors.New("kis: business error")
)

// TransportError 传输层错误。StatusCode 为 0 表示请求未得到响应。
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("kis: transport error (http %d): %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("kis: transport error: %v", e.Err)
	default:
		return fmt.Sprintf("kis: transport error (http %d): %s", e.StatusCode, truncate(e.Body, 200))
	}
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// AuthFailedError 令牌接口返回非 200（或响应中没有 access_token）
type AuthFailedError struct {
	StatusCode int
	Body       string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("kis: auth failed (http %d): %s", e.StatusCode, truncate(e.Body, 200))
}

func (e *AuthFailedError) Is(target error) bool { return target == ErrAuthFailed }

// AuthExpiredError 重试次数用尽后仍返回会话过期
type AuthExpiredError struct {
	MsgCd   string
	Message string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("kis: session expired [%s] %s", e.MsgCd, e.Message)
}

func (e *AuthExpiredError) Is(target error) bool { return target == ErrAuthExpired }

// BusinessError 券商业务错误，携带 rt_cd/msg_cd/msg1
type BusinessError struct {
	RtCd    string
	MsgCd   string
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("kis: business error rt_cd=%s [%s] %s", e.RtCd, e.MsgCd, e.Message)
}

func (e *BusinessError) Is(target error) bool { return target == ErrBusiness }

// resultLabel 指标中的 result 标签
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBusiness):
		return "business_error"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrTransport):
		return "transport_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport_error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/betbot/kistrade/pkg/logger"
)

// httpResult 一次 HTTP 往返的原始结果
type httpResult struct {
	status int
	header http.Header
	body   []byte
}

// restyLogger 把 resty 的内部日志转到全局 logger
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) { logger.Errorf("[resty] "+format, v...) }
func (restyLogger) Warnf(format string, v ...interface{})  { logger.Warnf("[resty] "+format, v...) }
func (restyLogger) Debugf(format string, v ...interface{}) { logger.Debugf("[resty] "+format, v...) }

// newHTTPClient 不开启 resty 自身的重试：唯一的重试是会话过期后的重新签发
func newHTTPClient(baseURL string, timeout time.Duration, transport http.RoundTripper) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetLogger(restyLogger{})
	if transport != nil {
		client.SetTransport(transport)
	}
	return client
}

// send 发出请求；只有拿不到响应时返回 *TransportError，状态码由调用方判断
func (c *Client) send(ctx context.Context, method, path string, headers, query map[string]string, body []byte) (*httpResult, error) {
	r := c.http.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeaders(headers)
	if len(query) > 0 {
		r.SetQueryParams(query)
	}
	if body != nil {
		r.SetBody(body)
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return &httpResult{
		status: resp.StatusCode(),
		header: resp.Header(),
		body:   resp.Body(),
	}, nil
}

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/kistrade/internal/metrics"
	"github.com/betbot/kistrade/kis/types"
	"github.com/betbot/kistrade/pkg/config"
	"github.com/betbot/kistrade/pkg/logger"
	"github.com/betbot/kistrade/pkg/ratelimit"
)

// Client KIS REST 访问层：限流、交易 ID 解析、hashkey、令牌维护与会话过期重试
type Client struct {
	cfg         *config.Config
	http        *resty.Client
	limiter     ratelimit.RateLimiter
	tokens      *TokenManager
	maxAttempts int
	closeStore  func() error
}

type options struct {
	maxAttempts int
	transport   http.RoundTripper
	limiter     ratelimit.RateLimiter
	store       TokenStore
	now         func() time.Time
	timeout     time.Duration
}

// Option 客户端选项
type Option func(*options)

// WithMaxAttempts 会话过期时的最大尝试次数（含首次），默认 2
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithTransport 替换底层 RoundTripper（测试时指向 httptest 服务器）
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithLimiter 替换限流器（默认按 cfg.MinInterval 创建）
func WithLimiter(l ratelimit.RateLimiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithTokenStore 使用指定槽位，不再按配置打开
func WithTokenStore(s TokenStore) Option {
	return func(o *options) { o.store = s }
}

// WithNow 令牌有效期判断使用的时间源
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTimeout 单次网络调用超时，覆盖 cfg.Timeout
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New 创建客户端。未指定槽位时按 cfg.TokenStore 打开（badger 模式需要调用 Close）。
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("kis: config is required")
	}
	o := options{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxAttempts < 1 {
		o.maxAttempts = 1
	}

	timeout := o.timeout
	if timeout <= 0 {
		timeout = cfg.Timeout
	}
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	limiter := o.limiter
	if limiter == nil {
		interval := cfg.MinInterval
		if interval <= 0 {
			interval = ratelimit.DefaultMinInterval
		}
		limiter = ratelimit.NewIntervalLimiter(interval)
	}

	store := o.store
	closeStore := func() error { return nil }
	if store == nil {
		var err error
		store, closeStore, err = OpenTokenStore(cfg)
		if err != nil {
			return nil, err
		}
		if cached, ok := store.(*CachedTokenStore); ok {
			cached.WithClock(o.now)
		}
	}

	c := &Client{
		cfg:         cfg,
		http:        newHTTPClient(cfg.BaseURL, timeout, o.transport),
		limiter:     limiter,
		maxAttempts: o.maxAttempts,
		closeStore:  closeStore,
	}
	c.tokens = NewTokenManager(store, c).WithClock(o.now)
	return c, nil
}

// Close 释放令牌槽位持有的资源
func (c *Client) Close() error {
	return c.closeStore()
}

// Config 客户端使用的配置（只读）
func (c *Client) Config() *config.Config { return c.cfg }

// Tokens 令牌管理器
func (c *Client) Tokens() *TokenManager { return c.tokens }

// IsPaperTrading 是否连接模拟盘
func (c *Client) IsPaperTrading() bool { return IsPaperTrading(c.cfg) }

// IssueToken 调用认证接口签发令牌（TokenIssuer 实现）
func (c *Client) IssueToken(ctx context.Context) (types.Token, error) {
	if err := c.throttle(ctx); err != nil {
		return types.Token{}, err
	}
	body, err := json.Marshal(map[string]string{
		"grant_type": grantType,
		"appkey":     c.cfg.AppKey,
		"appsecret":  c.cfg.AppSecret,
	})
	if err != nil {
		return types.Token{}, errors.Wrap(err, "kis: encode token request")
	}

	res, err := c.send(ctx, http.MethodPost, PathToken, map[string]string{headerContentType: contentTypeJSON}, nil, body)
	if err != nil {
		return types.Token{}, err
	}
	if res.status != http.StatusOK {
		return types.Token{}, &AuthFailedError{StatusCode: res.status, Body: string(res.body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		Expired     string `json:"access_token_token_expired"`
	}
	if err := json.Unmarshal(res.body, &payload); err != nil || payload.AccessToken == "" {
		return types.Token{}, &AuthFailedError{StatusCode: res.status, Body: string(res.body)}
	}

	metrics.TokenIssued.Inc()
	logger.Infof("[token] 已签发新令牌 app_key=%s expired=%s", logger.MaskSecret(c.cfg.AppKey, 6), payload.Expired)
	return types.NewToken(payload.AccessToken, payload.Expired), nil
}

// requestSpec 一次逻辑请求；交易 ID 在每次尝试前解析
type requestSpec struct {
	method     string
	path       string
	trID       string
	params     map[string]string
	body       []byte
	useHashKey bool
	trCont     bool
}

// Get 发起 GET 请求。token 为空时从令牌槽位获取。
func (c *Client) Get(ctx context.Context, token, path, trID string, params map[string]string) (*types.Envelope, error) {
	env, _, err := c.execute(ctx, token, requestSpec{
		method: http.MethodGet,
		path:   path,
		trID:   trID,
		params: params,
	})
	return env, err
}

// Post 发起 POST 请求，body 按 JSON 编码；useHashKey 时先申请 hashkey（失败则不带）。
func (c *Client) Post(ctx context.Context, token, path, trID string, body any, useHashKey bool) (*types.Envelope, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	env, _, err := c.execute(ctx, token, requestSpec{
		method:     http.MethodPost,
		path:       path,
		trID:       trID,
		body:       payload,
		useHashKey: useHashKey,
	})
	return env, err
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "kis: encode request body")
		}
		return data, nil
	}
}

// execute 返回信封以及最终使用的令牌（重试时可能已刷新）
func (c *Client) execute(ctx context.Context, token string, spec requestSpec) (*types.Envelope, string, error) {
	env, used, err := c.executeAttempts(ctx, token, spec)
	metrics.APICalls.WithLabelValues(spec.method, resultLabel(err)).Inc()
	return env, used, err
}

func (c *Client) executeAttempts(ctx context.Context, token string, spec requestSpec) (*types.Envelope, string, error) {
	var expired *AuthExpiredError
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if token == "" {
			tok, err := c.tokens.GetToken(ctx)
			if err != nil {
				return nil, "", err
			}
			token = tok.Value
		}

		env, err := c.attempt(ctx, token, spec, attempt)
		if err != nil {
			return nil, token, err
		}

		if env.IsSessionExpired() {
			expired = &AuthExpiredError{MsgCd: env.MsgCd, Message: env.Msg1}
			if attempt+1 >= c.maxAttempts {
				break
			}
			logger.Warnf("[kis] 会话过期 [%s] %s，刷新令牌后重试 tr_id=%s", env.MsgCd, env.Msg1, spec.trID)
			tok, err := c.tokens.ForceRefresh(ctx)
			if err != nil {
				return nil, "", err
			}
			token = tok.Value
			continue
		}

		if !env.OK() {
			return nil, token, &BusinessError{RtCd: env.RtCd, MsgCd: env.MsgCd, Message: env.Msg1}
		}
		return env, token, nil
	}
	return nil, token, expired
}

// attempt 单次尝试：hashkey（可选）→ 限流 → 请求 → 解析信封
func (c *Client) attempt(ctx context.Context, token string, spec requestSpec, attempt int) (*types.Envelope, error) {
	trID := ResolveTrID(c.cfg, spec.trID)
	headers := map[string]string{
		headerContentType:   contentTypeJSON,
		headerAuthorization: "Bearer " + token,
		headerAppKey:        c.cfg.AppKey,
		headerAppSecret:     c.cfg.AppSecret,
		headerTrID:          trID,
		headerCustType:      custTypePersonal,
	}
	if spec.trCont {
		headers[headerTrCont] = types.TrContNext
	}

	if spec.useHashKey {
		hash, err := c.hashKey(ctx, headers, spec.body)
		if err != nil {
			metrics.HashKeyFailures.Inc()
			logger.Warnf("[hashkey] 获取失败，继续发送不带 hashkey 的请求 tr_id=%s: %v", trID, err)
		} else {
			headers[headerHashKey] = hash
		}
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{
		"req_id":  uuid.NewString(),
		"method":  spec.method,
		"path":    spec.path,
		"tr_id":   trID,
		"attempt": attempt + 1,
	})
	start := time.Now()
	res, err := c.send(ctx, spec.method, spec.path, headers, spec.params, spec.body)
	if err != nil {
		log.WithField("elapsed", time.Since(start)).Debugf("请求失败: %v", err)
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"status":  res.status,
		"elapsed": time.Since(start),
	}).Debug("请求完成")

	if res.status != http.StatusOK {
		return nil, &TransportError{StatusCode: res.status, Body: string(res.body)}
	}
	env, err := types.ParseEnvelope(res.body, res.header.Get(headerTrCont))
	if err != nil {
		return nil, &TransportError{
			StatusCode: res.status,
			Body:       string(res.body),
			Err:        errors.Wrap(err, "decode envelope"),
		}
	}
	return env, nil
}

// throttle 在每次网络调用前等待限流器，并记录等待时长
func (c *Client) throttle(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	metrics.ThrottleWait.Observe(time.Since(start).Seconds())
	return nil
}

package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/betbot/kistrade/kis/types"
	"github.com/betbot/kistrade/pkg/config"
	"github.com/betbot/kistrade/pkg/ratelimit"
)

// testNow 2026-10-16 09:00 KST
var testNow = time.Date(2026, 10, 16, 9, 0, 0, 0, types.KST)

const testExpiry = "2026-10-17 09:00:00"

type capturedRequest struct {
	method string
	path   string
	header http.Header
	query  url.Values
	body   []byte
}

// fakeKIS 模拟券商：令牌、hashkey 与业务接口
type fakeKIS struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	tokenStatus int
	hashStatus  int
	tokenCalls  int
	hashCalls   int
	hashBodies  [][]byte
	hashHeaders []http.Header
	business    []capturedRequest
	handler     func(w http.ResponseWriter, r *http.Request, n int)
}

func newFakeKIS(t *testing.T) *fakeKIS {
	t.Helper()
	fk := &fakeKIS{t: t, tokenStatus: http.StatusOK, hashStatus: http.StatusOK}
	fk.handler = func(w http.ResponseWriter, r *http.Request, n int) {
		writeEnvelope(w, "", `{"rt_cd":"0","msg_cd":"MCA00000","msg1":"ok","output":{"n":1}}`)
	}
	fk.srv = httptest.NewServer(http.HandlerFunc(fk.serve))
	t.Cleanup(fk.srv.Close)
	return fk
}

func (fk *fakeKIS) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	fk.mu.Lock()
	switch r.URL.Path {
	case PathToken:
		fk.tokenCalls++
		n, status := fk.tokenCalls, fk.tokenStatus
		fk.mu.Unlock()

		var req map[string]string
		_ = json.Unmarshal(body, &req)
		if status != http.StatusOK || req["grant_type"] != "client_credentials" || req["appkey"] == "" || req["appsecret"] == "" {
			if status == http.StatusOK {
				status = http.StatusBadRequest
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error_code":"EGW00002","error_description":"denied"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","access_token_token_expired":%q,"token_type":"Bearer"}`, n, testExpiry)
	case PathHashKey:
		fk.hashCalls++
		fk.hashBodies = append(fk.hashBodies, body)
		fk.hashHeaders = append(fk.hashHeaders, r.Header.Clone())
		status := fk.hashStatus
		fk.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"BODY":{},"HASH":"HASHVALUE"}`))
	default:
		fk.business = append(fk.business, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			header: r.Header.Clone(),
			query:  r.URL.Query(),
			body:   body,
		})
		n := len(fk.business)
		handler := fk.handler
		fk.mu.Unlock()
		handler(w, r, n)
	}
}

func (fk *fakeKIS) businessCalls() []capturedRequest {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	return append([]capturedRequest(nil), fk.business...)
}

func (fk *fakeKIS) tokenCount() int {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	return fk.tokenCalls
}

func writeEnvelope(w http.ResponseWriter, trCont, body string) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	if trCont != "" {
		w.Header().Set("tr_cont", trCont)
	}
	_, _ = w.Write([]byte(body))
}

// rewriteTransport 把任意主机的请求转发到测试服务器（用于模拟盘域名）
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		AppKey:      "app-key-123456",
		AppSecret:   "app-secret",
		AccountNo:   "12345678",
		ProductCode: "01",
		BaseURL:     baseURL,
		Timeout:     5 * time.Second,
		MinInterval: 60 * time.Millisecond,
		TokenStore:  config.TokenStoreFile,
	}
}

type testEnv struct {
	fk     *fakeKIS
	client *Client
	store  *MemoryTokenStore
	clock  *ratelimit.FakeClock
}

// newTestEnv 使用内存槽位与假时钟限流器
func newTestEnv(t *testing.T, cfg *config.Config, opts ...Option) *testEnv {
	t.Helper()
	fk := newFakeKIS(t)
	if cfg == nil {
		cfg = testConfig(fk.srv.URL)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fk.srv.URL
	}
	target, err := url.Parse(fk.srv.URL)
	require.NoError(t, err)

	store := NewMemoryTokenStore()
	clock := ratelimit.NewFakeClock(testNow)
	all := []Option{
		WithTokenStore(store),
		WithLimiter(ratelimit.NewIntervalLimiterWithClock(cfg.MinInterval, clock)),
		WithNow(func() time.Time { return testNow }),
		WithTransport(rewriteTransport{target: target}),
	}
	c, err := New(cfg, append(all, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &testEnv{fk: fk, client: c, store: store, clock: clock}
}

// seedToken 槽位中放入一个有效令牌
func (e *testEnv) seedToken(t *testing.T, value string) {
	t.Helper()
	require.NoError(t, e.store.Save(types.NewToken(value, testExpiry)))
}

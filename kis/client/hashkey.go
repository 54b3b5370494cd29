package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

// hashKey 用与业务请求相同的请求头和请求体申请 hashkey。
// 失败由调用方降级处理（不带 hashkey 头继续请求）。headers 不会被修改。
func (c *Client) hashKey(ctx context.Context, headers map[string]string, body []byte) (string, error) {
	if err := c.throttle(ctx); err != nil {
		return "", err
	}
	res, err := c.send(ctx, http.MethodPost, PathHashKey, headers, nil, body)
	if err != nil {
		return "", err
	}
	if res.status != http.StatusOK {
		return "", &TransportError{StatusCode: res.status, Body: string(res.body)}
	}

	var payload struct {
		Hash string `json:"HASH"`
	}
	if err := json.Unmarshal(res.body, &payload); err != nil {
		return "", errors.Wrap(err, "kis: decode hashkey response")
	}
	if payload.Hash == "" {
		return "", errors.New("kis: hashkey response has no HASH")
	}
	return payload.Hash, nil
}

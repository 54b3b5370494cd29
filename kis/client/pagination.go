package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/betbot/kistrade/internal/metrics"
	"github.com/betbot/kistrade/kis/types"
	"github.com/betbot/kistrade/pkg/logger"
)

// FetchAll 按 CTX_AREA_FK100/CTX_AREA_NK100 连续查询，按页顺序拼接 itemsKey（默认 output1）数组。
// 出错时返回已收集的条目以及错误。baseParams 不会被修改。
func (c *Client) FetchAll(ctx context.Context, token, path, trID string, baseParams map[string]string, itemsKey string) ([]json.RawMessage, error) {
	if itemsKey == "" {
		itemsKey = DefaultItemsKey
	}

	var (
		all    []json.RawMessage
		cursor types.Cursor
	)
	for page := 1; ; page++ {
		env, used, err := c.execute(ctx, token, requestSpec{
			method: http.MethodGet,
			path:   path,
			trID:   trID,
			params: cursor.Apply(baseParams),
			trCont: page > 1,
		})
		if err != nil {
			return all, err
		}
		// 重试中刷新过的令牌用于后续页
		token = used
		metrics.PagesFetched.Inc()

		items := env.Items(itemsKey)
		all = append(all, items...)
		logger.Debugf("[pagination] %s page=%d items=%d tr_cont=%q", trID, page, len(items), env.TrCont)

		if !env.HasMore() || len(items) == 0 {
			return all, nil
		}
		cursor = env.Cursor()
		if cursor.Empty() {
			return all, nil
		}
	}
}

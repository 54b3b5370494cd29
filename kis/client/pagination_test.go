package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/kistrade/internal/metrics"
)

const dailyExecutionsPath = "/uapi/domestic-stock/v1/trading/inquire-daily-ccld"

func itemValues(t *testing.T, items []json.RawMessage) []int {
	t.Helper()
	out := make([]int, 0, len(items))
	for _, raw := range items {
		var v struct {
			N int `json:"n"`
		}
		require.NoError(t, json.Unmarshal(raw, &v))
		out = append(out, v.N)
	}
	return out
}

func TestFetchAll_FollowsCursorInOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedToken(t, "stored")
	env.fk.handler = func(w http.ResponseWriter, r *http.Request, n int) {
		switch n {
		case 1:
			writeEnvelope(w, "F", `{"rt_cd":"0","ctx_area_fk100":"fk1","ctx_area_nk100":"nk1","output1":[{"n":1},{"n":2}]}`)
		case 2:
			writeEnvelope(w, "M", `{"rt_cd":"0","CTX_AREA_FK100":"fk2","CTX_AREA_NK100":"nk2","output1":[{"n":3}]}`)
		default:
			writeEnvelope(w, "D", `{"rt_cd":"0","ctx_area_fk100":"","ctx_area_nk100":"","output1":[{"n":4}]}`)
		}
	}
	base := map[string]string{"CANO": "12345678", "ACNT_PRDT_CD": "01"}
	pagesBefore := testutil.ToFloat64(metrics.PagesFetched)

	items, err := env.client.FetchAll(context.Background(), "", dailyExecutionsPath, "TTTC0081R", base, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, itemValues(t, items))
	assert.Equal(t, pagesBefore+3, testutil.ToFloat64(metrics.PagesFetched))

	calls := env.fk.businessCalls()
	require.Len(t, calls, 3)

	// 首页：空续查键，不带 tr_cont
	assert.Equal(t, "", calls[0].query.Get("CTX_AREA_FK100"))
	assert.True(t, calls[0].query.Has("CTX_AREA_FK100"))
	assert.Empty(t, calls[0].header.Get("tr_cont"))
	assert.Equal(t, "12345678", calls[0].query.Get("CANO"))

	assert.Equal(t, "fk1", calls[1].query.Get("CTX_AREA_FK100"))
	assert.Equal(t, "nk1", calls[1].query.Get("CTX_AREA_NK100"))
	assert.Equal(t, "N", calls[1].header.Get("tr_cont"))

	assert.Equal(t, "fk2", calls[2].query.Get("CTX_AREA_FK100"))
	assert.Equal(t, "nk2", calls[2].query.Get("CTX_AREA_NK100"))

	// 调用方的参数不被修改
	assert.Equal(t, map[string]string{"CANO": "12345678", "ACNT_PRDT_CD": "01"}, base)
}

func TestFetchAll_SingleCallWhenTerminal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedToken(t, "stored")
	env.fk.handler = func(w http.ResponseWriter, r *http.Request, n int) {
		writeEnvelope(w, "D", `{"rt_cd":"0","ctx_area_fk100":"fk","ctx_area_nk100":"nk","output1":[{"n":1}]}`)
	}

	items, err := env.client.FetchAll(context.Background(), "", dailyExecutionsPath, "TTTC0081R", nil, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, itemValues(t, items))
	assert.Len(t, env.fk.businessCalls(), 1)
}

func TestFetchAll_StopsOnEmptyCursor(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedToken(t, "stored")
	env.fk.handler = func(w http.ResponseWriter, r *http.Request, n int) {
		writeEnvelope(w, "M", `{"rt_cd":"0","ctx_area_fk100":"","ctx_area_nk100":"","output1":[{"n":1}]}`)
	}

	items, err := env.client.FetchAll(context.Background(), "", dailyExecutionsPath, "TTTC0081R", nil, "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Len(t, env.fk.businessCalls(), 1)
}

func TestFetchAll_StopsOnEmptyPage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedToken(t, "stored")
	env.fk.handler = func(w http.ResponseWriter, r *http.Request, n int) {
		writeEnvelope(w, "M", `{"rt_cd":"0","ctx_area_fk100":"fk","ctx_area_nk100":"nk","output1":[]}`)
	}

	items, err := env.client.FetchAll(context.Background(), "", dailyExecutionsPath, "TTTC0081R", nil, "")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Len(t, env.fk.businessCalls(), 1)
}

func TestFetchAll_CustomItemsKey(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedToken(t, "stored")
	env.fk.handler = func(w http.ResponseWriter, r *http.Request, n int) {
		writeEnvelope(w, "", `{"rt_cd":"0","output1":[{"n":9}],"output2":[{"n":1},{"n":2}]}`)
	}

	items, err := env.client.FetchAll(context.Background(), "", dailyExecutionsPath, "TTTC8434R", nil, "output2")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, itemValues(t, items))
}

func TestFetchAll_ReturnsPartialItemsOnError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedToken(t, "stored")
	env.fk.handler = func(w http.ResponseWriter, r *http.Request, n int) {
		if n == 1 {
			writeEnvelope(w, "F", `{"rt_cd":"0","ctx_area_fk100":"fk","ctx_area_nk100":"nk","output1":[{"n":1},{"n":2}]}`)
			return
		}
		writeEnvelope(w, "", `{"rt_cd":"1","msg_cd":"OPSQ0002","msg1":"없는 서비스 코드 입니다"}`)
	}

	items, err := env.client.FetchAll(context.Background(), "", dailyExecutionsPath, "TTTC0081R", nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusiness)
	assert.Equal(t, []int{1, 2}, itemValues(t, items))
	assert.Len(t, env.fk.businessCalls(), 2)
}

func TestFetchAll_RefreshedTokenCarriesToNextPage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fk.handler = func(w http.ResponseWriter, r *http.Request, n int) {
		switch {
		case r.Header.Get("authorization") == "Bearer stale":
			writeEnvelope(w, "", `{"rt_cd":"1","msg_cd":"EGW00123","msg1":"expired"}`)
		case n == 2:
			writeEnvelope(w, "F", `{"rt_cd":"0","ctx_area_fk100":"fk","ctx_area_nk100":"nk","output1":[{"n":1}]}`)
		default:
			writeEnvelope(w, "D", `{"rt_cd":"0","output1":[{"n":2}]}`)
		}
	}

	items, err := env.client.FetchAll(context.Background(), "stale", dailyExecutionsPath, "TTTC0081R", nil, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, itemValues(t, items))

	calls := env.fk.businessCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, "Bearer tok-1", calls[2].header.Get("authorization"))
	assert.Equal(t, 1, env.fk.tokenCount())
}

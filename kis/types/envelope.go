package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	// RtCdSuccess rt_cd 为 "0" 表示成功
	RtCdSuccess = "0"

	MsgCdTokenExpired = "EGW00123"
	MsgCdTokenInvalid = "EGW00121"

	// 响应头 tr_cont：F/M 表示还有后续数据
	TrContFirst = "F"
	TrContMore  = "M"
	// TrContNext 续查请求时的请求头取值
	TrContNext = "N"

	CtxAreaFK100 = "CTX_AREA_FK100"
	CtxAreaNK100 = "CTX_AREA_NK100"
)

// Envelope 券商统一响应格式。除了固定字段外，原始字段保留在 Fields 中，调用方按需读取 output/output1/output2。
type Envelope struct {
	RtCd         string
	MsgCd        string
	Msg1         string
	CtxAreaFK100 string
	CtxAreaNK100 string
	TrCont       string // 来自响应头

	Fields map[string]json.RawMessage
	Body   []byte
}

// ParseEnvelope 解析响应体，响应体必须是 JSON 对象
func ParseEnvelope(body []byte, trCont string) (*Envelope, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	return &Envelope{
		RtCd:         stringField(fields, "rt_cd"),
		MsgCd:        stringField(fields, "msg_cd"),
		Msg1:         strings.TrimSpace(stringField(fields, "msg1")),
		CtxAreaFK100: stringField(fields, "ctx_area_fk100", CtxAreaFK100),
		CtxAreaNK100: stringField(fields, "ctx_area_nk100", CtxAreaNK100),
		TrCont:       strings.TrimSpace(trCont),
		Fields:       fields,
		Body:         body,
	}, nil
}

// stringField 依次尝试 keys，返回第一个存在的字符串值（数字按原文返回）
func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			return string(trimmed)
		}
	}
	return ""
}

// OK rt_cd == "0"
func (e *Envelope) OK() bool {
	return e.RtCd == RtCdSuccess
}

// IsSessionExpired 令牌过期或无效
func (e *Envelope) IsSessionExpired() bool {
	return e.MsgCd == MsgCdTokenExpired || e.MsgCd == MsgCdTokenInvalid
}

// HasMore 响应头 tr_cont 为 F 或 M
func (e *Envelope) HasMore() bool {
	return e.TrCont == TrContFirst || e.TrCont == TrContMore
}

// Cursor 下一页的续查键
func (e *Envelope) Cursor() Cursor {
	return Cursor{FK: e.CtxAreaFK100, NK: e.CtxAreaNK100}
}

// Output 原始字段，不存在时返回 nil
func (e *Envelope) Output(key string) json.RawMessage {
	if e == nil || e.Fields == nil {
		return nil
	}
	return e.Fields[key]
}

// Items 将 key 对应的数组拆成元素；单个对象视为一个元素；缺失/null/空数组返回 nil
func (e *Envelope) Items(key string) []json.RawMessage {
	raw := bytes.TrimSpace(e.Output(key))
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
			return nil
		}
		return items
	case '{':
		if bytes.Equal(bytes.Join(bytes.Fields(raw), nil), []byte("{}")) {
			return nil
		}
		return []json.RawMessage{raw}
	default:
		return nil
	}
}

// Cursor 连续查询键，首页两者均为空
type Cursor struct {
	FK string
	NK string
}

// Empty 两个键都为空
func (c Cursor) Empty() bool {
	return c.FK == "" && c.NK == ""
}

// Apply 复制 base 并写入续查键，不修改 base
func (c Cursor) Apply(base map[string]string) map[string]string {
	out := make(map[string]string, len(base)+2)
	for k, v := range base {
		out[k] = v
	}
	out[CtxAreaFK100] = c.FK
	out[CtxAreaNK100] = c.NK
	return out
}

package client

import (
	"strings"

	"github.com/betbot/kistrade/pkg/config"
)

// PaperTrIDTableVersion 模拟盘交易 ID 映射表版本，表内容变化时递增
const PaperTrIDTableVersion = 1

// paperHostMarker 模拟盘域名特征
const paperHostMarker = "openapivts"

// 实盘交易 ID → 模拟盘交易 ID
var paperTrIDs = map[string]string{
	"TTTC0012U": "VTTC0802U", // 买入
	"TTTC0011U": "VTTC0801U", // 卖出
	"TTTC8434R": "VTTC8434R", // 余额
	"TTTC0081R": "VTTC0081R", // 当日成交
}

// IsPaperTrading BaseURL 包含 openapivts 即为模拟盘
func IsPaperTrading(cfg *config.Config) bool {
	return cfg != nil && strings.Contains(cfg.BaseURL, paperHostMarker)
}

// ResolveTrID 模拟盘且存在映射时返回映射后的 ID，否则原样返回
func ResolveTrID(cfg *config.Config, trID string) string {
	if !IsPaperTrading(cfg) {
		return trID
	}
	if mapped, ok := PaperTrID(trID); ok {
		return mapped
	}
	return trID
}

// PaperTrID 查询映射表
func PaperTrID(trID string) (string, bool) {
	mapped, ok := paperTrIDs[trID]
	return mapped, ok
}

// ModeLabel live / paper
func ModeLabel(cfg *config.Config) string {
	if IsPaperTrading(cfg) {
		return "paper"
	}
	return "live"
}

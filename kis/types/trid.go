package types

// 常用逻辑交易 ID（实盘）。模拟盘映射见 client.PaperTrID。
const (
	TrIDOrderBuy        = "TTTC0012U" // 现金买入
	TrIDOrderSell       = "TTTC0011U" // 现金卖出
	TrIDBalance         = "TTTC8434R" // 余额查询
	TrIDDailyExecutions = "TTTC0081R" // 当日成交查询
)

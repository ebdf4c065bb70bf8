package concepts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidStock(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		stockName string
		want      bool
	}{
		{"shenzhen chinext", "300136", "信维通信", true},
		{"shanghai main board", "600519", "贵州茅台", true},
		{"star market", "688981", "中芯国际", true},
		{"shenzhen main board", "000001", "平安银行", true},
		{"seven rune name", "600000", "浦发银行股份甲", true},
		{"empty code", "", "信维通信", false},
		{"empty name", "300136", "", false},
		{"five digits", "30013", "信维通信", false},
		{"letters in code", "30013A", "信维通信", false},
		{"bad board prefix", "900901", "云赛智联", false},
		{"special treatment", "600275", "ST武昌鱼", false},
		{"star special treatment", "000040", "*ST东旭", false},
		{"delisting", "600087", "退市长油", false},
		{"search noise word", "000001", "上证指数", false},
		{"company suffix", "300136", "信维有限", false},
		{"single rune", "300136", "信", false},
		{"too long", "300136", "信维通信股份公司甲", false},
		{"numeric name", "300136", "1.23", false},
		{"hex-like name", "300136", "abcdef", false},
		{"latin only", "300136", "Sunway Co", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidStock(tt.code, tt.stockName))
		})
	}
}

func TestMarketFor(t *testing.T) {
	assert.Equal(t, MarketSH, MarketFor("600519"))
	assert.Equal(t, MarketSH, MarketFor("688981"))
	assert.Equal(t, MarketSH, MarketFor("900901"))
	assert.Equal(t, MarketSZ, MarketFor("000001"))
	assert.Equal(t, MarketSZ, MarketFor("300136"))
	assert.Equal(t, MarketSZ, MarketFor(""))
}

func TestFilterValid(t *testing.T) {
	in := []Stock{
		{Code: " 300136 ", Name: "信维通信", Market: "sz", Reason: "连接器"},
		{Code: "600519", Name: "贵州茅台"},
		{Code: "300136", Name: "信维通信"},
		{Code: "600275", Name: "ST武昌鱼"},
		{Code: "600000", Name: "浦发银行", Market: "XX"},
	}

	got := FilterValid(in)
	assert.Equal(t, []Stock{
		{Code: "300136", Name: "信维通信", Market: "SZ", Reason: "连接器"},
		{Code: "600519", Name: "贵州茅台", Market: "SH"},
		{Code: "600000", Name: "浦发银行", Market: "SH"},
	}, got)
}

func TestFilterValid_Empty(t *testing.T) {
	assert.Empty(t, FilterValid(nil))
}

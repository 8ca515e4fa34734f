package commission

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("结算金额必须大于0")
	ErrInvalidRate   = errors.New("抽成比例必须在 0-10000 之间")
)

// Split 按万分比抽成比例拆分总额
//
// 平台抽成 = 总额 * rateBps / 10000，四舍五入（0.5 归平台，避免少收）
// 卖家净额 = 总额 - 平台抽成，保证两者之和恒等于总额，一分钱不多不少
func Split(grossAmount int64, rateBps int64) (commissionAmount, sellerAmount int64, err error) {
	if grossAmount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if rateBps < 0 || rateBps > 10000 {
		return 0, 0, ErrInvalidRate
	}

	commissionAmount = decimal.NewFromInt(grossAmount).
		Mul(decimal.NewFromInt(rateBps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()

	sellerAmount = grossAmount - commissionAmount
	return commissionAmount, sellerAmount, nil
}

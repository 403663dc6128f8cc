package checkout

import "errors"

var (
	// ErrActionInFlight 已有操作在进行，本次调用被忽略
	ErrActionInFlight = errors.New("another action is in flight")

	// ErrAlreadyStarted 流程已启动
	ErrAlreadyStarted = errors.New("flow already started")

	// ErrNotReady 商品尚未加载
	ErrNotReady = errors.New("product not loaded")

	// ErrFlowTerminated 商品不存在，流程已终止
	ErrFlowTerminated = errors.New("flow terminated")

	// ErrInvalidQuantity 数量不是数字
	ErrInvalidQuantity = errors.New("quantity is not a number")

	// ErrQuantityTooLow 数量小于1
	ErrQuantityTooLow = errors.New("quantity must be at least 1")

	// ErrQuantityOutOfRange 加减按钮超出 [1, 可售数量]
	ErrQuantityOutOfRange = errors.New("quantity out of range")

	// ErrSoldOut 已售罄
	ErrSoldOut = errors.New("product sold out")

	// ErrNotForSale 商品未在售
	ErrNotForSale = errors.New("product not for sale")
)

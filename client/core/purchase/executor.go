// Package purchase 在授权足够后提交购买交易
package purchase

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/txn"
	"github.com/weisyn/shopflow/client/core/wallet"
	"github.com/weisyn/shopflow/pkg/interfaces/infrastructure/log"
)

// ErrInvalidQuantity 购买数量为0
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// NoReferrer 未提供推荐人时使用的全零地址
var NoReferrer = common.Address{}

// Request 购买请求
//
// Quantity 的上限（商品可售数量）由调用方在提交前校验，执行器不会重新读取商品。
type Request struct {
	ProductID uint64
	Quantity  uint64
	Referrer  common.Address
}

// MarketTransactor 商城 buyProduct 提交能力（*contracts.Marketplace 实现）
type MarketTransactor interface {
	BuyProduct(opts *bind.TransactOpts, id *big.Int, quantity *big.Int, referrer common.Address) (*types.Transaction, error)
}

// Executor 购买执行器
type Executor struct {
	transactor MarketTransactor
	signer     wallet.Signer
	waiter     txn.Waiter
	logger     log.Logger
}

// NewExecutor 创建购买执行器
func NewExecutor(transactor MarketTransactor, signer wallet.Signer, waiter txn.Waiter, logger log.Logger) *Executor {
	return &Executor{
		transactor: transactor,
		signer:     signer,
		waiter:     waiter,
		logger:     logger,
	}
}

// Buy 提交购买交易，返回待确认句柄
//
// 确认后商品库存减少 quantity，卖家余额增加 price×quantity；
// 这些变化只在下一次链上读取时可见。
func (e *Executor) Buy(ctx context.Context, req Request) (*txn.Pending, error) {
	if req.Quantity == 0 {
		return nil, ErrInvalidQuantity
	}

	signer, err := wallet.RequireSigner(e.signer)
	if err != nil {
		return nil, err
	}
	opts, err := signer.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chainerr.ErrNoSignerAvailable, err)
	}

	tx, err := e.transactor.BuyProduct(opts,
		new(big.Int).SetUint64(req.ProductID),
		new(big.Int).SetUint64(req.Quantity),
		req.Referrer,
	)
	if err != nil {
		classified := chainerr.ClassifySubmit(err)
		e.logger.Warnf("buyProduct(%d, %d) failed: %v", req.ProductID, req.Quantity, classified)
		return nil, classified
	}

	e.logger.Infof("buyProduct submitted: tx=%s product=%d quantity=%d referrer=%s",
		tx.Hash().Hex(), req.ProductID, req.Quantity, req.Referrer.Hex())
	return txn.NewPending(tx, e.waiter), nil
}

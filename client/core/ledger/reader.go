// Package ledger 提供只读的链上查询：商品信息、代币余额与授权额度
//
// 所有方法都是对链上已确认状态的纯读取，无副作用，可安全重试。
// 网络失败返回 chainerr.ErrLedgerUnavailable。
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/contracts"
	"github.com/weisyn/shopflow/client/core/token"
	"github.com/weisyn/shopflow/pkg/interfaces/infrastructure/log"
)

// Reader 链上只读查询
type Reader struct {
	market *contracts.Marketplace
	token  *contracts.Token
	logger log.Logger
}

// NewReader 创建读取器
//
// caller 通常是 *ethclient.Client，由调用方创建并持有。
func NewReader(caller bind.ContractCaller, marketplace, tokenAddr common.Address, logger log.Logger) *Reader {
	return &Reader{
		market: contracts.NewMarketplaceCaller(marketplace, caller),
		token:  contracts.NewTokenCaller(tokenAddr, caller),
		logger: logger,
	}
}

// Marketplace 商城合约地址（授权的 spender）
func (r *Reader) Marketplace() common.Address {
	return r.market.Address()
}

// GetProduct 读取商品
//
// 未知ID时合约返回全零默认记录，这里识别为 ErrProductNotFound，
// 不会当成价格为0的有效商品。
func (r *Reader) GetProduct(ctx context.Context, id uint64) (*Product, error) {
	rec, err := r.market.GetProduct(&bind.CallOpts{Context: ctx}, new(big.Int).SetUint64(id))
	if err != nil {
		r.logger.Warnf("getProduct(%d) failed: %v", id, err)
		return nil, chainerr.Classify(err)
	}

	if rec.IsEmpty() || rec.Seller == (common.Address{}) {
		return nil, fmt.Errorf("%w: id %d", chainerr.ErrProductNotFound, id)
	}

	product, err := decodeProduct(rec)
	if err != nil {
		return nil, chainerr.Classify(fmt.Errorf("decode product %d: %w", id, err))
	}

	r.logger.Debugf("product %d loaded: price=%s available=%d for_sale=%t",
		product.ID, product.Price, product.AvailableQuantity, product.ForSale)
	return product, nil
}

// GetTokenBalance 读取 owner 的代币余额
func (r *Reader) GetTokenBalance(ctx context.Context, owner common.Address) (token.Amount, error) {
	raw, err := r.token.BalanceOf(&bind.CallOpts{Context: ctx}, owner)
	if err != nil {
		r.logger.Warnf("balanceOf(%s) failed: %v", owner.Hex(), err)
		return token.Amount{}, chainerr.Classify(err)
	}
	return toAmount(raw)
}

// GetAllowance 读取 owner 授予 spender 的额度
func (r *Reader) GetAllowance(ctx context.Context, owner, spender common.Address) (token.Amount, error) {
	raw, err := r.token.Allowance(&bind.CallOpts{Context: ctx}, owner, spender)
	if err != nil {
		r.logger.Warnf("allowance(%s, %s) failed: %v", owner.Hex(), spender.Hex(), err)
		return token.Amount{}, chainerr.Classify(err)
	}
	return toAmount(raw)
}

func decodeProduct(rec contracts.ProductRecord) (*Product, error) {
	if rec.ID == nil || !rec.ID.IsUint64() {
		return nil, fmt.Errorf("product id out of range: %v", rec.ID)
	}
	if rec.Quantity == nil || !rec.Quantity.IsUint64() {
		return nil, fmt.Errorf("quantity out of range: %v", rec.Quantity)
	}

	price, err := toAmount(rec.Price)
	if err != nil {
		return nil, err
	}
	sellerBalance, err := toAmount(rec.SellerBalance)
	if err != nil {
		return nil, err
	}

	return &Product{
		ID:                rec.ID.Uint64(),
		Name:              rec.Name,
		Price:             price,
		AvailableQuantity: rec.Quantity.Uint64(),
		ForSale:           rec.IsForSale,
		Seller:            rec.Seller,
		SellerBalance:     sellerBalance,
		ContentRef:        rec.ContentRef,
		Description:       rec.Description,
	}, nil
}

func toAmount(v *big.Int) (token.Amount, error) {
	if v == nil {
		return token.Zero(), nil
	}
	amt, err := token.NewAmountFromBigInt(v)
	if err != nil {
		return token.Amount{}, chainerr.Classify(err)
	}
	return amt, nil
}

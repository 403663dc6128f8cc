// Package txn 描述已提交交易的结果以及等待链上确认的方式
package txn

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/weisyn/shopflow/client/core/chainerr"
)

// Status 交易状态
type Status string

const (
	StatusNone      Status = ""          // 尚未提交过交易
	StatusPending   Status = "pending"   // 已提交，等待确认
	StatusConfirmed Status = "confirmed" // 已上链且执行成功
	StatusFailed    Status = "failed"    // 提交失败或执行失败
)

// Outcome 交易结果
type Outcome struct {
	Status Status      `json:"status"`
	Handle common.Hash `json:"handle,omitempty"` // 交易哈希，提交前失败时为空
	Block  uint64      `json:"block,omitempty"`  // 确认所在区块
	Reason string      `json:"reason,omitempty"` // 失败原因，用于展示
	Err    error       `json:"-"`
}

// Confirmed 是否已确认
func (o Outcome) Confirmed() bool {
	return o.Status == StatusConfirmed
}

// Failed 构造失败结果
func Failed(handle common.Hash, err error) Outcome {
	return Outcome{
		Status: StatusFailed,
		Handle: handle,
		Reason: Reason(err),
		Err:    err,
	}
}

// Reason 把错误转换为面向用户的简短原因
func Reason(err error) string {
	var revert *chainerr.RevertError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &revert):
		if revert.Reason != "" {
			return revert.Reason
		}
		return "transaction reverted"
	case errors.Is(err, chainerr.ErrUserRejected):
		return "request rejected in wallet"
	case errors.Is(err, chainerr.ErrInsufficientFunds):
		return "not enough tokens, top up your balance"
	case errors.Is(err, chainerr.ErrInsufficientAllowance):
		return "allowance too low, approve first"
	case errors.Is(err, chainerr.ErrInsufficientGas):
		return "not enough gas to submit transaction"
	case errors.Is(err, chainerr.ErrNoSignerAvailable):
		return "wallet not connected"
	case errors.Is(err, chainerr.ErrLedgerUnavailable):
		return "network unavailable, try again"
	}
	return err.Error()
}

// Waiter 等待交易上链
//
// 执行失败（receipt.Status == 0）时返回 receipt 和 *chainerr.RevertError；
// 其它错误已按 chainerr 分类。
type Waiter interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Pending 已提交交易的句柄
type Pending struct {
	tx     *types.Transaction
	waiter Waiter
}

// NewPending 创建待确认句柄
func NewPending(tx *types.Transaction, waiter Waiter) *Pending {
	return &Pending{tx: tx, waiter: waiter}
}

// Hash 交易哈希
func (p *Pending) Hash() common.Hash {
	return p.tx.Hash()
}

// Transaction 原始交易
func (p *Pending) Transaction() *types.Transaction {
	return p.tx
}

// Outcome 未等待时的结果
func (p *Pending) Outcome() Outcome {
	return Outcome{Status: StatusPending, Handle: p.Hash()}
}

// Await 等待确认
//
// ctx 被取消只表示不再等待：交易已经提交无法撤回，返回的结果仍为 Pending，
// 最终结果由下一次链上读取体现。
func (p *Pending) Await(ctx context.Context) Outcome {
	receipt, err := p.waiter.WaitMined(ctx, p.tx)
	if err != nil {
		if ctx.Err() != nil {
			out := p.Outcome()
			out.Err = ctx.Err()
			return out
		}
		out := Failed(p.Hash(), err)
		if receipt != nil && receipt.BlockNumber != nil {
			out.Block = receipt.BlockNumber.Uint64()
		}
		return out
	}

	out := Outcome{Status: StatusConfirmed, Handle: p.Hash()}
	if receipt != nil && receipt.BlockNumber != nil {
		out.Block = receipt.BlockNumber.Uint64()
	}
	return out
}

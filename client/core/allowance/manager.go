// Package allowance 判断买家已授予的代币额度是否覆盖购买总价，不足时发起授权交易
package allowance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/token"
	"github.com/weisyn/shopflow/client/core/txn"
	"github.com/weisyn/shopflow/client/core/wallet"
	"github.com/weisyn/shopflow/pkg/interfaces/infrastructure/log"
)

// State 授权状态，每次总价变化都重新计算，不跨总价缓存
type State struct {
	Allowance  token.Amount `json:"allowance"`
	Required   token.Amount `json:"required"`
	Sufficient bool         `json:"sufficient"`
}

// NewState 计算授权是否足够：allowance >= required
func NewState(allowance, required token.Amount) State {
	return State{
		Allowance:  allowance,
		Required:   required,
		Sufficient: allowance.GreaterThanOrEqual(required),
	}
}

// AllowanceReader 读取授权额度
type AllowanceReader interface {
	GetAllowance(ctx context.Context, owner, spender common.Address) (token.Amount, error)
}

// TokenTransactor 代币 approve 提交能力（*contracts.Token 实现）
type TokenTransactor interface {
	Approve(opts *bind.TransactOpts, spender common.Address, value *big.Int) (*types.Transaction, error)
}

// Manager 授权管理器
type Manager struct {
	reader     AllowanceReader
	transactor TokenTransactor
	signer     wallet.Signer
	waiter     txn.Waiter
	logger     log.Logger
}

// NewManager 创建授权管理器；signer 可以为 nil（未连接钱包），此时只能查询
func NewManager(reader AllowanceReader, transactor TokenTransactor, signer wallet.Signer, waiter txn.Waiter, logger log.Logger) *Manager {
	return &Manager{
		reader:     reader,
		transactor: transactor,
		signer:     signer,
		waiter:     waiter,
		logger:     logger,
	}
}

// CheckSufficiency 查询授权并判断是否覆盖 required
//
// 查询失败时返回错误，调用方必须把授权视为未知，而不是足够。
func (m *Manager) CheckSufficiency(ctx context.Context, required token.Amount, owner, spender common.Address) (State, error) {
	current, err := m.reader.GetAllowance(ctx, owner, spender)
	if err != nil {
		return State{}, err
	}

	state := NewState(current, required)
	m.logger.Debugf("allowance %s / required %s, sufficient=%t", current, required, state.Sufficient)
	return state, nil
}

// RequestApproval 提交授权交易，额度恰好为 amount（不做无限授权）
//
// 返回待确认句柄，由调用方负责等待确认。
func (m *Manager) RequestApproval(ctx context.Context, spender common.Address, amount token.Amount) (*txn.Pending, error) {
	signer, err := wallet.RequireSigner(m.signer)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: approval amount is zero", token.ErrInvalidAmount)
	}

	opts, err := signer.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chainerr.ErrNoSignerAvailable, err)
	}

	tx, err := m.transactor.Approve(opts, spender, amount.BigInt())
	if err != nil {
		classified := chainerr.ClassifySubmit(err)
		m.logger.Warnf("approve %s for %s failed: %v", amount, spender.Hex(), classified)
		return nil, classified
	}

	m.logger.Infof("approve submitted: tx=%s spender=%s amount=%s", tx.Hash().Hex(), spender.Hex(), amount)
	return txn.NewPending(tx, m.waiter), nil
}

package contracts

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Token ERC-20 代币绑定
type Token struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewToken 创建可读可写的代币绑定
func NewToken(address common.Address, backend bind.ContractBackend) *Token {
	return &Token{
		address:  address,
		contract: bind.NewBoundContract(address, tokenABI, backend, backend, backend),
	}
}

// NewTokenCaller 创建只读代币绑定
func NewTokenCaller(address common.Address, caller bind.ContractCaller) *Token {
	return &Token{
		address:  address,
		contract: bind.NewBoundContract(address, tokenABI, caller, nil, nil),
	}
}

// Address 合约地址
func (t *Token) Address() common.Address {
	return t.address
}

// Allowance 调用 allowance(owner, spender)
func (t *Token) Allowance(opts *bind.CallOpts, owner, spender common.Address) (*big.Int, error) {
	return t.callUint(opts, MethodAllowance, owner, spender)
}

// BalanceOf 调用 balanceOf(account)
func (t *Token) BalanceOf(opts *bind.CallOpts, account common.Address) (*big.Int, error) {
	return t.callUint(opts, MethodBalanceOf, account)
}

// Approve 提交 approve(spender, value)
func (t *Token) Approve(opts *bind.TransactOpts, spender common.Address, value *big.Int) (*types.Transaction, error) {
	if opts == nil {
		return nil, errors.New("approve: nil transact opts")
	}
	return t.contract.Transact(opts, MethodApprove, spender, value)
}

func (t *Token) callUint(opts *bind.CallOpts, method string, params ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(opts, &out, method, params...); err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, errors.New(method + ": unexpected output length")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Package chainerr 定义购买流程的错误分类，并把RPC/钱包返回的原始错误归入这些分类
package chainerr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrLedgerUnavailable 网络/RPC暂时不可用，引发它的读取可以安全重试
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrProductNotFound 链上返回默认空记录，对当前流程是终止性错误
	ErrProductNotFound = errors.New("product not found")

	// ErrUserRejected 签名方拒绝签名
	ErrUserRejected = errors.New("user rejected the request")

	// ErrInsufficientFunds 代币余额不足以支付总价
	ErrInsufficientFunds = errors.New("insufficient token balance")

	// ErrInsufficientAllowance 授权额度不足
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrInsufficientGas 手续费不足或gas估算失败
	ErrInsufficientGas = errors.New("insufficient gas")

	// ErrContractReverted 合约执行回滚
	ErrContractReverted = errors.New("contract reverted")

	// ErrNoSignerAvailable 没有连接钱包
	ErrNoSignerAvailable = errors.New("no signer available")
)

// userRejectedCode EIP-1193 中钱包拒绝请求的错误码
const userRejectedCode = 4001

// RevertError 合约回滚，Reason 为解码后的原因（可能为空），Data 为原始回滚数据
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return ErrContractReverted.Error()
	}
	return fmt.Sprintf("%s: %s", ErrContractReverted, e.Reason)
}

// Is 使 errors.Is(err, ErrContractReverted) 成立
func (e *RevertError) Is(target error) bool {
	return target == ErrContractReverted
}

// NewRevertError 从原始回滚数据构造 RevertError，能解码 Error(string) 时填充 Reason
func NewRevertError(data []byte) *RevertError {
	e := &RevertError{Data: data}
	if reason, err := abi.UnpackRevert(data); err == nil {
		e.Reason = reason
	}
	return e
}

// taxonomy 已归类的错误
var taxonomy = []error{
	ErrLedgerUnavailable,
	ErrProductNotFound,
	ErrUserRejected,
	ErrInsufficientFunds,
	ErrInsufficientAllowance,
	ErrInsufficientGas,
	ErrContractReverted,
	ErrNoSignerAvailable,
}

// IsClassified 判断错误是否已属于分类之一
func IsClassified(err error) bool {
	for _, target := range taxonomy {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Classify 把读取类调用的错误归类：除已归类的错误外一律视为 ErrLedgerUnavailable
func Classify(err error) error {
	if err == nil || IsClassified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
}

// ClassifySubmit 把交易提交/估算阶段的错误归类
func ClassifySubmit(err error) error {
	if err == nil || IsClassified(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "user rejected", "user denied", "rejected by user"):
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	case containsAny(msg, "insufficient funds for gas", "intrinsic gas too low", "out of gas", "gas required exceeds"):
		return fmt.Errorf("%w: %w", ErrInsufficientGas, err)
	case containsAny(msg, "transfer amount exceeds balance", "insufficient balance"):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case containsAny(msg, "transfer amount exceeds allowance", "insufficient allowance"):
		return fmt.Errorf("%w: %w", ErrInsufficientAllowance, err)
	case strings.Contains(msg, "execution reverted"):
		return revertFromRPC(err)
	}
	return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
}

// revertFromRPC 优先使用 rpc.DataError 中的原始数据解码回滚原因
func revertFromRPC(err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(s); decodeErr == nil {
				return NewRevertError(data)
			}
		}
	}

	// 节点把原因拼在消息里："execution reverted: <reason>"
	_, reason, _ := strings.Cut(err.Error(), "execution reverted")
	reason = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(reason), ":"))
	return &RevertError{Reason: reason}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

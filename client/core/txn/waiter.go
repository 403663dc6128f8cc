package txn

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/pkg/interfaces/infrastructure/log"
)

// Backend 等待确认所需的链能力
type Backend interface {
	bind.DeployBackend
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainWaiter 基于 bind.WaitMined 的等待实现
type ChainWaiter struct {
	backend Backend
	logger  log.Logger
}

// NewChainWaiter 创建等待器
func NewChainWaiter(backend Backend, logger log.Logger) *ChainWaiter {
	return &ChainWaiter{backend: backend, logger: logger}
}

// WaitMined 轮询回执直到上链；执行失败时在回执所在区块重放调用以取得回滚原因
func (w *ChainWaiter) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, w.backend, tx)
	if err != nil {
		return nil, chainerr.Classify(err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return receipt, nil
	}

	w.logger.Warnf("transaction %s failed in block %s", tx.Hash().Hex(), receipt.BlockNumber)
	return receipt, w.replayRevert(ctx, tx, receipt)
}

// replayRevert 重放失败交易，解析回滚原因
//
// 先在回执所在区块重放（包含同区块中排在前面的交易），不回滚时再在父区块重放。
// 两次都不回滚时原因为空：同区块后续交易可能已改变条件，原因只能尽力恢复。
func (w *ChainWaiter) replayRevert(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) error {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		w.logger.Debugf("cannot recover sender of %s: %v", tx.Hash().Hex(), err)
		return &chainerr.RevertError{}
	}

	msg := ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	for _, block := range replayBlocks(receipt.BlockNumber) {
		_, callErr := w.backend.CallContract(ctx, msg, block)
		if callErr == nil {
			continue
		}
		// 重放得到的是节点错误，除网络错误外都以其分类为准
		classified := chainerr.ClassifySubmit(callErr)
		if errors.Is(classified, chainerr.ErrLedgerUnavailable) {
			return fmt.Errorf("%w (replay: %v)", &chainerr.RevertError{}, callErr)
		}
		return classified
	}
	return &chainerr.RevertError{}
}

// replayBlocks 回执区块及其父区块
func replayBlocks(number *big.Int) []*big.Int {
	if number == nil || number.Sign() <= 0 {
		return []*big.Int{number}
	}
	return []*big.Int{number, new(big.Int).Sub(number, big.NewInt(1))}
}

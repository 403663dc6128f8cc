// Package testutil 提供内存中的假链，供各组件测试使用
//
// FakeChain 按真实ABI解码调用数据并编码返回值，同时实现只读调用、
// approve / buyProduct 提交以及确认等待。交易效果只在确认时生效。
package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/contracts"
)

var (
	// MarketplaceAddress 假链上的商城合约地址
	MarketplaceAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	// TokenAddress 假链上的代币合约地址
	TokenAddress = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

// ApproveCall 一次 approve 提交
type ApproveCall struct {
	From    common.Address
	Spender common.Address
	Amount  *big.Int
	Hash    common.Hash
}

// BuyCall 一次 buyProduct 提交
type BuyCall struct {
	From     common.Address
	ID       uint64
	Quantity uint64
	Referrer common.Address
	Hash     common.Hash
}

type allowanceKey struct {
	owner, spender common.Address
}

type pendingTx struct {
	approve *ApproveCall
	buy     *BuyCall
}

// FakeChain 内存假链
type FakeChain struct {
	mu sync.Mutex

	products   map[uint64]contracts.ProductRecord
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int

	pending  map[common.Hash]pendingTx
	receipts map[common.Hash]*types.Receipt
	nonce    uint64
	block    uint64

	readErrs   map[string]error
	submitErrs map[string]error
	reverts    map[string]string

	hold      chan struct{}
	holdOnce  *sync.Once
	submitted chan common.Hash

	approveCalls []ApproveCall
	buyCalls     []BuyCall
	readCalls    map[string]int
}

// NewFakeChain 创建空链
func NewFakeChain() *FakeChain {
	return &FakeChain{
		products:   make(map[uint64]contracts.ProductRecord),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		pending:    make(map[common.Hash]pendingTx),
		receipts:   make(map[common.Hash]*types.Receipt),
		readErrs:   make(map[string]error),
		submitErrs: make(map[string]error),
		reverts:    make(map[string]string),
		readCalls:  make(map[string]int),
		block:      100,
	}
}

// ===== 状态设置 =====

// SetProduct 上架或覆盖商品
func (f *FakeChain) SetProduct(rec contracts.ProductRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[rec.ID.Uint64()] = rec
}

// SetProductQuantity 修改库存，模拟其他买家
func (f *FakeChain) SetProductQuantity(id uint64, quantity uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.products[id]
	rec.Quantity = new(big.Int).SetUint64(quantity)
	f.products[id] = rec
}

// Product 当前商品记录
func (f *FakeChain) Product(id uint64) contracts.ProductRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id]
}

// SetBalance 设置代币余额
func (f *FakeChain) SetBalance(owner common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[owner] = new(big.Int).Set(amount)
}

// Balance 代币余额
func (f *FakeChain) Balance(owner common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balanceLocked(owner)
}

// SetAllowance 设置授权额度
func (f *FakeChain) SetAllowance(owner, spender common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}

// Allowance 授权额度
func (f *FakeChain) Allowance(owner, spender common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowanceLocked(owner, spender)
}

// ===== 故障注入 =====

// FailReads 让指定方法（getProduct / balanceOf / allowance）的读取失败，err 为 nil 时恢复
func (f *FakeChain) FailReads(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.readErrs, method)
		return
	}
	f.readErrs[method] = err
}

// FailSubmit 让 approve / buyProduct 提交失败
func (f *FakeChain) FailSubmit(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.submitErrs, method)
		return
	}
	f.submitErrs[method] = err
}

// RevertOnConfirm 让 approve / buyProduct 在确认时回滚
func (f *FakeChain) RevertOnConfirm(method string, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverts[method] = reason
}

// HoldConfirmations 暂停确认，直到调用 release；submitted 在每次提交后收到交易哈希
func (f *FakeChain) HoldConfirmations() (submitted <-chan common.Hash, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = make(chan struct{})
	f.holdOnce = &sync.Once{}
	f.submitted = make(chan common.Hash, 16)

	hold, once := f.hold, f.holdOnce
	return f.submitted, func() { once.Do(func() { close(hold) }) }
}

// ===== 调用记录 =====

// ApproveCalls 已提交的 approve
func (f *FakeChain) ApproveCalls() []ApproveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ApproveCall(nil), f.approveCalls...)
}

// BuyCalls 已提交的 buyProduct
func (f *FakeChain) BuyCalls() []BuyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BuyCall(nil), f.buyCalls...)
}

// ReadCalls 指定只读方法的调用次数
func (f *FakeChain) ReadCalls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls[method]
}

// ===== bind.ContractCaller =====

// CodeAt 已知合约地址返回非空代码
func (f *FakeChain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	if contract == MarketplaceAddress || contract == TokenAddress {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

// CallContract 解码调用数据并返回ABI编码结果
func (f *FakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call.To == nil || len(call.Data) < 4 {
		return nil, errors.New("invalid call")
	}

	parsed, err := abiFor(*call.To)
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.readCalls[method.Name]++
	if err := f.readErrs[method.Name]; err != nil {
		return nil, err
	}

	switch method.Name {
	case contracts.MethodGetProduct:
		rec, ok := f.products[args[0].(*big.Int).Uint64()]
		if !ok {
			rec = contracts.ProductRecord{}
		}
		return method.Outputs.Pack(
			orZero(rec.ID), rec.Name, orZero(rec.Price), orZero(rec.Quantity), rec.IsForSale,
			rec.Seller, orZero(rec.SellerBalance), rec.ContentRef, rec.Description,
		)
	case contracts.MethodBalanceOf:
		return method.Outputs.Pack(f.balanceLocked(args[0].(common.Address)))
	case contracts.MethodAllowance:
		return method.Outputs.Pack(f.allowanceLocked(args[0].(common.Address), args[1].(common.Address)))
	case contracts.MethodBuyProduct:
		// 失败交易重放
		_, reason := f.validateBuyLocked(call.From, args[0].(*big.Int).Uint64(), args[1].(*big.Int).Uint64())
		if reason != "" {
			return nil, fmt.Errorf("execution reverted: %s", reason)
		}
		return nil, nil
	case contracts.MethodApprove:
		return method.Outputs.Pack(true)
	}
	return nil, fmt.Errorf("unsupported method %s", method.Name)
}

// ===== 提交 =====

// Approve 实现代币 approve 提交
func (f *FakeChain) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.submitErrs[contracts.MethodApprove]; err != nil {
		return nil, err
	}

	data, err := contracts.ParsedTokenABI().Pack(contracts.MethodApprove, spender, amount)
	if err != nil {
		return nil, err
	}
	tx, err := f.newTxLocked(opts, TokenAddress, data)
	if err != nil {
		return nil, err
	}
	call := ApproveCall{From: opts.From, Spender: spender, Amount: new(big.Int).Set(amount), Hash: tx.Hash()}
	f.approveCalls = append(f.approveCalls, call)
	f.pending[tx.Hash()] = pendingTx{approve: &call}
	f.notifyLocked(tx.Hash())
	return tx, nil
}

// BuyProduct 实现商城 buyProduct 提交
func (f *FakeChain) BuyProduct(opts *bind.TransactOpts, id *big.Int, quantity *big.Int, referrer common.Address) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.submitErrs[contracts.MethodBuyProduct]; err != nil {
		return nil, err
	}

	data, err := contracts.ParsedMarketplaceABI().Pack(contracts.MethodBuyProduct, id, quantity, referrer)
	if err != nil {
		return nil, err
	}
	tx, err := f.newTxLocked(opts, MarketplaceAddress, data)
	if err != nil {
		return nil, err
	}
	call := BuyCall{From: opts.From, ID: id.Uint64(), Quantity: quantity.Uint64(), Referrer: referrer, Hash: tx.Hash()}
	f.buyCalls = append(f.buyCalls, call)
	f.pending[tx.Hash()] = pendingTx{buy: &call}
	f.notifyLocked(tx.Hash())
	return tx, nil
}

// ===== 确认 =====

// WaitMined 实现 txn.Waiter：确认交易并应用效果
func (f *FakeChain) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f.mu.Lock()
	hold := f.hold
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mineLocked(tx.Hash())
}

// MineAll 确认所有待确认交易
func (f *FakeChain) MineAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash := range f.pending {
		_, _ = f.mineLocked(hash)
	}
}

// TransactionReceipt 实现 bind.DeployBackend
func (f *FakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *FakeChain) mineLocked(hash common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[hash]; ok {
		if r.Status == types.ReceiptStatusFailed {
			return r, &chainerr.RevertError{Reason: "already failed"}
		}
		return r, nil
	}

	p, ok := f.pending[hash]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction %s", chainerr.ErrLedgerUnavailable, hash.Hex())
	}
	delete(f.pending, hash)

	f.block++
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(f.block),
	}
	f.receipts[hash] = receipt

	var reason string
	switch {
	case p.approve != nil:
		reason = f.reverts[contracts.MethodApprove]
		if reason == "" {
			f.allowances[allowanceKey{p.approve.From, p.approve.Spender}] = new(big.Int).Set(p.approve.Amount)
		}
	case p.buy != nil:
		reason = f.reverts[contracts.MethodBuyProduct]
		if reason == "" {
			reason = f.applyBuyLocked(p.buy)
		}
	}

	if reason != "" {
		receipt.Status = types.ReceiptStatusFailed
		return receipt, &chainerr.RevertError{Reason: reason}
	}
	return receipt, nil
}

// validateBuyLocked 按合约规则检查购买，返回总价和回滚原因
func (f *FakeChain) validateBuyLocked(from common.Address, id, quantity uint64) (*big.Int, string) {
	rec, ok := f.products[id]
	if !ok {
		return nil, "Product does not exist"
	}
	if !rec.IsForSale {
		return nil, "Product not for sale"
	}
	if quantity == 0 || rec.Quantity.Cmp(new(big.Int).SetUint64(quantity)) < 0 {
		return nil, "Not enough quantity"
	}
	total := new(big.Int).Mul(rec.Price, new(big.Int).SetUint64(quantity))
	if f.allowanceLocked(from, MarketplaceAddress).Cmp(total) < 0 {
		return nil, "ERC20: insufficient allowance"
	}
	if f.balanceLocked(from).Cmp(total) < 0 {
		return nil, "ERC20: transfer amount exceeds balance"
	}
	return total, ""
}

func (f *FakeChain) applyBuyLocked(call *BuyCall) string {
	total, reason := f.validateBuyLocked(call.From, call.ID, call.Quantity)
	if reason != "" {
		return reason
	}

	rec := f.products[call.ID]
	rec.Quantity = new(big.Int).Sub(rec.Quantity, new(big.Int).SetUint64(call.Quantity))
	rec.SellerBalance = new(big.Int).Add(orZero(rec.SellerBalance), total)
	f.products[call.ID] = rec

	f.balances[call.From] = new(big.Int).Sub(f.balanceLocked(call.From), total)
	f.balances[rec.Seller] = new(big.Int).Add(f.balanceLocked(rec.Seller), total)

	key := allowanceKey{call.From, MarketplaceAddress}
	f.allowances[key] = new(big.Int).Sub(f.allowanceLocked(call.From, MarketplaceAddress), total)
	return ""
}

// newTxLocked opts 带签名函数时返回已签名交易，确认后可还原发送方重放
func (f *FakeChain) newTxLocked(opts *bind.TransactOpts, to common.Address, data []byte) (*types.Transaction, error) {
	f.nonce++
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    f.nonce,
		To:       &to,
		Gas:      100_000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
	if opts == nil || opts.Signer == nil {
		return tx, nil
	}
	return opts.Signer(opts.From, tx)
}

func (f *FakeChain) notifyLocked(hash common.Hash) {
	if f.submitted == nil {
		return
	}
	select {
	case f.submitted <- hash:
	default:
	}
}

func (f *FakeChain) balanceLocked(owner common.Address) *big.Int {
	if b, ok := f.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (f *FakeChain) allowanceLocked(owner, spender common.Address) *big.Int {
	if a, ok := f.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func abiFor(addr common.Address) (abi.ABI, error) {
	switch addr {
	case MarketplaceAddress:
		return contracts.ParsedMarketplaceABI(), nil
	case TokenAddress:
		return contracts.ParsedTokenABI(), nil
	}
	return abi.ABI{}, fmt.Errorf("no contract at %s", addr.Hex())
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

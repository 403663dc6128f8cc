// Package checkout 实现商品购买流程的状态机
//
// 控制器按以下顺序驱动一次购买：加载商品 → 检查授权 → （授权不足时）精确授权
// → 再次检查授权 → 购买 → 重新读取商品并刷新授权。同一时间只处理一个用户操作，
// 每次状态变化都通过事件总线发布快照。
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/weisyn/shopflow/client/core/allowance"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/ledger"
	"github.com/weisyn/shopflow/client/core/purchase"
	"github.com/weisyn/shopflow/client/core/token"
	"github.com/weisyn/shopflow/client/core/txn"
	"github.com/weisyn/shopflow/client/core/wallet"
	logimpl "github.com/weisyn/shopflow/internal/core/infrastructure/log"
	"github.com/weisyn/shopflow/pkg/interfaces/infrastructure/log"
)

// LedgerReader 商品和余额读取
type LedgerReader interface {
	GetProduct(ctx context.Context, id uint64) (*ledger.Product, error)
	GetTokenBalance(ctx context.Context, owner common.Address) (token.Amount, error)
}

// AllowanceService 授权检查与授权提交
type AllowanceService interface {
	CheckSufficiency(ctx context.Context, required token.Amount, owner, spender common.Address) (allowance.State, error)
	RequestApproval(ctx context.Context, spender common.Address, amount token.Amount) (*txn.Pending, error)
}

// Buyer 购买提交
type Buyer interface {
	Buy(ctx context.Context, req purchase.Request) (*txn.Pending, error)
}

// Deps 控制器依赖
type Deps struct {
	Reader    LedgerReader
	Allowance AllowanceService
	Buyer     Buyer
	Signer    wallet.Signer // 可以为 nil，此时只能浏览商品
	Logger    log.Logger
	Bus       evbus.Bus // 为 nil 时使用私有总线
	Metrics   *Metrics  // 可以为 nil
}

// Options 单次流程参数
type Options struct {
	ProductID   uint64
	Marketplace common.Address // 授权的 spender
	Referrer    common.Address // 零地址表示无推荐人
}

// Controller 购买流程控制器
type Controller struct {
	deps    Deps
	opts    Options
	logger  log.Logger
	bus     evbus.Bus
	metrics *Metrics

	running atomic.Bool // 同一时间只处理一个操作

	mu    sync.RWMutex
	state State

	// productStale 购买结果未知时置位，下一次操作先重新读取商品
	productStale bool
}

// New 创建控制器，状态为 Idle
func New(deps Deps, opts Options) *Controller {
	sessionID := uuid.NewString()
	logger := logimpl.NewModuleLogger(deps.Logger, "checkout").With("session", sessionID, "product_id", opts.ProductID)

	return &Controller{
		deps:    deps,
		opts:    opts,
		logger:  logger,
		bus:     newBus(deps.Bus),
		metrics: deps.Metrics,
		state: State{
			SessionID: sessionID,
			Phase:     PhaseIdle,
		},
	}
}

// Snapshot 当前状态副本
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// Start 加载商品，随后按数量1检查授权
//
// 在 Idle 状态调用；因网络原因加载失败后可以再次调用重试。
// 商品不存在时流程终止。
func (c *Controller) Start(ctx context.Context) error {
	if !c.acquire() {
		return ErrActionInFlight
	}
	defer c.release()

	s := c.Snapshot()
	switch {
	case s.Phase == PhaseFailed && errors.Is(s.Err, chainerr.ErrProductNotFound):
		return ErrFlowTerminated
	case s.Phase != PhaseIdle && s.Phase != PhaseFailed:
		return ErrAlreadyStarted
	}

	c.clearError()
	if err := c.loadProduct(ctx); err != nil {
		return err
	}
	c.logAllowanceErr(c.checkAllowance(ctx))
	return nil
}

// Refresh 重新读取商品和授权
func (c *Controller) Refresh(ctx context.Context) error {
	if !c.acquire() {
		return ErrActionInFlight
	}
	defer c.release()

	if err := c.requireLoaded(); err != nil {
		return err
	}
	c.clearError()
	if err := c.loadProduct(ctx); err != nil {
		return err
	}
	return c.checkAllowance(ctx)
}

// SetQuantity 处理数量输入
//
// 非数字输入和小于1的数量被拒绝且不改变状态；超过可售数量时截断到可售数量。
// 数量生效后重新检查授权，检查失败的错误会被返回，但数量已经更新。
func (c *Controller) SetQuantity(ctx context.Context, input string) error {
	if !c.acquire() {
		return ErrActionInFlight
	}
	defer c.release()

	if err := c.requireLoaded(); err != nil {
		return err
	}

	n, err := parseQuantity(input)
	if err != nil {
		return err
	}
	return c.applyQuantity(ctx, n)
}

// AdjustQuantity 数量加减，结果超出 [1, 可售数量] 时忽略
func (c *Controller) AdjustQuantity(ctx context.Context, delta int) error {
	if !c.acquire() {
		return ErrActionInFlight
	}
	defer c.release()

	if err := c.requireLoaded(); err != nil {
		return err
	}

	s := c.Snapshot()
	next := int64(s.Quantity) + int64(delta)
	if next < 1 || uint64(next) > s.Product.AvailableQuantity {
		return ErrQuantityOutOfRange
	}
	return c.applyQuantity(ctx, next)
}

// AttemptPurchase 用户点击购买
//
// 授权不足时提交精确授权并等待确认，确认后回到 ReadyToBuy，需要再次调用才会购买；
// 授权足够时提交购买。提交前总是重新读取授权并检查余额。
// 写入失败记录在状态中，返回值仅用于日志。
func (c *Controller) AttemptPurchase(ctx context.Context) error {
	if !c.acquire() {
		c.logger.Debug("purchase attempt ignored, action in flight")
		return ErrActionInFlight
	}
	defer c.release()

	if err := c.requireLoaded(); err != nil {
		return err
	}
	c.clearError()

	if c.isProductStale() {
		if err := c.loadProduct(ctx); err != nil {
			return err
		}
	}

	s := c.Snapshot()
	if err := checkPurchasable(s); err != nil {
		c.metrics.rejection(rejectionLabel(err))
		c.fail(err, err.Error())
		return err
	}
	if c.deps.Signer == nil {
		err := chainerr.ErrNoSignerAvailable
		c.metrics.rejection("no_signer")
		c.fail(err, txn.Reason(err))
		return err
	}

	// 不信任之前的判断，按当前数量重新读取授权
	if err := c.checkAllowance(ctx); err != nil {
		return err
	}

	s = c.Snapshot()
	required := s.RequiredTotal()
	if err := c.checkBalance(ctx, required); err != nil {
		return err
	}

	switch s.Phase {
	case PhaseNeedsApproval:
		return c.approve(ctx, required)
	case PhaseReadyToBuy:
		return c.buy(ctx, s.Quantity)
	}
	return fmt.Errorf("%w: unexpected phase %s", ErrNotReady, s.Phase)
}

// ===== 内部步骤，调用方持有 running =====

func (c *Controller) loadProduct(ctx context.Context) error {
	c.update(func(s *State) {
		if s.Product == nil {
			s.Phase = PhaseLoadingProduct
		}
		s.LoadingProduct = true
	})

	start := time.Now()
	product, err := c.deps.Reader.GetProduct(ctx, c.opts.ProductID)
	c.metrics.observeRead("get_product", start, err)
	if err != nil {
		c.logger.Warnf("load product failed: %v", err)
		c.update(func(s *State) {
			s.LoadingProduct = false
			s.Err = err
			s.LastError = txn.Reason(err)
			if errors.Is(err, chainerr.ErrProductNotFound) {
				s.Phase = PhaseFailed
				s.LastError = "product not found"
				s.Product = nil
				s.Quantity = 0
				s.Allowance = nil
				return
			}
			// 已有商品数据时保留
			if s.Product == nil {
				s.Phase = PhaseFailed
			}
		})
		return err
	}

	c.mu.Lock()
	c.productStale = false
	c.mu.Unlock()

	c.update(func(s *State) {
		prevQuantity := s.Quantity
		s.Product = product
		s.LoadingProduct = false
		s.Quantity = clampQuantity(s.Quantity, product.AvailableQuantity)
		if s.Phase == PhaseLoadingProduct || s.Phase == PhaseFailed || s.Phase == PhaseIdle {
			s.Phase = PhaseReady
		}
		if s.Quantity != prevQuantity {
			s.Allowance = nil
		}
	})
	c.logger.Infof("product loaded: %q price=%s available=%d for_sale=%t",
		product.Name, product.Price, product.AvailableQuantity, product.ForSale)
	return nil
}

// checkAllowance 按当前数量检查授权；失败时授权为未知（fail-closed）
func (c *Controller) checkAllowance(ctx context.Context) error {
	s := c.Snapshot()
	if s.Product == nil {
		return ErrNotReady
	}
	if s.Quantity == 0 || c.deps.Signer == nil {
		c.update(func(st *State) {
			st.Phase = PhaseReady
			st.Allowance = nil
		})
		if c.deps.Signer == nil {
			return chainerr.ErrNoSignerAvailable
		}
		return ErrSoldOut
	}

	required := s.RequiredTotal()
	c.update(func(st *State) { st.Phase = PhaseCheckingAllowance })

	start := time.Now()
	state, err := c.deps.Allowance.CheckSufficiency(ctx, required, c.deps.Signer.Address(), c.opts.Marketplace)
	c.metrics.observeRead("allowance", start, err)
	if err != nil {
		c.logger.Warnf("allowance check failed: %v", err)
		c.update(func(st *State) {
			st.Phase = PhaseReady
			st.Allowance = nil
			st.Err = err
			st.LastError = txn.Reason(err)
		})
		return err
	}

	c.update(func(st *State) {
		st.Allowance = &state
		if state.Sufficient {
			st.Phase = PhaseReadyToBuy
		} else {
			st.Phase = PhaseNeedsApproval
		}
	})
	return nil
}

func (c *Controller) checkBalance(ctx context.Context, required token.Amount) error {
	start := time.Now()
	balance, err := c.deps.Reader.GetTokenBalance(ctx, c.deps.Signer.Address())
	c.metrics.observeRead("balance", start, err)
	if err != nil {
		c.logger.Warnf("balance check failed: %v", err)
		c.fail(err, txn.Reason(err))
		return err
	}

	if balance.LessThan(required) {
		err := fmt.Errorf("%w: have %s, need %s", chainerr.ErrInsufficientFunds, balance, required)
		c.logger.Infof("purchase stopped: %v", err)
		c.metrics.rejection("insufficient_funds")
		c.fail(err, fmt.Sprintf("not enough tokens: have %s, need %s", balance, required))
		return err
	}
	return nil
}

func (c *Controller) approve(ctx context.Context, amount token.Amount) error {
	c.update(func(s *State) {
		s.Phase = PhaseApproving
		s.Approving = true
		s.Approval = txn.Outcome{}
	})

	pending, err := c.deps.Allowance.RequestApproval(ctx, c.opts.Marketplace, amount)
	if err != nil {
		c.metrics.transaction("approve", string(txn.StatusFailed))
		out := txn.Failed(common.Hash{}, err)
		c.update(func(s *State) {
			s.Phase = PhaseNeedsApproval
			s.Approving = false
			s.Approval = out
			s.Err = err
			s.LastError = out.Reason
		})
		return err
	}

	c.update(func(s *State) { s.Approval = pending.Outcome() })
	out := pending.Await(ctx)
	c.logger.Infof("approval %s: tx=%s %s", out.Status, out.Handle.Hex(), out.Reason)

	switch out.Status {
	case txn.StatusConfirmed:
		c.metrics.transaction("approve", string(out.Status))
		c.update(func(s *State) {
			s.Approving = false
			s.Approval = out
		})
		return c.checkAllowance(ctx)

	case txn.StatusPending:
		// 不再等待，授权结果未知
		c.update(func(s *State) {
			s.Phase = PhaseReady
			s.Approving = false
			s.Approval = out
			s.Allowance = nil
		})
		return out.Err
	}

	c.metrics.transaction("approve", string(out.Status))
	c.update(func(s *State) {
		s.Phase = PhaseNeedsApproval
		s.Approving = false
		s.Approval = out
		s.Err = out.Err
		s.LastError = out.Reason
	})
	return out.Err
}

func (c *Controller) buy(ctx context.Context, quantity uint64) error {
	c.update(func(s *State) {
		s.Phase = PhaseBuying
		s.Buying = true
		s.Purchase = txn.Outcome{}
	})

	pending, err := c.deps.Buyer.Buy(ctx, purchase.Request{
		ProductID: c.opts.ProductID,
		Quantity:  quantity,
		Referrer:  c.opts.Referrer,
	})
	if err != nil {
		c.metrics.transaction("buy", string(txn.StatusFailed))
		out := txn.Failed(common.Hash{}, err)
		c.settle(out)
		c.reconcile(ctx)
		return err
	}

	c.update(func(s *State) { s.Purchase = pending.Outcome() })
	out := pending.Await(ctx)
	c.logger.Infof("purchase %s: tx=%s %s", out.Status, out.Handle.Hex(), out.Reason)

	if out.Status == txn.StatusPending {
		// 不再等待；链上结果在下一次操作前重新读取
		c.mu.Lock()
		c.productStale = true
		c.mu.Unlock()
		c.update(func(s *State) {
			s.Phase = PhaseReady
			s.Buying = false
			s.Purchase = out
			s.Allowance = nil
		})
		return out.Err
	}

	c.metrics.transaction("buy", string(out.Status))
	c.settle(out)
	c.reconcile(ctx)
	return out.Err
}

func (c *Controller) settle(out txn.Outcome) {
	c.update(func(s *State) {
		s.Phase = PhaseSettled
		s.Buying = false
		s.Purchase = out
		if out.Err != nil {
			s.Err = out.Err
			s.LastError = out.Reason
		}
	})
}

// reconcile 购买有结果后重新读取商品（库存和卖家余额已变化），再按新库存刷新授权
func (c *Controller) reconcile(ctx context.Context) {
	if err := c.loadProduct(ctx); err != nil {
		c.mu.Lock()
		c.productStale = true
		c.mu.Unlock()
		c.update(func(s *State) {
			// 购买失败原因优先于重新读取的错误
			if s.Purchase.Err != nil && s.Phase != PhaseFailed {
				s.LastError = fmt.Sprintf("%s (refresh failed: %s)", s.Purchase.Reason, s.LastError)
				s.Err = s.Purchase.Err
			}
			if s.Phase == PhaseSettled {
				s.Phase = PhaseReady
				s.Allowance = nil
			}
		})
		return
	}
	c.logAllowanceErr(c.checkAllowance(ctx))
}

// ===== 状态辅助 =====

func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	prev := c.state.Phase
	fn(&c.state)
	snapshot := c.state.clone()
	c.mu.Unlock()

	if snapshot.Phase != prev {
		c.metrics.transition(snapshot.Phase)
		c.logger.Debugf("phase %s -> %s", prev, snapshot.Phase)
	}
	c.publish(snapshot)
}

func (c *Controller) fail(err error, message string) {
	c.update(func(s *State) {
		s.Err = err
		s.LastError = message
	})
}

func (c *Controller) clearError() {
	c.mu.Lock()
	c.state.Err = nil
	c.state.LastError = ""
	c.mu.Unlock()
}

func (c *Controller) acquire() bool {
	return c.running.CompareAndSwap(false, true)
}

func (c *Controller) release() {
	c.running.Store(false)
}

func (c *Controller) isProductStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.productStale
}

func (c *Controller) requireLoaded() error {
	s := c.Snapshot()
	if s.Phase == PhaseFailed && errors.Is(s.Err, chainerr.ErrProductNotFound) {
		return ErrFlowTerminated
	}
	if s.Product == nil {
		return ErrNotReady
	}
	return nil
}

func (c *Controller) applyQuantity(ctx context.Context, n int64) error {
	c.clearError()
	if n < 1 {
		return ErrQuantityTooLow
	}

	s := c.Snapshot()
	available := s.Product.AvailableQuantity
	if available == 0 {
		return ErrSoldOut
	}
	q := clampQuantity(uint64(n), available)

	// 数量未变且授权已知时无需重新检查
	if q == s.Quantity && s.Allowance != nil {
		return nil
	}

	c.update(func(st *State) {
		st.Quantity = q
		st.Allowance = nil
	})
	if c.deps.Signer == nil {
		c.update(func(st *State) { st.Phase = PhaseReady })
		return nil
	}
	return c.checkAllowance(ctx)
}

func (c *Controller) logAllowanceErr(err error) {
	if err == nil || errors.Is(err, ErrSoldOut) || errors.Is(err, chainerr.ErrNoSignerAvailable) {
		return
	}
	c.logger.Warnf("allowance unknown: %v", err)
}

func checkPurchasable(s State) error {
	switch {
	case !s.Product.ForSale:
		return ErrNotForSale
	case s.Product.AvailableQuantity == 0 || s.Quantity == 0:
		return ErrSoldOut
	}
	return nil
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotForSale):
		return "not_for_sale"
	case errors.Is(err, ErrSoldOut):
		return "sold_out"
	}
	return "other"
}

// clampQuantity 截断到 [1, available]；售罄时为0
func clampQuantity(q, available uint64) uint64 {
	switch {
	case available == 0:
		return 0
	case q < 1:
		return 1
	case q > available:
		return available
	}
	return q
}

// parseQuantity 解析十进制整数，超出 int64 的正数按最大值处理（随后被截断）
func parseQuantity(input string) (int64, error) {
	s := strings.TrimSpace(input)
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		if strings.HasPrefix(s, "-") {
			return math.MinInt64, nil
		}
		return math.MaxInt64, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, input)
}

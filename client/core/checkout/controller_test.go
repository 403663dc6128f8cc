package checkout

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weisyn/shopflow/client/core/allowance"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/contracts"
	"github.com/weisyn/shopflow/client/core/ledger"
	"github.com/weisyn/shopflow/client/core/purchase"
	"github.com/weisyn/shopflow/client/core/testutil"
	"github.com/weisyn/shopflow/client/core/txn"
	"github.com/weisyn/shopflow/client/core/wallet"
	logimpl "github.com/weisyn/shopflow/internal/core/infrastructure/log"
)

const buyerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type harness struct {
	c       *Controller
	chain   *testutil.FakeChain
	signer  wallet.Signer
	metrics *Metrics
}

// newHarness 商品1：单价10，库存5；买家余额100，授权 allowance
func newHarness(t *testing.T, allowanceTokens uint64, withSigner bool) *harness {
	t.Helper()
	chain := testutil.NewFakeChain()
	chain.SetProduct(testutil.ProductRecord(1, "Ebook", "10", 5))

	var signer wallet.Signer
	if withSigner {
		s, err := wallet.NewKeySigner(buyerKey, big.NewInt(31337))
		require.NoError(t, err)
		signer = s
		chain.SetBalance(s.Address(), testutil.Tokens(100))
		chain.SetAllowance(s.Address(), testutil.MarketplaceAddress, testutil.Tokens(allowanceTokens))
	}

	logger := logimpl.NewNop()
	reader := ledger.NewReader(chain, testutil.MarketplaceAddress, testutil.TokenAddress, logger)
	metrics := NewMetrics(prometheus.NewRegistry())

	c := New(Deps{
		Reader:    reader,
		Allowance: allowance.NewManager(reader, chain, signer, chain, logger),
		Buyer:     purchase.NewExecutor(chain, signer, chain, logger),
		Signer:    signer,
		Logger:    logger,
		Metrics:   metrics,
	}, Options{
		ProductID:   1,
		Marketplace: testutil.MarketplaceAddress,
		Referrer:    purchase.NoReferrer,
	})
	return &harness{c: c, chain: chain, signer: signer, metrics: metrics}
}

func TestStartLoadsProductAndChecksAllowance(t *testing.T) {
	h := newHarness(t, 0, true)
	assert.Equal(t, PhaseIdle, h.c.Snapshot().Phase)

	require.NoError(t, h.c.Start(context.Background()))

	s := h.c.Snapshot()
	require.NotNil(t, s.Product)
	assert.Equal(t, "Ebook", s.Product.Name)
	assert.Equal(t, uint64(1), s.Quantity)
	assert.Equal(t, PhaseNeedsApproval, s.Phase)
	require.NotNil(t, s.Allowance)
	assert.Equal(t, "10", s.Allowance.Required.String())
	assert.False(t, s.Busy())
	assert.NotEmpty(t, s.SessionID)

	assert.ErrorIs(t, h.c.Start(context.Background()), ErrAlreadyStarted)
}

// 授权不足：先精确授权，再购买
func TestApproveThenBuy(t *testing.T) {
	h := newHarness(t, 0, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))
	require.NoError(t, h.c.SetQuantity(ctx, "3"))

	s := h.c.Snapshot()
	assert.Equal(t, PhaseNeedsApproval, s.Phase)
	assert.Equal(t, "30", s.RequiredTotal().String())
	assert.Equal(t, "approve", s.Action())

	require.NoError(t, h.c.AttemptPurchase(ctx))

	approvals := h.chain.ApproveCalls()
	require.Len(t, approvals, 1)
	assert.Equal(t, 0, approvals[0].Amount.Cmp(testutil.Tokens(30)))
	assert.Empty(t, h.chain.BuyCalls(), "approval must not trigger a buy")

	s = h.c.Snapshot()
	assert.Equal(t, PhaseReadyToBuy, s.Phase)
	assert.Equal(t, txn.StatusConfirmed, s.Approval.Status)
	assert.True(t, s.Allowance.Sufficient)

	require.NoError(t, h.c.AttemptPurchase(ctx))

	buys := h.chain.BuyCalls()
	require.Len(t, buys, 1)
	assert.Equal(t, uint64(3), buys[0].Quantity)
	assert.Equal(t, purchase.NoReferrer, buys[0].Referrer)

	s = h.c.Snapshot()
	assert.Equal(t, txn.StatusConfirmed, s.Purchase.Status)
	assert.Equal(t, uint64(2), s.Product.AvailableQuantity)
	assert.Equal(t, "30", s.Product.SellerBalance.String())
	// 数量被截断到新库存，授权已消耗
	assert.Equal(t, uint64(2), s.Quantity)
	assert.Equal(t, PhaseNeedsApproval, s.Phase)
	assert.Equal(t, 0, h.chain.Balance(h.signer.Address()).Cmp(testutil.Tokens(70)))
}

// 授权足够：直接购买
func TestBuyWithSufficientAllowance(t *testing.T) {
	h := newHarness(t, 100, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))
	require.NoError(t, h.c.SetQuantity(ctx, "2"))
	assert.Equal(t, PhaseReadyToBuy, h.c.Snapshot().Phase)

	reads := h.chain.ReadCalls(contracts.MethodGetProduct)
	require.NoError(t, h.c.AttemptPurchase(ctx))

	assert.Empty(t, h.chain.ApproveCalls())
	require.Len(t, h.chain.BuyCalls(), 1)
	assert.Greater(t, h.chain.ReadCalls(contracts.MethodGetProduct), reads, "product must be re-read after purchase")

	s := h.c.Snapshot()
	assert.Equal(t, uint64(3), s.Product.AvailableQuantity)
	assert.Equal(t, uint64(2), s.Quantity)
	assert.Equal(t, PhaseReadyToBuy, s.Phase)
	assert.Equal(t, "80", s.Allowance.Allowance.String())
}

func TestSetQuantity(t *testing.T) {
	h := newHarness(t, 100, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))

	require.NoError(t, h.c.SetQuantity(ctx, "7"))
	assert.Equal(t, uint64(5), h.c.Snapshot().Quantity, "clamped to available")

	require.NoError(t, h.c.SetQuantity(ctx, "99999999999999999999999"))
	assert.Equal(t, uint64(5), h.c.Snapshot().Quantity)

	tests := []struct {
		input string
		err   error
	}{
		{"abc", ErrInvalidQuantity},
		{"", ErrInvalidQuantity},
		{"1.5", ErrInvalidQuantity},
		{"0", ErrQuantityTooLow},
		{"-2", ErrQuantityTooLow},
	}
	for _, tt := range tests {
		err := h.c.SetQuantity(ctx, tt.input)
		assert.ErrorIs(t, err, tt.err, "input=%q", tt.input)
		assert.Equal(t, uint64(5), h.c.Snapshot().Quantity, "input=%q must not change quantity", tt.input)
	}

	require.NoError(t, h.c.SetQuantity(ctx, " 2 "))
	assert.Equal(t, uint64(2), h.c.Snapshot().Quantity)
}

func TestSetQuantityBeforeStart(t *testing.T) {
	h := newHarness(t, 0, true)
	assert.ErrorIs(t, h.c.SetQuantity(context.Background(), "2"), ErrNotReady)
	assert.ErrorIs(t, h.c.AttemptPurchase(context.Background()), ErrNotReady)
}

func TestAdjustQuantity(t *testing.T) {
	h := newHarness(t, 100, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))

	require.NoError(t, h.c.AdjustQuantity(ctx, 1))
	assert.Equal(t, uint64(2), h.c.Snapshot().Quantity)

	assert.ErrorIs(t, h.c.AdjustQuantity(ctx, -2), ErrQuantityOutOfRange)
	assert.Equal(t, uint64(2), h.c.Snapshot().Quantity)

	require.NoError(t, h.c.AdjustQuantity(ctx, 3))
	assert.ErrorIs(t, h.c.AdjustQuantity(ctx, 1), ErrQuantityOutOfRange)
	assert.Equal(t, uint64(5), h.c.Snapshot().Quantity)
}

// 购买回滚：记录原因，重新读取商品，可再次操作
func TestBuyRevertIsRecoverable(t *testing.T) {
	h := newHarness(t, 100, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))
	h.chain.RevertOnConfirm(contracts.MethodBuyProduct, "Not enough quantity")

	reads := h.chain.ReadCalls(contracts.MethodGetProduct)
	err := h.c.AttemptPurchase(ctx)
	assert.ErrorIs(t, err, chainerr.ErrContractReverted)

	s := h.c.Snapshot()
	assert.Equal(t, txn.StatusFailed, s.Purchase.Status)
	assert.Equal(t, "Not enough quantity", s.Purchase.Reason)
	assert.Equal(t, "Not enough quantity", s.LastError)
	assert.NotEqual(t, [32]byte{}, [32]byte(s.Purchase.Handle))
	assert.Greater(t, h.chain.ReadCalls(contracts.MethodGetProduct), reads)
	assert.Equal(t, PhaseReadyToBuy, s.Phase)
	assert.Equal(t, uint64(5), s.Product.AvailableQuantity)
	assert.False(t, s.Busy())

	h.chain.RevertOnConfirm(contracts.MethodBuyProduct, "")
	require.NoError(t, h.c.SetQuantity(ctx, "2"))
	require.NoError(t, h.c.AttemptPurchase(ctx))
	assert.Equal(t, txn.StatusConfirmed, h.c.Snapshot().Purchase.Status)
	assert.Empty(t, h.c.Snapshot().LastError)
}

func TestBuyRevertKeptWhenRefreshFails(t *testing.T) {
	h := newHarness(t, 100, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))
	h.chain.RevertOnConfirm(contracts.MethodBuyProduct, "Not enough quantity")
	h.chain.FailReads(contracts.MethodGetProduct, errors.New("rpc down"))

	err := h.c.AttemptPurchase(ctx)
	assert.ErrorIs(t, err, chainerr.ErrContractReverted)

	s := h.c.Snapshot()
	assert.Equal(t, txn.StatusFailed, s.Purchase.Status)
	assert.ErrorIs(t, s.Err, chainerr.ErrContractReverted)
	assert.Equal(t, "Not enough quantity (refresh failed: network unavailable, try again)", s.LastError)
	assert.Equal(t, PhaseReady, s.Phase)
	assert.Nil(t, s.Allowance)
	require.NotNil(t, s.Product)
	assert.False(t, s.Busy())

	// 下一次操作先重新读取商品
	h.chain.FailReads(contracts.MethodGetProduct, nil)
	h.chain.RevertOnConfirm(contracts.MethodBuyProduct, "")
	reads := h.chain.ReadCalls(contracts.MethodGetProduct)
	require.NoError(t, h.c.AttemptPurchase(ctx))
	assert.Greater(t, h.chain.ReadCalls(contracts.MethodGetProduct), reads)
	assert.Equal(t, txn.StatusConfirmed, h.c.Snapshot().Purchase.Status)
}

func TestSecondAttemptWhileBuyingIsIgnored(t *testing.T) {
	h := newHarness(t, 100, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))

	submitted, release := h.chain.HoldConfirmations()
	defer release()

	done := make(chan error, 1)
	go func() { done <- h.c.AttemptPurchase(ctx) }()

	select {
	case <-submitted:
	case <-time.After(5 * time.Second):
		t.Fatal("buy was not submitted")
	}
	require.Eventually(t, func() bool {
		return h.c.Snapshot().Purchase.Status == txn.StatusPending
	}, 5*time.Second, 5*time.Millisecond)

	before := h.c.Snapshot()
	assert.True(t, before.Buying)
	assert.Equal(t, PhaseBuying, before.Phase)
	assert.Equal(t, txn.StatusPending, before.Purchase.Status)

	assert.ErrorIs(t, h.c.AttemptPurchase(ctx), ErrActionInFlight)
	assert.ErrorIs(t, h.c.SetQuantity(ctx, "2"), ErrActionInFlight)
	assert.ErrorIs(t, h.c.AdjustQuantity(ctx, 1), ErrActionInFlight)
	assert.Equal(t, before, h.c.Snapshot(), "rejected calls must not change state")

	release()
	require.NoError(t, <-done)
	assert.Len(t, h.chain.BuyCalls(), 1)
	assert.False(t, h.c.Snapshot().Buying)
}

func TestSecondAttemptWhileApprovingIsIgnored(t *testing.T) {
	h := newHarness(t, 0, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))

	submitted, release := h.chain.HoldConfirmations()
	defer release()

	done := make(chan error, 1)
	go func() { done <- h.c.AttemptPurchase(ctx) }()
	<-submitted

	assert.True(t, h.c.Snapshot().Approving)
	assert.ErrorIs(t, h.c.AttemptPurchase(ctx), ErrActionInFlight)

	release()
	require.NoError(t, <-done)
	assert.Len(t, h.chain.ApproveCalls(), 1)
	assert.Empty(t, h.chain.BuyCalls())
}

func TestInsufficientBalanceSubmitsNothing(t *testing.T) {
	for _, allowanceTokens := range []uint64{0, 100} {
		h := newHarness(t, allowanceTokens, true)
		ctx := context.Background()
		h.chain.SetBalance(h.signer.Address(), testutil.Tokens(25))
		require.NoError(t, h.c.Start(ctx))
		require.NoError(t, h.c.SetQuantity(ctx, "3"))

		err := h.c.AttemptPurchase(ctx)
		assert.ErrorIs(t, err, chainerr.ErrInsufficientFunds)
		assert.Empty(t, h.chain.ApproveCalls())
		assert.Empty(t, h.chain.BuyCalls())

		s := h.c.Snapshot()
		assert.Contains(t, s.LastError, "need 30")
		assert.False(t, s.Busy())
		assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.rejections.WithLabelValues("insufficient_funds")))
	}
}

// 之前计算的"授权足够"不能作为购买依据
func TestStaleAllowanceIsRechecked(t *testing.T) {
	h := newHarness(t, 10, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))
	assert.Equal(t, PhaseReadyToBuy, h.c.Snapshot().Phase)

	h.chain.SetAllowance(h.signer.Address(), testutil.MarketplaceAddress, big.NewInt(0))
	require.NoError(t, h.c.AttemptPurchase(ctx))

	assert.Len(t, h.chain.ApproveCalls(), 1)
	assert.Empty(t, h.chain.BuyCalls())
}

func TestAllowanceReadFailureFailsClosed(t *testing.T) {
	h := newHarness(t, 100, true)
	ctx := context.Background()
	h.chain.FailReads(contracts.MethodAllowance, errors.New("connection refused"))

	require.NoError(t, h.c.Start(ctx))
	s := h.c.Snapshot()
	assert.Equal(t, PhaseReady, s.Phase)
	assert.Nil(t, s.Allowance)

	err := h.c.AttemptPurchase(ctx)
	assert.ErrorIs(t, err, chainerr.ErrLedgerUnavailable)
	assert.Empty(t, h.chain.ApproveCalls())
	assert.Empty(t, h.chain.BuyCalls())
	assert.Equal(t, "network unavailable, try again", h.c.Snapshot().LastError)

	h.chain.FailReads(contracts.MethodAllowance, nil)
	require.NoError(t, h.c.AttemptPurchase(ctx))
	assert.Len(t, h.chain.BuyCalls(), 1)
}

func TestApprovalRejectedInWallet(t *testing.T) {
	h := newHarness(t, 0, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))
	h.chain.FailSubmit(contracts.MethodApprove, errors.New("user denied transaction signature"))

	err := h.c.AttemptPurchase(ctx)
	assert.ErrorIs(t, err, chainerr.ErrUserRejected)

	s := h.c.Snapshot()
	assert.Equal(t, PhaseNeedsApproval, s.Phase)
	assert.Equal(t, txn.StatusFailed, s.Approval.Status)
	assert.Equal(t, "request rejected in wallet", s.LastError)
	assert.False(t, s.Approving)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.transactions.WithLabelValues("approve", "failed")))
}

func TestProductNotFoundIsTerminal(t *testing.T) {
	h := newHarness(t, 0, true)
	c := New(h.c.deps, Options{ProductID: 42, Marketplace: testutil.MarketplaceAddress})

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, chainerr.ErrProductNotFound)

	s := c.Snapshot()
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.Equal(t, "product not found", s.LastError)
	assert.Nil(t, s.Product)

	assert.ErrorIs(t, c.Start(context.Background()), ErrFlowTerminated)
	assert.ErrorIs(t, c.AttemptPurchase(context.Background()), ErrFlowTerminated)
}

func TestStartRetryAfterLedgerUnavailable(t *testing.T) {
	h := newHarness(t, 0, true)
	ctx := context.Background()
	h.chain.FailReads(contracts.MethodGetProduct, errors.New("dial tcp: i/o timeout"))

	assert.ErrorIs(t, h.c.Start(ctx), chainerr.ErrLedgerUnavailable)
	s := h.c.Snapshot()
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.False(t, s.LoadingProduct)

	h.chain.FailReads(contracts.MethodGetProduct, nil)
	require.NoError(t, h.c.Start(ctx))
	assert.Equal(t, PhaseNeedsApproval, h.c.Snapshot().Phase)
}

func TestRefreshKeepsProductOnReadFailure(t *testing.T) {
	h := newHarness(t, 100, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))

	h.chain.FailReads(contracts.MethodGetProduct, errors.New("rpc down"))
	assert.ErrorIs(t, h.c.Refresh(ctx), chainerr.ErrLedgerUnavailable)

	s := h.c.Snapshot()
	require.NotNil(t, s.Product)
	assert.Equal(t, "Ebook", s.Product.Name)
	assert.False(t, s.LoadingProduct)
}

func TestNotForSaleAndSoldOut(t *testing.T) {
	t.Run("not for sale", func(t *testing.T) {
		h := newHarness(t, 100, true)
		rec := testutil.ProductRecord(1, "Ebook", "10", 5)
		rec.IsForSale = false
		h.chain.SetProduct(rec)
		require.NoError(t, h.c.Start(context.Background()))

		assert.ErrorIs(t, h.c.AttemptPurchase(context.Background()), ErrNotForSale)
		assert.Empty(t, h.chain.BuyCalls())
	})

	t.Run("sold out", func(t *testing.T) {
		h := newHarness(t, 100, true)
		h.chain.SetProductQuantity(1, 0)
		require.NoError(t, h.c.Start(context.Background()))

		s := h.c.Snapshot()
		assert.Equal(t, uint64(0), s.Quantity)
		assert.Equal(t, PhaseReady, s.Phase)
		assert.ErrorIs(t, h.c.SetQuantity(context.Background(), "1"), ErrSoldOut)
		assert.ErrorIs(t, h.c.AttemptPurchase(context.Background()), ErrSoldOut)
		assert.Empty(t, h.chain.BuyCalls())
	})
}

func TestWithoutSigner(t *testing.T) {
	h := newHarness(t, 0, false)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))

	s := h.c.Snapshot()
	assert.Equal(t, PhaseReady, s.Phase)
	assert.Nil(t, s.Allowance)

	require.NoError(t, h.c.SetQuantity(ctx, "2"))
	assert.ErrorIs(t, h.c.AttemptPurchase(ctx), chainerr.ErrNoSignerAvailable)
	assert.Equal(t, "wallet not connected", h.c.Snapshot().LastError)
}

// 取消等待不撤回交易，下一次读取反映链上结果
func TestCancelStopsWaiting(t *testing.T) {
	h := newHarness(t, 100, true)
	require.NoError(t, h.c.Start(context.Background()))

	submitted, release := h.chain.HoldConfirmations()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.c.AttemptPurchase(ctx) }()
	<-submitted
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	s := h.c.Snapshot()
	assert.Equal(t, txn.StatusPending, s.Purchase.Status)
	assert.NotEqual(t, [32]byte{}, [32]byte(s.Purchase.Handle))
	assert.False(t, s.Buying)
	assert.Nil(t, s.Allowance)

	release()
	h.chain.MineAll()

	require.NoError(t, h.c.Refresh(context.Background()))
	assert.Equal(t, uint64(4), h.c.Snapshot().Product.AvailableQuantity)
}

func TestSubscribePublishesTransitions(t *testing.T) {
	h := newHarness(t, 0, true)

	var mu sync.Mutex
	var phases []Phase
	unsubscribe, err := h.c.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	})
	require.NoError(t, err)

	require.NoError(t, h.c.Start(context.Background()))
	require.NoError(t, h.c.AttemptPurchase(context.Background()))

	mu.Lock()
	got := append([]Phase(nil), phases...)
	mu.Unlock()
	assert.Equal(t, []Phase{
		PhaseLoadingProduct,
		PhaseReady,
		PhaseCheckingAllowance,
		PhaseNeedsApproval,
		PhaseCheckingAllowance,
		PhaseNeedsApproval,
		PhaseApproving,
		PhaseCheckingAllowance,
		PhaseReadyToBuy,
	}, got)

	unsubscribe()
	count := len(got)
	require.NoError(t, h.c.SetQuantity(context.Background(), "2"))
	mu.Lock()
	assert.Len(t, phases, count)
	mu.Unlock()
}

func TestMetricsCountTransactions(t *testing.T) {
	h := newHarness(t, 0, true)
	ctx := context.Background()
	require.NoError(t, h.c.Start(ctx))
	require.NoError(t, h.c.AttemptPurchase(ctx))
	require.NoError(t, h.c.AttemptPurchase(ctx))

	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.transactions.WithLabelValues("approve", "confirmed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.transactions.WithLabelValues("buy", "confirmed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.transitions.WithLabelValues(string(PhaseSettled))))
}

func TestNewMetricsReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)
	first.transaction("buy", "confirmed")
	assert.Equal(t, 1.0, promtest.ToFloat64(second.transactions.WithLabelValues("buy", "confirmed")))
}

func TestParseQuantity(t *testing.T) {
	n, err := parseQuantity("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	_, err = parseQuantity("1e3")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	n, err = parseQuantity("-99999999999999999999")
	require.NoError(t, err)
	assert.Less(t, n, int64(0))
}

func TestClampQuantity(t *testing.T) {
	assert.Equal(t, uint64(0), clampQuantity(3, 0))
	assert.Equal(t, uint64(1), clampQuantity(0, 5))
	assert.Equal(t, uint64(5), clampQuantity(9, 5))
	assert.Equal(t, uint64(3), clampQuantity(3, 5))
}

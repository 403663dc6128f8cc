package allowance

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/contracts"
	"github.com/weisyn/shopflow/client/core/ledger"
	"github.com/weisyn/shopflow/client/core/testutil"
	"github.com/weisyn/shopflow/client/core/token"
	"github.com/weisyn/shopflow/client/core/txn"
	"github.com/weisyn/shopflow/client/core/wallet"
	logimpl "github.com/weisyn/shopflow/internal/core/infrastructure/log"
)

const buyerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func setup(t *testing.T, signer wallet.Signer) (*Manager, *testutil.FakeChain) {
	t.Helper()
	chain := testutil.NewFakeChain()
	reader := ledger.NewReader(chain, testutil.MarketplaceAddress, testutil.TokenAddress, logimpl.NewNop())
	return NewManager(reader, chain, signer, chain, logimpl.NewNop()), chain
}

func newSigner(t *testing.T) wallet.Signer {
	t.Helper()
	s, err := wallet.NewKeySigner(buyerKey, big.NewInt(31337))
	require.NoError(t, err)
	return s
}

func TestCheckSufficiency(t *testing.T) {
	signer := newSigner(t)
	m, chain := setup(t, signer)
	chain.SetAllowance(signer.Address(), testutil.MarketplaceAddress, testutil.Tokens(30))
	ctx := context.Background()

	tests := []struct {
		required   string
		sufficient bool
	}{
		{"29.999999999999999999", true},
		{"30", true},
		{"30.000000000000000001", false},
		{"0", true},
	}
	for _, tt := range tests {
		state, err := m.CheckSufficiency(ctx, token.MustParseAmount(tt.required), signer.Address(), testutil.MarketplaceAddress)
		require.NoError(t, err)
		assert.Equal(t, tt.sufficient, state.Sufficient, "required=%s", tt.required)
		assert.Equal(t, "30", state.Allowance.String())
	}
}

func TestSufficiencyIsMonotonic(t *testing.T) {
	allowance := token.NewAmountFromTokens(25)
	for total := uint64(0); total <= 50; total++ {
		if !NewState(allowance, token.NewAmountFromTokens(total)).Sufficient {
			continue
		}
		for lower := uint64(0); lower <= total; lower++ {
			assert.True(t, NewState(allowance, token.NewAmountFromTokens(lower)).Sufficient)
		}
	}
}

func TestCheckSufficiencyIsIdempotent(t *testing.T) {
	signer := newSigner(t)
	m, chain := setup(t, signer)
	chain.SetAllowance(signer.Address(), testutil.MarketplaceAddress, testutil.Tokens(5))
	required := token.NewAmountFromTokens(10)

	first, err := m.CheckSufficiency(context.Background(), required, signer.Address(), testutil.MarketplaceAddress)
	require.NoError(t, err)
	second, err := m.CheckSufficiency(context.Background(), required, signer.Address(), testutil.MarketplaceAddress)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.False(t, first.Sufficient)
}

func TestCheckSufficiencyFailsClosed(t *testing.T) {
	signer := newSigner(t)
	m, chain := setup(t, signer)
	chain.FailReads(contracts.MethodAllowance, errors.New("rpc down"))

	state, err := m.CheckSufficiency(context.Background(), token.NewAmountFromTokens(1), signer.Address(), testutil.MarketplaceAddress)
	assert.ErrorIs(t, err, chainerr.ErrLedgerUnavailable)
	assert.False(t, state.Sufficient)
}

func TestRequestApprovalExactAmount(t *testing.T) {
	signer := newSigner(t)
	m, chain := setup(t, signer)
	amount := token.NewAmountFromTokens(30)

	pending, err := m.RequestApproval(context.Background(), testutil.MarketplaceAddress, amount)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusPending, pending.Outcome().Status)

	calls := chain.ApproveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, signer.Address(), calls[0].From)
	assert.Equal(t, testutil.MarketplaceAddress, calls[0].Spender)
	assert.Equal(t, 0, calls[0].Amount.Cmp(testutil.Tokens(30)))

	// 确认前额度不变
	assert.Equal(t, 0, chain.Allowance(signer.Address(), testutil.MarketplaceAddress).Sign())

	out := pending.Await(context.Background())
	assert.Equal(t, txn.StatusConfirmed, out.Status)
	assert.Equal(t, 0, chain.Allowance(signer.Address(), testutil.MarketplaceAddress).Cmp(testutil.Tokens(30)))
}

func TestRequestApprovalErrors(t *testing.T) {
	t.Run("no signer", func(t *testing.T) {
		m, chain := setup(t, nil)
		_, err := m.RequestApproval(context.Background(), testutil.MarketplaceAddress, token.NewAmountFromTokens(1))
		assert.ErrorIs(t, err, chainerr.ErrNoSignerAvailable)
		assert.Empty(t, chain.ApproveCalls())
	})

	t.Run("user rejected", func(t *testing.T) {
		m, chain := setup(t, newSigner(t))
		chain.FailSubmit(contracts.MethodApprove, errors.New("user rejected transaction"))
		_, err := m.RequestApproval(context.Background(), testutil.MarketplaceAddress, token.NewAmountFromTokens(1))
		assert.ErrorIs(t, err, chainerr.ErrUserRejected)
	})

	t.Run("gas", func(t *testing.T) {
		m, chain := setup(t, newSigner(t))
		chain.FailSubmit(contracts.MethodApprove, errors.New("insufficient funds for gas * price + value"))
		_, err := m.RequestApproval(context.Background(), testutil.MarketplaceAddress, token.NewAmountFromTokens(1))
		assert.ErrorIs(t, err, chainerr.ErrInsufficientGas)
	})

	t.Run("zero amount", func(t *testing.T) {
		m, _ := setup(t, newSigner(t))
		_, err := m.RequestApproval(context.Background(), testutil.MarketplaceAddress, token.Zero())
		assert.ErrorIs(t, err, token.ErrInvalidAmount)
	})
}

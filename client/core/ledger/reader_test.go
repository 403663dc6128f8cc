package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/contracts"
	"github.com/weisyn/shopflow/client/core/testutil"
	logimpl "github.com/weisyn/shopflow/internal/core/infrastructure/log"
)

var buyer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func newReader(chain *testutil.FakeChain) *Reader {
	return NewReader(chain, testutil.MarketplaceAddress, testutil.TokenAddress, logimpl.NewNop())
}

func TestGetProduct(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetProduct(testutil.ProductRecord(7, "Coffee beans", "10.5", 5))
	r := newReader(chain)

	p, err := r.GetProduct(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), p.ID)
	assert.Equal(t, "Coffee beans", p.Name)
	assert.Equal(t, "10.5", p.Price.String())
	assert.Equal(t, uint64(5), p.AvailableQuantity)
	assert.True(t, p.ForSale)
	assert.Equal(t, testutil.SellerAddress, p.Seller)
	assert.True(t, p.SellerBalance.IsZero())
	assert.Equal(t, "Coffee beans description", p.Description)
	assert.Equal(t, "31.5", p.RequiredTotal(3).String())
	assert.Equal(t, "0x7099...79C8", p.ShortSeller())
	assert.Equal(t, "https://ipfs.io/ipfs/QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", p.ContentURL(""))
	assert.Equal(t, "https://gw.example/ipfs/QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", p.ContentURL("https://gw.example/ipfs/"))
}

func TestGetProductSentinelRecord(t *testing.T) {
	chain := testutil.NewFakeChain()
	r := newReader(chain)

	// 未上架的ID返回全零记录
	p, err := r.GetProduct(context.Background(), 42)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, chainerr.ErrProductNotFound)
}

func TestGetProductWithoutSeller(t *testing.T) {
	chain := testutil.NewFakeChain()
	rec := testutil.ProductRecord(3, "Orphan", "1", 1)
	rec.Seller = common.Address{}
	chain.SetProduct(rec)

	_, err := newReader(chain).GetProduct(context.Background(), 3)
	assert.ErrorIs(t, err, chainerr.ErrProductNotFound)
}

func TestGetProductUnavailable(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.FailReads(contracts.MethodGetProduct, errors.New("connection refused"))

	_, err := newReader(chain).GetProduct(context.Background(), 1)
	assert.ErrorIs(t, err, chainerr.ErrLedgerUnavailable)
	assert.NotErrorIs(t, err, chainerr.ErrProductNotFound)
}

func TestBalanceAndAllowance(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetBalance(buyer, testutil.Tokens(100))
	chain.SetAllowance(buyer, testutil.MarketplaceAddress, testutil.Tokens(30))
	r := newReader(chain)
	ctx := context.Background()

	balance, err := r.GetTokenBalance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())

	allowance, err := r.GetAllowance(ctx, buyer, r.Marketplace())
	require.NoError(t, err)
	assert.Equal(t, "30", allowance.String())

	// 不同 spender 没有授权
	other, err := r.GetAllowance(ctx, buyer, common.HexToAddress("0x1234"))
	require.NoError(t, err)
	assert.True(t, other.IsZero())

	chain.FailReads(contracts.MethodBalanceOf, errors.New("timeout"))
	_, err = r.GetTokenBalance(ctx, buyer)
	assert.ErrorIs(t, err, chainerr.ErrLedgerUnavailable)

	chain.FailReads(contracts.MethodAllowance, errors.New("timeout"))
	_, err = r.GetAllowance(ctx, buyer, r.Marketplace())
	assert.ErrorIs(t, err, chainerr.ErrLedgerUnavailable)
}

func TestReadsAreIdempotent(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.SetProduct(testutil.ProductRecord(1, "Tea", "2", 9))
	r := newReader(chain)

	first, err := r.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	second, err := r.GetProduct(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, chain.ReadCalls(contracts.MethodGetProduct))
}

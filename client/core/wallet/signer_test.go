package wallet

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weisyn/shopflow/client/core/chainerr"
)

// 公开的测试私钥（hardhat 默认账户0）
const testKeyHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewKeySigner(t *testing.T) {
	signer, err := NewKeySigner(testKeyHex, big.NewInt(31337))
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", signer.Address().Hex())
	assert.Equal(t, SignerTypePrivateKey, signer.Type())

	ctx := context.Background()
	opts, err := signer.TransactOpts(ctx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), opts.From)
	assert.Equal(t, ctx, opts.Context)
}

func TestNewKeySignerInvalid(t *testing.T) {
	_, err := NewKeySigner("not-a-key", big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewKeySigner(testKeyHex, nil)
	assert.Error(t, err)

	_, err = NewKeySigner(testKeyHex, big.NewInt(0))
	assert.Error(t, err)
}

func TestKeystoreSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.ImportECDSA(key, "s3cret")
	require.NoError(t, err)

	signer, err := NewKeystoreSigner(account.URL.Path, "s3cret", big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, account.Address, signer.Address())
	assert.Equal(t, SignerTypeKeystore, signer.Type())

	_, err = NewKeystoreSigner(account.URL.Path, "wrong", big.NewInt(1))
	assert.Error(t, err)

	_, err = NewKeystoreSigner(account.URL.Path+".missing", "s3cret", big.NewInt(1))
	assert.Error(t, err)
}

func TestRequireSigner(t *testing.T) {
	_, err := RequireSigner(nil)
	assert.ErrorIs(t, err, chainerr.ErrNoSignerAvailable)

	signer, err := NewKeySigner(testKeyHex, big.NewInt(1))
	require.NoError(t, err)
	got, err := RequireSigner(signer)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), got.Address())
}

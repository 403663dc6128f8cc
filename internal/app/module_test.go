package app

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weisyn/shopflow/client/core/checkout"
	"github.com/weisyn/shopflow/client/core/config"
	"github.com/weisyn/shopflow/client/core/wallet"
	logimpl "github.com/weisyn/shopflow/internal/core/infrastructure/log"
	"go.uber.org/fx"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func noEnv(string) (string, bool) { return "", false }

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestModuleGraphIsComplete(t *testing.T) {
	opts := NewOptions(WithConfigDir(t.TempDir()), WithProduct(1), WithLookup(noEnv))
	err := fx.ValidateApp(
		Module(opts),
		fx.Invoke(func(*checkout.Controller) {}),
	)
	require.NoError(t, err)
}

func TestLoadProfileOverrides(t *testing.T) {
	dir := t.TempDir()
	opts := NewOptions(
		WithConfigDir(dir),
		WithReferrer("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		WithLookup(envOf(map[string]string{
			config.EnvTokenAddress: "0x0000000000000000000000000000000000000002",
		})),
	)

	p, err := LoadProfile(opts)
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name)
	assert.Equal(t, "0x0000000000000000000000000000000000000002", p.TokenAddress)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", p.ReferrerAddress().Hex())

	_, err = LoadProfile(NewOptions(WithConfigDir(dir), WithProfile("missing"), WithLookup(noEnv)))
	assert.Error(t, err)

	_, err = LoadProfile(NewOptions(WithConfigDir(dir), WithReferrer("bob"), WithLookup(noEnv)))
	assert.ErrorIs(t, err, config.ErrInvalidProfile)
}

func TestProvideProfileMergesLogConfig(t *testing.T) {
	opts := NewOptions(WithConfigDir(t.TempDir()), WithLog("debug", ""), WithLookup(noEnv))
	out, err := ProvideProfile(opts)
	require.NoError(t, err)
	require.NotNil(t, out.UserConfig.Level)
	assert.Equal(t, "debug", *out.UserConfig.Level)
	assert.Nil(t, out.UserConfig.FilePath)
}

func TestLoadSigner(t *testing.T) {
	chainID := big.NewInt(31337)
	profile := &config.Profile{}

	t.Run("none", func(t *testing.T) {
		s, err := LoadSigner(NewOptions(WithLookup(noEnv)), profile, chainID, logimpl.NewNop())
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("flag", func(t *testing.T) {
		s, err := LoadSigner(NewOptions(WithPrivateKey(testKey), WithLookup(noEnv)), profile, chainID, logimpl.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", s.Address().Hex())
	})

	t.Run("env", func(t *testing.T) {
		opts := NewOptions(WithLookup(envOf(map[string]string{config.EnvPrivateKey: "0x" + testKey})))
		s, err := LoadSigner(opts, profile, chainID, logimpl.NewNop())
		require.NoError(t, err)
		assert.Equal(t, wallet.SignerTypePrivateKey, s.Type())
	})

	t.Run("bad key", func(t *testing.T) {
		_, err := LoadSigner(NewOptions(WithPrivateKey("zz"), WithLookup(noEnv)), profile, chainID, logimpl.NewNop())
		assert.ErrorIs(t, err, wallet.ErrInvalidKey)
	})

	t.Run("keystore", func(t *testing.T) {
		dir := t.TempDir()
		key, err := crypto.HexToECDSA(testKey)
		require.NoError(t, err)
		ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
		acc, err := ks.ImportECDSA(key, "secret")
		require.NoError(t, err)

		p := &config.Profile{KeystorePath: acc.URL.Path}
		opts := NewOptions(WithLookup(envOf(map[string]string{config.EnvKeystorePassword: "secret"})))
		s, err := LoadSigner(opts, p, chainID, logimpl.NewNop())
		require.NoError(t, err)
		assert.Equal(t, wallet.SignerTypeKeystore, s.Type())
		assert.Equal(t, acc.Address, s.Address())

		_, err = LoadSigner(NewOptions(WithLookup(noEnv)), &config.Profile{KeystorePath: filepath.Join(dir, "missing")}, chainID, logimpl.NewNop())
		assert.Error(t, err)
	})
}

// Package wallet 提供交易签名能力
//
// 签名器在会话开始时获取一次，并注入到授权管理和购买执行组件；
// 没有签名器（未连接钱包）是独立的错误 chainerr.ErrNoSignerAvailable。
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/weisyn/shopflow/client/core/chainerr"
)

// Signer 签名器接口
type Signer interface {
	// Address 签名账户地址（即买家地址）
	Address() common.Address

	// TransactOpts 返回一次交易使用的签名参数，ctx 绑定到该次提交
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)

	// Type 返回签名器类型
	Type() SignerType
}

// SignerType 签名器类型
type SignerType string

const (
	SignerTypePrivateKey SignerType = "private-key" // 明文私钥（环境变量）
	SignerTypeKeystore   SignerType = "keystore"    // 加密Keystore文件
)

// ErrInvalidKey 私钥格式错误
var ErrInvalidKey = errors.New("invalid private key")

// KeySigner 持有私钥的签名器
type KeySigner struct {
	key       *ecdsa.PrivateKey
	address   common.Address
	chainID   *big.Int
	signerTyp SignerType
}

// NewKeySigner 从十六进制私钥创建签名器，允许带 0x 前缀
func NewKeySigner(hexKey string, chainID *big.Int) (*KeySigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewKeySignerFromECDSA(key, chainID)
}

// NewKeySignerFromECDSA 从已有私钥创建签名器
func NewKeySignerFromECDSA(key *ecdsa.PrivateKey, chainID *big.Int) (*KeySigner, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil key", ErrInvalidKey)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id: %v", chainID)
	}
	return &KeySigner{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:   new(big.Int).Set(chainID),
		signerTyp: SignerTypePrivateKey,
	}, nil
}

// Address 签名账户地址
func (s *KeySigner) Address() common.Address {
	return s.address
}

// TransactOpts 返回绑定到 ctx 的签名参数
func (s *KeySigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Type 返回签名器类型
func (s *KeySigner) Type() SignerType {
	return s.signerTyp
}

// RequireSigner 检查签名器是否可用
func RequireSigner(s Signer) (Signer, error) {
	if s == nil {
		return nil, chainerr.ErrNoSignerAvailable
	}
	return s, nil
}

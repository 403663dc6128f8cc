package wallet

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// NewKeystoreSigner 解密 Web3 Secret Storage 格式的 keystore 文件并创建签名器
//
// 私钥只在本进程内存中存在，不会写回磁盘。
func NewKeystoreSigner(path string, password string, chainID *big.Int) (*KeySigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore %s: %w", path, err)
	}

	key, err := keystore.DecryptKey(data, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}

	signer, err := NewKeySignerFromECDSA(key.PrivateKey, chainID)
	if err != nil {
		return nil, err
	}
	signer.signerTyp = SignerTypeKeystore
	return signer, nil
}

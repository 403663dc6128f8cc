package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/weisyn/shopflow/client/core/contracts"
	"github.com/weisyn/shopflow/client/core/token"
)

// SellerAddress 测试卖家
var SellerAddress = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

// Tokens 整数个代币的链上整数表示
func Tokens(n uint64) *big.Int {
	return token.NewAmountFromTokens(n).BigInt()
}

// ProductRecord 构造在售商品记录，price 为十进制字符串
func ProductRecord(id uint64, name string, price string, quantity uint64) contracts.ProductRecord {
	return contracts.ProductRecord{
		ID:            new(big.Int).SetUint64(id),
		Name:          name,
		Price:         token.MustParseAmount(price).BigInt(),
		Quantity:      new(big.Int).SetUint64(quantity),
		IsForSale:     true,
		Seller:        SellerAddress,
		SellerBalance: new(big.Int),
		ContentRef:    "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		Description:   name + " description",
	}
}

// Package contracts 提供商城合约与代币合约的调用绑定
//
// 只覆盖购买流程用到的方法，结构与 abigen 生成的绑定保持一致，
// 便于将来替换为生成代码。
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// MarketplaceABI 商城合约接口
const MarketplaceABI = `[
  {"type":"function","name":"getProduct","stateMutability":"view",
   "inputs":[{"name":"_id","type":"uint256"}],
   "outputs":[
     {"name":"","type":"uint256"},
     {"name":"","type":"string"},
     {"name":"","type":"uint256"},
     {"name":"","type":"uint256"},
     {"name":"","type":"bool"},
     {"name":"","type":"address"},
     {"name":"","type":"uint256"},
     {"name":"","type":"string"},
     {"name":"","type":"string"}]},
  {"type":"function","name":"buyProduct","stateMutability":"nonpayable",
   "inputs":[
     {"name":"_id","type":"uint256"},
     {"name":"_quantity","type":"uint256"},
     {"name":"_referrer","type":"address"}],
   "outputs":[]}
]`

// TokenABI ERC-20 代币接口（只含授权与余额）
const TokenABI = `[
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

// 方法名
const (
	MethodGetProduct = "getProduct"
	MethodBuyProduct = "buyProduct"
	MethodAllowance  = "allowance"
	MethodApprove    = "approve"
	MethodBalanceOf  = "balanceOf"
)

var (
	marketplaceABI = mustParseABI(MarketplaceABI)
	tokenABI       = mustParseABI(TokenABI)
)

// ParsedMarketplaceABI 返回解析后的商城合约ABI
func ParsedMarketplaceABI() abi.ABI {
	return marketplaceABI
}

// ParsedTokenABI 返回解析后的代币合约ABI
func ParsedTokenABI() abi.ABI {
	return tokenABI
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

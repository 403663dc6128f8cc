package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/weisyn/shopflow/client/core/token"
)

// DefaultContentGateway 默认IPFS网关
const DefaultContentGateway = "https://ipfs.io/ipfs/"

// Product 链上商品
//
// Price 在读取时固定，读取与购买之间不会重新校验；
// AvailableQuantity 是购买数量的上限。
type Product struct {
	ID                uint64         `json:"id"`
	Name              string         `json:"name"`
	Price             token.Amount   `json:"price"`
	AvailableQuantity uint64         `json:"available_quantity"`
	ForSale           bool           `json:"for_sale"`
	Seller            common.Address `json:"seller"`
	SellerBalance     token.Amount   `json:"seller_balance"`
	ContentRef        string         `json:"content_ref,omitempty"`
	Description       string         `json:"description,omitempty"`
}

// RequiredTotal 购买 quantity 件所需的代币总额
func (p Product) RequiredTotal(quantity uint64) token.Amount {
	return p.Price.MulInt(quantity)
}

// ContentURL 拼接内容引用的网关地址，gateway 为空时使用默认网关
func (p Product) ContentURL(gateway string) string {
	if p.ContentRef == "" {
		return ""
	}
	if gateway == "" {
		gateway = DefaultContentGateway
	}
	return strings.TrimRight(gateway, "/") + "/" + p.ContentRef
}

// ShortSeller 缩写的卖家地址，如 0xf39F...2266
func (p Product) ShortSeller() string {
	return ShortAddress(p.Seller)
}

// ShortAddress 缩写地址用于展示
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

package contracts

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ProductRecord getProduct 返回的原始元组，金额均为10^18定点整数
type ProductRecord struct {
	ID            *big.Int
	Name          string
	Price         *big.Int
	Quantity      *big.Int
	IsForSale     bool
	Seller        common.Address
	SellerBalance *big.Int
	ContentRef    string
	Description   string
}

// IsEmpty 未知ID时合约返回全零默认记录
func (r ProductRecord) IsEmpty() bool {
	return isZeroInt(r.ID) &&
		r.Name == "" &&
		isZeroInt(r.Price) &&
		isZeroInt(r.Quantity) &&
		!r.IsForSale &&
		r.Seller == (common.Address{}) &&
		r.ContentRef == "" &&
		r.Description == ""
}

func isZeroInt(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// Marketplace 商城合约绑定
type Marketplace struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewMarketplace 创建可读可写的商城合约绑定
func NewMarketplace(address common.Address, backend bind.ContractBackend) *Marketplace {
	return &Marketplace{
		address:  address,
		contract: bind.NewBoundContract(address, marketplaceABI, backend, backend, backend),
	}
}

// NewMarketplaceCaller 创建只读绑定，不需要签名能力
func NewMarketplaceCaller(address common.Address, caller bind.ContractCaller) *Marketplace {
	return &Marketplace{
		address:  address,
		contract: bind.NewBoundContract(address, marketplaceABI, caller, nil, nil),
	}
}

// Address 合约地址
func (m *Marketplace) Address() common.Address {
	return m.address
}

// GetProduct 调用 getProduct(uint256)
func (m *Marketplace) GetProduct(opts *bind.CallOpts, id *big.Int) (ProductRecord, error) {
	var out []interface{}
	if err := m.contract.Call(opts, &out, MethodGetProduct, id); err != nil {
		return ProductRecord{}, err
	}
	if len(out) != 9 {
		return ProductRecord{}, fmt.Errorf("getProduct: unexpected output length %d", len(out))
	}

	return ProductRecord{
		ID:            *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Name:          *abi.ConvertType(out[1], new(string)).(*string),
		Price:         *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		Quantity:      *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		IsForSale:     *abi.ConvertType(out[4], new(bool)).(*bool),
		Seller:        *abi.ConvertType(out[5], new(common.Address)).(*common.Address),
		SellerBalance: *abi.ConvertType(out[6], new(*big.Int)).(**big.Int),
		ContentRef:    *abi.ConvertType(out[7], new(string)).(*string),
		Description:   *abi.ConvertType(out[8], new(string)).(*string),
	}, nil
}

// BuyProduct 提交 buyProduct(uint256,uint256,address)
func (m *Marketplace) BuyProduct(opts *bind.TransactOpts, id *big.Int, quantity *big.Int, referrer common.Address) (*types.Transaction, error) {
	if opts == nil {
		return nil, errors.New("buyProduct: nil transact opts")
	}
	return m.contract.Transact(opts, MethodBuyProduct, id, quantity, referrer)
}

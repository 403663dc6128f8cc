package output

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/checkout"
	"github.com/weisyn/shopflow/client/core/ledger"
	"github.com/weisyn/shopflow/client/core/token"
	"github.com/weisyn/shopflow/client/core/txn"
)

// ProductView 商品详情
type ProductView struct {
	*ledger.Product
	Link string `json:"content_url"`
}

// NewProductView 创建商品视图
func NewProductView(p *ledger.Product, gateway string) ProductView {
	return ProductView{Product: p, Link: p.ContentURL(gateway)}
}

// Rows 实现 Tabular
func (v ProductView) Rows() []Row {
	return []Row{
		{"Product", fmt.Sprintf("#%d %s", v.ID, v.Name)},
		{"Price", v.Price.String()},
		{"Available", fmt.Sprintf("%d", v.AvailableQuantity)},
		{"For sale", yesNo(v.ForSale)},
		{"Seller", v.ShortSeller()},
		{"Seller balance", v.SellerBalance.String()},
		{"Content", v.Link},
		{"Description", v.Description},
	}
}

// BalanceView 余额和授权
type BalanceView struct {
	Owner     common.Address `json:"owner"`
	Balance   token.Amount   `json:"balance"`
	Spender   common.Address `json:"spender,omitempty"`
	Allowance *token.Amount  `json:"allowance,omitempty"`
}

// Rows 实现 Tabular
func (v BalanceView) Rows() []Row {
	rows := []Row{
		{"Owner", v.Owner.Hex()},
		{"Balance", v.Balance.String()},
	}
	if v.Allowance != nil {
		rows = append(rows,
			Row{"Spender", v.Spender.Hex()},
			Row{"Allowance", v.Allowance.String()},
		)
	}
	return rows
}

// StateView 购买流程快照
type StateView struct {
	checkout.State
	Total      token.Amount `json:"total"`
	NextAction string       `json:"action,omitempty"`
}

// NewStateView 创建快照视图
func NewStateView(s checkout.State) StateView {
	return StateView{State: s, Total: s.RequiredTotal(), NextAction: s.Action()}
}

// Rows 实现 Tabular
func (v StateView) Rows() []Row {
	rows := []Row{{"Phase", string(v.Phase)}}
	if v.Product != nil {
		rows = append(rows,
			Row{"Product", fmt.Sprintf("#%d %s", v.Product.ID, v.Product.Name)},
			Row{"Available", fmt.Sprintf("%d", v.Product.AvailableQuantity)},
		)
	}
	rows = append(rows,
		Row{"Quantity", fmt.Sprintf("%d", v.Quantity)},
		Row{"Total", v.Total.String()},
	)
	if v.Allowance != nil {
		rows = append(rows, Row{"Allowance", v.Allowance.Allowance.String()})
	} else {
		rows = append(rows, Row{"Allowance", "unknown"})
	}
	if v.Approval.Status != txn.StatusNone {
		rows = append(rows, Row{"Approval", outcomeText(v.Approval)})
	}
	if v.Purchase.Status != txn.StatusNone {
		rows = append(rows, Row{"Purchase", outcomeText(v.Purchase)})
	}
	if v.LastError != "" {
		rows = append(rows, Row{"Error", v.LastError})
	}
	return rows
}

func outcomeText(o txn.Outcome) string {
	s := string(o.Status)
	if o.Handle != (common.Hash{}) {
		s += " " + o.Handle.Hex()
	}
	if o.Reason != "" {
		s += " (" + o.Reason + ")"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ErrorCode 错误分类码
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, chainerr.ErrProductNotFound):
		return "PRODUCT_NOT_FOUND"
	case errors.Is(err, chainerr.ErrUserRejected):
		return "USER_REJECTED"
	case errors.Is(err, chainerr.ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, chainerr.ErrInsufficientAllowance):
		return "INSUFFICIENT_ALLOWANCE"
	case errors.Is(err, chainerr.ErrInsufficientGas):
		return "INSUFFICIENT_GAS"
	case errors.Is(err, chainerr.ErrContractReverted):
		return "CONTRACT_REVERTED"
	case errors.Is(err, chainerr.ErrNoSignerAvailable):
		return "NO_SIGNER"
	case errors.Is(err, chainerr.ErrLedgerUnavailable):
		return "LEDGER_UNAVAILABLE"
	case errors.Is(err, checkout.ErrActionInFlight):
		return "ACTION_IN_FLIGHT"
	case errors.Is(err, checkout.ErrSoldOut), errors.Is(err, checkout.ErrNotForSale):
		return "NOT_AVAILABLE"
	case errors.Is(err, checkout.ErrInvalidQuantity), errors.Is(err, checkout.ErrQuantityTooLow):
		return "INVALID_QUANTITY"
	}
	return "ERROR"
}

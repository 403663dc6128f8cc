package checkout

import (
	"github.com/weisyn/shopflow/client/core/allowance"
	"github.com/weisyn/shopflow/client/core/ledger"
	"github.com/weisyn/shopflow/client/core/token"
	"github.com/weisyn/shopflow/client/core/txn"
)

// Phase 状态机所处阶段
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseLoadingProduct    Phase = "loading_product"
	PhaseReady             Phase = "ready" // 商品已加载，授权未知
	PhaseCheckingAllowance Phase = "checking_allowance"
	PhaseNeedsApproval     Phase = "needs_approval"
	PhaseReadyToBuy        Phase = "ready_to_buy"
	PhaseApproving         Phase = "approving"
	PhaseBuying            Phase = "buying"
	PhaseSettled           Phase = "settled" // 购买已有结果，见 State.Purchase
	PhaseFailed            Phase = "failed"  // 商品加载失败
)

// State 对展示层公开的只读快照
type State struct {
	SessionID string          `json:"session_id"`
	Phase     Phase           `json:"phase"`
	Product   *ledger.Product `json:"product,omitempty"`
	Quantity  uint64          `json:"quantity"`

	// Allowance 为 nil 表示授权未知（未检查或检查失败），此时不能购买
	Allowance *allowance.State `json:"allowance,omitempty"`

	Approval txn.Outcome `json:"approval"`
	Purchase txn.Outcome `json:"purchase"`

	// 三个忙碌标志只用于界面禁用按钮
	LoadingProduct bool `json:"loading_product"`
	Approving      bool `json:"approving"`
	Buying         bool `json:"buying"`

	// LastError 面向用户的最近一次错误
	LastError string `json:"last_error,omitempty"`
	Err       error  `json:"-"`
}

// RequiredTotal 当前数量对应的总价，商品未加载时为0
func (s State) RequiredTotal() token.Amount {
	if s.Product == nil {
		return token.Zero()
	}
	return s.Product.RequiredTotal(s.Quantity)
}

// Busy 是否有操作在进行
func (s State) Busy() bool {
	return s.LoadingProduct || s.Approving || s.Buying
}

// Action 当前"购买"按钮对应的动作：approve / buy，不可操作时为空
func (s State) Action() string {
	switch s.Phase {
	case PhaseNeedsApproval, PhaseApproving:
		return "approve"
	case PhaseReadyToBuy, PhaseBuying, PhaseReady, PhaseSettled:
		return "buy"
	}
	return ""
}

// clone 返回不与控制器共享指针的副本
func (s State) clone() State {
	out := s
	if s.Product != nil {
		p := *s.Product
		out.Product = &p
	}
	if s.Allowance != nil {
		a := *s.Allowance
		out.Allowance = &a
	}
	return out
}

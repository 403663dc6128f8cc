package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/pterm/pterm"
	"github.com/weisyn/shopflow/client/core/checkout"
	"github.com/weisyn/shopflow/client/core/txn"
)

// progress 把流程状态渲染为 stderr 上的 spinner
type progress struct {
	enabled bool

	mu      sync.Mutex
	spinner *pterm.SpinnerPrinter
	last    string
}

func newProgress(enabled bool) *progress {
	return &progress{enabled: enabled}
}

// render 订阅状态变化的回调
func (p *progress) render(s checkout.State) {
	if !p.enabled {
		return
	}
	text := describe(s)

	p.mu.Lock()
	defer p.mu.Unlock()

	if text == "" {
		p.stopLocked()
		return
	}
	if text == p.last {
		return
	}
	p.last = text

	if p.spinner == nil {
		spinner, err := pterm.DefaultSpinner.WithWriter(os.Stderr).WithRemoveWhenDone(true).Start(text)
		if err != nil {
			pterm.Info.Println(text)
			return
		}
		p.spinner = spinner
		return
	}
	p.spinner.UpdateText(text)
}

func (p *progress) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *progress) stopLocked() {
	if p.spinner != nil {
		_ = p.spinner.Stop()
		p.spinner = nil
	}
	p.last = ""
}

// describe 忙碌状态的描述，空闲时为空
func describe(s checkout.State) string {
	switch {
	case s.LoadingProduct:
		return "Loading product"
	case s.Phase == checkout.PhaseCheckingAllowance:
		return "Checking allowance"
	case s.Approving:
		return withHandle(fmt.Sprintf("Approving %s tokens", s.RequiredTotal()), s.Approval)
	case s.Buying:
		return withHandle(fmt.Sprintf("Buying %d item(s)", s.Quantity), s.Purchase)
	}
	return ""
}

func withHandle(text string, o txn.Outcome) string {
	if o.Status == txn.StatusPending {
		return text + ", waiting for " + o.Handle.Hex()
	}
	return text
}

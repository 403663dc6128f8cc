package checkout

import (
	evbus "github.com/asaskevich/EventBus"
)

// TopicState 状态变化事件主题，参数为 State 副本
const TopicState = "checkout:state"

// Subscribe 订阅状态变化，返回取消订阅函数
//
// 回调在触发状态变化的 goroutine 中同步执行，可以调用 Snapshot，
// 但不应阻塞太久。
func (c *Controller) Subscribe(fn func(State)) (func(), error) {
	if err := c.bus.Subscribe(TopicState, fn); err != nil {
		return nil, err
	}
	return func() {
		if err := c.bus.Unsubscribe(TopicState, fn); err != nil {
			c.logger.Debugf("unsubscribe: %v", err)
		}
	}, nil
}

func (c *Controller) publish(state State) {
	if c.bus.HasCallback(TopicState) {
		c.bus.Publish(TopicState, state)
	}
}

func newBus(bus evbus.Bus) evbus.Bus {
	if bus == nil {
		return evbus.New()
	}
	return bus
}

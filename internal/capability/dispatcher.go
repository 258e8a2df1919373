package capability

import (
	"context"
	"fmt"
	"log"
)

// Dispatcher 持有一组按名字索引的能力。注册在进程启动时一次完成，
// 之后只读，可跨会话并发调用。
type Dispatcher struct {
	ordered  []Handler
	handlers map[string]Handler
}

// NewDispatcher 按给定顺序装配能力。顺序只反映构造次序，查找一律按名字。
func NewDispatcher(handlers ...Handler) *Dispatcher {
	d := &Dispatcher{
		ordered:  make([]Handler, 0, len(handlers)),
		handlers: make(map[string]Handler, len(handlers)),
	}
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if _, exists := d.handlers[handler.Name()]; exists {
			log.Printf("[capability] duplicate handler %q ignored", handler.Name())
			continue
		}
		d.ordered = append(d.ordered, handler)
		d.handlers[handler.Name()] = handler
	}
	return d
}

// Names 返回注册顺序下的能力名列表。
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.ordered))
	for _, handler := range d.ordered {
		names = append(names, handler.Name())
	}
	return names
}

// Resolve 按名字查找能力。
func (d *Dispatcher) Resolve(name string) (Handler, bool) {
	handler, ok := d.handlers[name]
	return handler, ok
}

// Invoke 调用名为 name 的能力。未注册的名字返回
// {"success": false, "reason": "capability unavailable"}，从不 panic：
// 能力缺席是调用方可以正常消化的一等结果。
func (d *Dispatcher) Invoke(ctx context.Context, name string, payload Payload) (result Result) {
	handler, ok := d.handlers[name]
	if !ok {
		return Result{"success": false, "reason": ReasonUnavailable}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[capability] %s panicked: %v", name, r)
			result = Fail(fmt.Sprintf("capability %s panicked: %v", name, r))
		}
	}()

	return handler.Invoke(ctx, payload)
}

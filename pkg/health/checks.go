package health

import (
	"context"
	"fmt"
)

// Ping adapts a ping-style probe. A failing optional dependency reports
// degraded rather than down.
func Ping(ping func(ctx context.Context) error, optional bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			status := StatusDown
			if optional {
				status = StatusDegraded
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Ready reports up once ready returns true. describe supplies the message.
func Ready(ready func() bool, describe func() string) Check {
	return func(context.Context) ComponentHealth {
		h := ComponentHealth{Status: StatusDown}
		if ready() {
			h.Status = StatusUp
		}
		if describe != nil {
			h.Message = describe()
		}
		return h
	}
}

// Static reports a fixed status, for dependencies switched off by config.
func Static(status Status, format string, args ...any) Check {
	msg := fmt.Sprintf(format, args...)
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: status, Message: msg}
	}
}

package desktop

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// wailsEmitter forwards race events to the frontend as Wails runtime events.
type wailsEmitter struct {
	ctx context.Context
}

func (e *wailsEmitter) Emit(event string, payload any) {
	if e.ctx == nil {
		return
	}
	runtime.EventsEmit(e.ctx, event, payload)
}

package race

// Event names published through an Emitter.
const (
	EventCountdown     = "race:countdown"
	EventGo            = "race:go"
	EventLaunch        = "race:launch"
	EventNitrousCheck  = "race:nitrous_check"
	EventNitrousResult = "race:nitrous_result"
	EventFinishLine    = "race:finish_line"
	EventFinished      = "race:finished"
	EventPaused        = "race:paused"
	EventResumed       = "race:resumed"
	EventReset         = "race:reset"
)

// Emitter receives race events. Implementations must not call back into the
// race synchronously.
type Emitter interface {
	Emit(event string, payload any)
}

type NopEmitter struct{}

func (NopEmitter) Emit(string, any) {}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(event string, payload any)

func (f EmitterFunc) Emit(event string, payload any) { f(event, payload) }

// Package scripting lets a JavaScript function drive the player car. A script
// defines drive(state) and returns an object of controls each frame.
package scripting

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// LogEntry is a single log message from the script.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// VM wraps a goja runtime with sandbox restrictions and injected globals.
type VM struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int

	stopRequested bool
}

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 50 * time.Millisecond
)

// NewVM creates a sandboxed runtime.
func NewVM() *VM {
	vm := &VM{
		runtime: goja.New(),
		maxLogs: 500,
	}
	vm.injectGlobalFunctions()
	injectConstants(vm.runtime)
	return vm
}

// injectGlobalFunctions registers log, console.log and stop.
func (vm *VM) injectGlobalFunctions() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.appendLog(strings.Join(parts, " "))
		return goja.Undefined()
	})

	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	// stop() hands control back: the pilot lifts off for the rest of the race.
	vm.runtime.Set("stop", func(call goja.FunctionCall) goja.Value {
		vm.stopRequested = true
		return goja.Undefined()
	})

	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("XMLHttpRequest", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

func injectConstants(rt *goja.Runtime) {
	rt.Set("PHASE_IDLE", "idle")
	rt.Set("PHASE_COUNTDOWN", "countdown")
	rt.Set("PHASE_RACING", "racing")
	rt.Set("PHASE_FINISHED", "finished")
	rt.Set("NITROUS_READY", "ready")
	rt.Set("NITROUS_ACTIVE", "active")
	rt.Set("NITROUS_COOLDOWN", "cooldown")
}

func (vm *VM) appendLog(msg string) {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	if len(vm.logs) >= vm.maxLogs {
		vm.logs = vm.logs[1:]
	}
	vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: msg})
}

// Execute runs the script source once so it can define drive().
func (vm *VM) Execute(source string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.runWithTimeout(scriptInitTimeout, func() error {
		if _, err := vm.runtime.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
}

// HasDrive reports whether the script defined a drive function.
func (vm *VM) HasDrive() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	_, ok := goja.AssertFunction(vm.runtime.Get("drive"))
	return ok
}

// CallDrive calls drive(state) and returns its result exported to Go values.
func (vm *VM) CallDrive(state map[string]any) (map[string]any, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	fn, ok := goja.AssertFunction(vm.runtime.Get("drive"))
	if !ok {
		return nil, ErrNoDrive
	}
	var out map[string]any
	err := vm.runWithTimeout(scriptCallTimeout, func() error {
		result, err := fn(goja.Undefined(), vm.runtime.ToValue(state))
		if err != nil {
			return fmt.Errorf("drive() error: %w", err)
		}
		if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
			return nil
		}
		exported, ok := result.Export().(map[string]any)
		if !ok {
			return fmt.Errorf("%w: got %s", ErrBadControls, result.ExportType())
		}
		out = exported
		return nil
	})
	return out, err
}

// IsStopRequested reports whether the script called stop().
func (vm *VM) IsStopRequested() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.stopRequested
}

// ClearStopRequest clears the stop flag for a new race.
func (vm *VM) ClearStopRequest() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.stopRequested = false
}

// GetLogs returns a copy of the log buffer.
func (vm *VM) GetLogs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

func (vm *VM) ClearLogs() {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	vm.logs = vm.logs[:0]
}

// runWithTimeout interrupts the runtime if fn runs past timeout. The caller
// holds vm.mu.
func (vm *VM) runWithTimeout(timeout time.Duration, fn func() error) error {
	timer := time.AfterFunc(timeout, func() {
		vm.runtime.Interrupt("script execution timeout")
	})
	err := fn()
	timer.Stop()
	vm.runtime.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

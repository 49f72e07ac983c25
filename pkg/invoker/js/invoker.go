// Package js runs composition step functions as JavaScript inside an embedded
// goja runtime. Each invocation gets a fresh VM, so functions cannot observe
// state left behind by earlier steps.
package js

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/stepflow/stepflow/pkg/invoker"
	"github.com/stepflow/stepflow/pkg/models"
)

const mainFunctionName = "main"

// DefaultTimeout bounds invocations whose composition step declares none.
const DefaultTimeout = 30 * time.Second

// Invoker executes registered JavaScript functions. Safe for concurrent use.
type Invoker struct {
	mu        sync.RWMutex
	functions map[string]string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewInvoker creates a JavaScript invoker with the given default timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewInvoker(timeout time.Duration, logger *slog.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Invoker{
		functions: make(map[string]string),
		timeout:   timeout,
		logger:    logger.With("module", "invoker"),
	}
}

// Register makes a function's source available under the given ID,
// replacing any previous registration.
func (i *Invoker) Register(functionID, source string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.functions[functionID] = source
}

// LoadDir registers every *.js file in dir, using the file name without
// extension as the function ID.
func (i *Invoker) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read functions directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}

		source, err := os.ReadFile(filepath.Join(dir, entry.Name())) // #nosec G304 -- operator-provided directory
		if err != nil {
			return fmt.Errorf("failed to read function file %q: %w", entry.Name(), err)
		}

		functionID := strings.TrimSuffix(entry.Name(), ".js")
		i.Register(functionID, string(source))
		i.logger.Debug("Registered function", "function_id", functionID)
	}

	return nil
}

// Invoke runs the function's main entry point with the resolved step input.
// Script console output is returned as log lines even when the run fails.
func (i *Invoker) Invoke(ctx context.Context, functionID string, input map[string]any) (*invoker.Result, error) {
	i.mu.RLock()
	source, ok := i.functions[functionID]
	i.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", invoker.ErrFunctionNotFound, functionID)
	}

	// The caller's deadline wins; the invoker timeout only guards
	// invocations that arrive without one.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	run := newRun()

	vm := goja.New()
	if err := vm.Set("console", run.console()); err != nil {
		return nil, fmt.Errorf("failed to bind console: %w", err)
	}

	// Interrupt the VM as soon as the context expires or is cancelled. The
	// watcher is released via stop once the script returns.
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	value, err := i.runScript(vm, source, input)
	if err != nil {
		return &invoker.Result{Logs: run.logs}, i.mapError(ctx, functionID, err)
	}

	output, err := exportOutput(value)
	if err != nil {
		return &invoker.Result{Logs: run.logs}, err
	}

	return &invoker.Result{Output: output, Logs: run.logs}, nil
}

func (i *Invoker) runScript(vm *goja.Runtime, source string, input map[string]any) (value goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("function panicked: %v", r)
		}
	}()

	if _, err = vm.RunString(source); err != nil {
		return nil, err
	}

	main, ok := goja.AssertFunction(vm.Get(mainFunctionName))
	if !ok {
		return nil, fmt.Errorf("function has no %q entry point", mainFunctionName)
	}

	return main(goja.Undefined(), vm.ToValue(input))
}

func (i *Invoker) mapError(ctx context.Context, functionID string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) || ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			i.logger.Warn("Function timed out", "function_id", functionID)

			return fmt.Errorf("%w: %q", invoker.ErrInvocationTimeout, functionID)
		}

		return ctx.Err()
	}

	return fmt.Errorf("function %q failed: %w", functionID, err)
}

// exportOutput converts the script's return value into the step output map.
// Non-object results are wrapped under a "result" key so the mapping layer
// always works against an object.
func exportOutput(value goja.Value) (map[string]any, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}

	exported := value.Export()
	if object, ok := exported.(map[string]any); ok {
		return object, nil
	}

	return map[string]any{"result": exported}, nil
}

// run collects per-invocation script output.
type run struct {
	mu   sync.Mutex
	logs []models.LogLine
}

func newRun() *run {
	return &run{}
}

func (r *run) append(level string, args []any) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, fmt.Sprintf("%v", arg))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs = append(r.logs, models.LogLine{
		Timestamp: time.Now().UTC(),
		Message:   fmt.Sprintf("%s: %s", level, strings.Join(parts, " ")),
	})
}

func (r *run) console() map[string]any {
	return map[string]any{
		"log":   func(args ...any) { r.append("LOG", args) },
		"info":  func(args ...any) { r.append("INFO", args) },
		"warn":  func(args ...any) { r.append("WARN", args) },
		"error": func(args ...any) { r.append("ERROR", args) },
	}
}

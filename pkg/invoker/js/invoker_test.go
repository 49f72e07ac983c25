package js

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/pkg/invoker"
)

func newTestInvoker(t *testing.T) *Invoker {
	t.Helper()

	return NewInvoker(0, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInvoker_Invoke(t *testing.T) {
	inv := newTestInvoker(t)
	inv.Register("double", `
		function main(input) {
			return { doubled: input.value * 2 };
		}
	`)

	result, err := inv.Invoke(t.Context(), "double", map[string]any{"value": 21})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"doubled": int64(42)}, result.Output)
	assert.Empty(t, result.Logs)
}

func TestInvoker_Invoke_ConsoleLogs(t *testing.T) {
	inv := newTestInvoker(t)
	inv.Register("chatty", `
		function main(input) {
			console.log("starting", input.name);
			console.warn("low disk");
			return { ok: true };
		}
	`)

	result, err := inv.Invoke(t.Context(), "chatty", map[string]any{"name": "demo"})
	require.NoError(t, err)

	require.Len(t, result.Logs, 2)
	assert.Equal(t, "LOG: starting demo", result.Logs[0].Message)
	assert.Equal(t, "WARN: low disk", result.Logs[1].Message)
	assert.False(t, result.Logs[0].Timestamp.IsZero())
}

func TestInvoker_Invoke_LogsKeptOnFailure(t *testing.T) {
	inv := newTestInvoker(t)
	inv.Register("boom", `
		function main(input) {
			console.log("before the throw");
			throw new Error("boom");
		}
	`)

	result, err := inv.Invoke(t.Context(), "boom", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	require.NotNil(t, result)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "LOG: before the throw", result.Logs[0].Message)
}

func TestInvoker_Invoke_MissingEntryPoint(t *testing.T) {
	inv := newTestInvoker(t)
	inv.Register("no-main", `var x = 1;`)

	_, err := inv.Invoke(t.Context(), "no-main", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"main"`)
}

func TestInvoker_Invoke_UnknownFunction(t *testing.T) {
	inv := newTestInvoker(t)

	result, err := inv.Invoke(t.Context(), "missing", nil)
	require.ErrorIs(t, err, invoker.ErrFunctionNotFound)
	assert.Nil(t, result)
}

func TestInvoker_Invoke_WrapsNonObjectResult(t *testing.T) {
	inv := newTestInvoker(t)
	inv.Register("scalar", `
		function main(input) {
			return "plain string";
		}
	`)

	result, err := inv.Invoke(t.Context(), "scalar", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "plain string"}, result.Output)
}

func TestInvoker_Invoke_NoReturnValue(t *testing.T) {
	inv := newTestInvoker(t)
	inv.Register("void", `
		function main(input) {
			console.log("side effects only");
		}
	`)

	result, err := inv.Invoke(t.Context(), "void", nil)
	require.NoError(t, err)
	assert.Nil(t, result.Output)
	assert.Len(t, result.Logs, 1)
}

func TestInvoker_Invoke_Timeout(t *testing.T) {
	inv := NewInvoker(100*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	inv.Register("spin", `
		function main(input) {
			while (true) {}
		}
	`)

	_, err := inv.Invoke(t.Context(), "spin", nil)
	require.ErrorIs(t, err, invoker.ErrInvocationTimeout)
}

func TestInvoker_LoadDir(t *testing.T) {
	dir := t.TempDir()

	source := `function main(input) { return { ok: true }; }`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.js"), []byte(source), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0600))

	inv := newTestInvoker(t)
	require.NoError(t, inv.LoadDir(dir))

	result, err := inv.Invoke(t.Context(), "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, result.Output)

	_, err = inv.Invoke(t.Context(), "notes", nil)
	require.ErrorIs(t, err, invoker.ErrFunctionNotFound)
}

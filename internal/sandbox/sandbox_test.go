package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"reconagent/internal/models"
)

func testExecutor() *Executor {
	return NewExecutor(Config{Timeout: 10 * time.Second})
}

func taggedRows(prefix string, n int) []models.Row {
	rows := make([]models.Row, n)
	for i := range rows {
		rows[i] = models.Row{
			"_rid_" + prefix: prefix + "-" + string(rune('0'+i)),
			"id":             int64(i + 1),
		}
	}
	return rows
}

// echoFragment puts every A row in matched (paired with the B row of the same
// index) and every leftover B row in unmatchedB.
const echoFragment = `func Reconcile(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	matched := []map[string]interface{}{}
	unmatchedB := []map[string]interface{}{}
	for i, a := range rowsA {
		if i < len(rowsB) {
			a["_rid_b"] = rowsB[i]["_rid_b"]
			matched = append(matched, a)
		}
	}
	for i := len(rowsA); i < len(rowsB); i++ {
		unmatchedB = append(unmatchedB, rowsB[i])
	}
	return matched, []map[string]interface{}{}, unmatchedB, nil
}`

func TestExecuteSuccess(t *testing.T) {
	result := testExecutor().Execute(context.Background(), echoFragment,
		taggedRows("a", 2), taggedRows("b", 3))

	if !result.OK() {
		t.Fatalf("Execute() failed: %s", result.Diagnostic())
	}
	if len(result.Output.Matched) != 2 {
		t.Errorf("matched = %d, want 2", len(result.Output.Matched))
	}
	if len(result.Output.UnmatchedB) != 1 {
		t.Errorf("unmatchedB = %d, want 1", len(result.Output.UnmatchedB))
	}
	if result.Duration <= 0 {
		t.Error("duration should be recorded")
	}
}

func TestExecuteCapturesStdout(t *testing.T) {
	code := `import "fmt"

func Reconcile(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	fmt.Println("checkpoint reached")
	return nil, nil, nil, nil
}`
	result := testExecutor().Execute(context.Background(), code, nil, nil)

	if !result.OK() {
		t.Fatalf("Execute() failed: %s", result.Diagnostic())
	}
	if !strings.Contains(result.Stdout, "checkpoint reached") {
		t.Errorf("Stdout = %q, want the printed line", result.Stdout)
	}
}

func TestExecuteNormalizesNilSlices(t *testing.T) {
	code := `func Reconcile(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	return nil, nil, nil, nil
}`
	result := testExecutor().Execute(context.Background(), code, nil, nil)

	if !result.OK() {
		t.Fatalf("Execute() failed: %s", result.Diagnostic())
	}
	if result.Output.Matched == nil || result.Output.UnmatchedA == nil || result.Output.UnmatchedB == nil {
		t.Error("nil result slices must be normalized to empty slices")
	}
}

func TestExecuteSyntaxError(t *testing.T) {
	result := testExecutor().Execute(context.Background(),
		"func Reconcile(rowsA, rowsB []map[string]interface{}) {", nil, nil)

	if result.ErrKind != models.ErrGenerationMalformed {
		t.Fatalf("ErrKind = %s, want %s", result.ErrKind, models.ErrGenerationMalformed)
	}
	if !strings.Contains(result.ErrMessage, "syntax error") {
		t.Errorf("ErrMessage = %q, want a syntax error", result.ErrMessage)
	}
}

func TestExecuteForbiddenImport(t *testing.T) {
	tests := []struct {
		name string
		pkg  string
	}{
		{"filesystem", "os"},
		{"command execution", "os/exec"},
		{"network", "net/http"},
		{"escape hatch", "unsafe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := `import "` + tt.pkg + `"

func Reconcile(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	return nil, nil, nil, nil
}`
			result := testExecutor().Execute(context.Background(), code, nil, nil)

			if result.ErrKind != models.ErrRuntime {
				t.Fatalf("ErrKind = %s, want %s", result.ErrKind, models.ErrRuntime)
			}
			if !strings.Contains(result.ErrMessage, "forbidden imports") {
				t.Errorf("ErrMessage = %q, want forbidden import diagnostic", result.ErrMessage)
			}
			if !strings.Contains(result.ErrMessage, tt.pkg) {
				t.Errorf("ErrMessage = %q, should name %q", result.ErrMessage, tt.pkg)
			}
		})
	}
}

func TestExecuteMissingReconcile(t *testing.T) {
	code := `func Match(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	return nil, nil, nil, nil
}`
	result := testExecutor().Execute(context.Background(), code, nil, nil)

	if result.ErrKind != models.ErrGenerationMalformed {
		t.Fatalf("ErrKind = %s, want %s", result.ErrKind, models.ErrGenerationMalformed)
	}
	if !strings.Contains(result.ErrMessage, "must define") {
		t.Errorf("ErrMessage = %q, want contract description", result.ErrMessage)
	}
}

func TestExecuteWrongSignature(t *testing.T) {
	code := `func Reconcile(n int) int {
	return n
}`
	result := testExecutor().Execute(context.Background(), code, nil, nil)

	if result.ErrKind != models.ErrGenerationMalformed {
		t.Fatalf("ErrKind = %s, want %s", result.ErrKind, models.ErrGenerationMalformed)
	}
	if !strings.Contains(result.ErrMessage, "incorrect signature") {
		t.Errorf("ErrMessage = %q, want signature diagnostic", result.ErrMessage)
	}
}

func TestExecuteRuntimePanic(t *testing.T) {
	code := `func Reconcile(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	divisor := len(rowsA) - len(rowsA)
	_ = len(rowsB) / divisor
	return nil, nil, nil, nil
}`
	result := testExecutor().Execute(context.Background(), code, taggedRows("a", 1), nil)

	if result.ErrKind != models.ErrRuntime {
		t.Fatalf("ErrKind = %s, want %s", result.ErrKind, models.ErrRuntime)
	}
}

func TestExecuteReturnedError(t *testing.T) {
	code := `import "errors"

func Reconcile(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	return nil, nil, nil, errors.New("amounts column missing")
}`
	result := testExecutor().Execute(context.Background(), code, nil, nil)

	if result.ErrKind != models.ErrRuntime {
		t.Fatalf("ErrKind = %s, want %s", result.ErrKind, models.ErrRuntime)
	}
	if !strings.Contains(result.ErrMessage, "amounts column missing") {
		t.Errorf("ErrMessage = %q, want the fragment's error", result.ErrMessage)
	}
}

func TestExecuteTimeout(t *testing.T) {
	executor := NewExecutor(Config{Timeout: 100 * time.Millisecond})
	code := `import "time"

func Reconcile(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	time.Sleep(5 * time.Second)
	return nil, nil, nil, nil
}`
	result := executor.Execute(context.Background(), code, nil, nil)

	if result.ErrKind != models.ErrTimeout {
		t.Fatalf("ErrKind = %s, want %s", result.ErrKind, models.ErrTimeout)
	}
}

func TestExecuteParentContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := `import "time"

func Reconcile(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	time.Sleep(time.Second)
	return nil, nil, nil, nil
}`
	result := testExecutor().Execute(ctx, code, nil, nil)

	if result.ErrKind != models.ErrRuntime {
		t.Fatalf("ErrKind = %s, want %s", result.ErrKind, models.ErrRuntime)
	}
	if !strings.Contains(result.ErrMessage, "canceled") {
		t.Errorf("ErrMessage = %q, want cancellation diagnostic", result.ErrMessage)
	}
}

func TestExecuteDoesNotMutateInputs(t *testing.T) {
	code := `func Reconcile(rowsA, rowsB []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error) {
	for _, a := range rowsA {
		a["id"] = "clobbered"
	}
	return rowsA, nil, nil, nil
}`
	rowsA := taggedRows("a", 1)
	result := testExecutor().Execute(context.Background(), code, rowsA, nil)

	if !result.OK() {
		t.Fatalf("Execute() failed: %s", result.Diagnostic())
	}
	if rowsA[0]["id"] != int64(1) {
		t.Errorf("input row mutated: id = %v", rowsA[0]["id"])
	}
}

func TestWrapCode(t *testing.T) {
	if got := wrapCode("func Reconcile() {}"); !strings.HasPrefix(got, "package main") {
		t.Errorf("wrapCode should add package clause, got %q", got)
	}
	withPkg := "package main\n\nfunc Reconcile() {}"
	if got := wrapCode(withPkg); got != withPkg {
		t.Errorf("wrapCode should keep existing package clause, got %q", got)
	}
}

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"log"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"reconagent/internal/models"
)

// ReconcileFunc is the contract a generated fragment must satisfy:
//
//	func Reconcile(rowsA, rowsB []map[string]interface{}) (matched, unmatchedA, unmatchedB []map[string]interface{}, err error)
type ReconcileFunc = func(rowsA, rowsB []map[string]interface{}) (
	[]map[string]interface{}, []map[string]interface{}, []map[string]interface{}, error)

// Config controls execution limits.
type Config struct {
	Timeout     time.Duration
	MemoryLimit int64 // additional heap bytes a run may allocate
}

// Executor runs generated reconciliation fragments inside a Yaegi
// interpreter. A fresh interpreter is created per execution, loaded with a
// restricted slice of the standard library. The fragment never sees the
// filesystem, the network, or os/exec.
type Executor struct {
	config          Config
	allowedPackages map[string]bool
}

// NewExecutor creates an Executor with the given limits.
func NewExecutor(config Config) *Executor {
	return &Executor{
		config: config,
		allowedPackages: map[string]bool{
			"strings":       true,
			"strconv":       true,
			"fmt":           true,
			"math":          true,
			"sort":          true,
			"regexp":        true,
			"time":          true,
			"errors":        true,
			"unicode":       true,
			"encoding/json": true,

			// EXPLICITLY BLOCKED (unsafe packages):
			// "os" - filesystem access
			// "os/exec" - command execution
			// "net", "net/http" - network access
			// "syscall", "unsafe" - escape hatches
		},
	}
}

// Execute validates and runs one candidate fragment against the two row sets.
// It never returns a Go error: every failure mode is folded into the
// SandboxResult so the agent can route it into self-correction.
func (e *Executor) Execute(ctx context.Context, code string, rowsA, rowsB []models.Row) *models.SandboxResult {
	fullCode := wrapCode(code)

	if err := e.validate(fullCode); err != nil {
		var verr *validationError
		if errors.As(err, &verr) && verr.malformed {
			return models.ErrResult(models.ErrGenerationMalformed, "", "%v", err)
		}
		return models.ErrResult(models.ErrRuntime, "", "%v", err)
	}

	stdout := &lockedBuffer{}
	i := interp.New(interp.Options{Stdout: stdout, Stderr: stdout})
	if err := i.Use(e.filteredSymbols()); err != nil {
		return models.ErrResult(models.ErrRuntime, "", "failed to load stdlib: %v", err)
	}

	if _, err := i.Eval(fullCode); err != nil {
		return models.ErrResult(models.ErrGenerationMalformed, stdout.String(), "code evaluation failed: %v", err)
	}

	fnValue, err := i.Eval("main.Reconcile")
	if err != nil {
		return models.ErrResult(models.ErrGenerationMalformed, stdout.String(),
			"code must define func Reconcile(rowsA, rowsB []map[string]interface{}) (matched, unmatchedA, unmatchedB []map[string]interface{}, err error)")
	}
	fn, ok := fnValue.Interface().(ReconcileFunc)
	if !ok {
		return models.ErrResult(models.ErrGenerationMalformed, stdout.String(),
			"Reconcile has incorrect signature (expected: func(rowsA, rowsB []map[string]interface{}) (matched, unmatchedA, unmatchedB []map[string]interface{}, err error))")
	}

	return e.run(ctx, fn, copyRows(rowsA), copyRows(rowsB), stdout)
}

type callResult struct {
	out *models.ReconcileOutput
	err error
}

func (e *Executor) run(ctx context.Context, fn ReconcileFunc, rowsA, rowsB []models.Row, stdout *lockedBuffer) *models.SandboxResult {
	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	var memExceeded atomic.Bool
	stopWatchdog := e.startMemoryWatchdog(execCtx, cancel, &memExceeded)
	defer stopWatchdog()

	resultChan := make(chan callResult, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- callResult{err: fmt.Errorf("%v", r)}
			}
		}()
		matched, unmatchedA, unmatchedB, err := fn(rowsA, rowsB)
		if err != nil {
			resultChan <- callResult{err: err}
			return
		}
		resultChan <- callResult{out: &models.ReconcileOutput{
			Matched:    orEmpty(matched),
			UnmatchedA: orEmpty(unmatchedA),
			UnmatchedB: orEmpty(unmatchedB),
		}}
	}()

	select {
	case res := <-resultChan:
		elapsed := time.Since(start)
		if res.err != nil {
			log.Printf("⚠️ [SANDBOX] Execution failed after %s: %v", elapsed.Round(time.Millisecond), res.err)
			return models.ErrResult(models.ErrRuntime, stdout.String(), "%v", res.err)
		}
		log.Printf("✅ [SANDBOX] Execution finished in %s: %d matched",
			elapsed.Round(time.Millisecond), len(res.out.Matched))
		r := models.OkResult(res.out, stdout.String(), elapsed)
		return r

	case <-execCtx.Done():
		// The goroutine is abandoned; the interpreter and its rows become
		// garbage once it unwinds or the process moves on.
		elapsed := time.Since(start)
		switch {
		case memExceeded.Load():
			log.Printf("❌ [SANDBOX] Memory limit exceeded after %s", elapsed.Round(time.Millisecond))
			return models.ErrResult(models.ErrMemoryLimit, stdout.String(),
				"execution exceeded memory limit of %d bytes", e.config.MemoryLimit)
		case ctx.Err() != nil:
			return models.ErrResult(models.ErrRuntime, stdout.String(), "execution canceled")
		default:
			log.Printf("❌ [SANDBOX] Execution timed out after %s", e.config.Timeout)
			return models.ErrResult(models.ErrTimeout, stdout.String(),
				"execution timed out after %s", e.config.Timeout)
		}
	}
}

// startMemoryWatchdog samples heap usage and cancels the run when it grows
// past the configured limit beyond the baseline taken at start.
func (e *Executor) startMemoryWatchdog(ctx context.Context, cancel context.CancelFunc, exceeded *atomic.Bool) func() {
	if e.config.MemoryLimit <= 0 {
		return func() {}
	}

	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				var ms runtime.MemStats
				runtime.ReadMemStats(&ms)
				if ms.HeapAlloc > baseline.HeapAlloc &&
					int64(ms.HeapAlloc-baseline.HeapAlloc) > e.config.MemoryLimit {
					exceeded.Store(true)
					cancel()
					return
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

type validationError struct {
	msg       string
	malformed bool
}

func (v *validationError) Error() string { return v.msg }

// validate parses the fragment and checks its imports against the allow-list.
func (e *Executor) validate(fullCode string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "reconcile.go", fullCode, parser.AllErrors)
	if err != nil {
		return &validationError{msg: fmt.Sprintf("syntax error: %v", err), malformed: true}
	}

	var forbidden []string
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		if !e.allowedPackages[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return &validationError{msg: fmt.Sprintf("forbidden imports detected: %v (allowed: %v)",
			forbidden, e.allowedList())}
	}
	return nil
}

// filteredSymbols returns the stdlib symbols restricted to allowed packages.
func (e *Executor) filteredSymbols() interp.Exports {
	filtered := make(interp.Exports, len(e.allowedPackages))
	for key, symbols := range stdlib.Symbols {
		// Keys look like "fmt/fmt" or "encoding/json/json".
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if e.allowedPackages[key[:idx]] {
			filtered[key] = symbols
		}
	}
	return filtered
}

func (e *Executor) allowedList() []string {
	pkgs := make([]string, 0, len(e.allowedPackages))
	for pkg := range e.allowedPackages {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

// wrapCode wraps the fragment in a main package if needed.
func wrapCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}

// copyRows takes per-row copies so the fragment can mutate its inputs
// without touching the session's datasets.
func copyRows(rows []models.Row) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		copied := make(map[string]interface{}, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out[i] = copied
	}
	return out
}

func orEmpty(rows []map[string]interface{}) []models.Row {
	if rows == nil {
		return []models.Row{}
	}
	return rows
}

// lockedBuffer is a goroutine-safe writer. The interpreted code writes to it
// from the execution goroutine while timeouts read it from the caller.
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Package logging provides category-scoped structured logging for the
// platform, backed by zap. The category registry and Timer/StartTimer
// shape mirror the logging package used by other services in the
// organization; only the backing core differs here.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category groups log output by subsystem so operators can filter noisy
// areas (e.g. pipeline stages) without silencing everything.
type Category string

const (
	CategoryBoot         Category = "boot"
	CategoryIngest       Category = "ingest"
	CategoryPipeline     Category = "pipeline"
	CategoryOrchestrator Category = "orchestrator"
	CategoryStore        Category = "store"
	CategoryGraph        Category = "graph"
	CategoryVault        Category = "vault"
	CategoryTristore     Category = "tristore"
	CategoryReconcile    Category = "reconcile"
	CategoryFSRS         Category = "fsrs"
	CategorySession      Category = "session"
	CategoryMastery      Category = "mastery"
	CategoryTaskRunner   Category = "taskrunner"
	CategoryCostLedger   Category = "costledger"
	CategoryLLM          Category = "llm"
	CategoryPerformance  Category = "performance"
)

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*Logger)
	base    *zap.Logger
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init sets up the shared zap core. debug=true lowers the level to Debug.
// Safe to call once at process startup; Get works with a no-op core if
// Init is never called (tests rely on this).
func Init(debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	if debug {
		level.SetLevel(zapcore.DebugLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("logging: build zap core: %w", err)
	}
	base = l
	loggers = make(map[Category]*Logger)
	return nil
}

// Logger is a category-scoped wrapper over *zap.SugaredLogger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

// Get returns (or creates) the logger for category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	core := base
	if core == nil {
		core = zap.NewNop()
	}
	l := &Logger{
		category: category,
		sugar:    core.With(zap.String("category", string(category))).Sugar(),
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }

// With returns a Logger with additional structured fields attached.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(kv...)}
}

// Timer measures the duration of an operation for CategoryPerformance.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation under the given category.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold, else debug.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

// Sync flushes buffered log entries; call at process shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// Package errors provides enhanced error handling with category classification,
// component detection, and optional telemetry reporting. Errors are built with
// a fluent API and carry structured context for logs and diagnostics.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCategory classifies errors for handling policy, metrics, and reporting.
type ErrorCategory string

const (
	CategoryValidation       ErrorCategory = "validation"
	CategoryConfiguration    ErrorCategory = "configuration"
	CategoryDatabase         ErrorCategory = "database"
	CategoryModelTraining    ErrorCategory = "model-training"
	CategoryModelEvaluation  ErrorCategory = "model-evaluation"
	CategoryModelRegistry    ErrorCategory = "model-registry"
	CategoryInsufficientData ErrorCategory = "insufficient-data"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryWorker           ErrorCategory = "worker"
	CategoryScheduler        ErrorCategory = "scheduler"
	CategoryNetwork          ErrorCategory = "network"
	CategoryMQTTConnection   ErrorCategory = "mqtt-connection"
	CategoryNotification     ErrorCategory = "notification"
	CategoryFileIO           ErrorCategory = "file-io"
	CategoryState            ErrorCategory = "state"
	CategoryGeneric          ErrorCategory = "generic"
)

// ErrorPriority determines whether an error is worth reporting to telemetry.
type ErrorPriority string

const (
	PriorityCritical ErrorPriority = "critical"
	PriorityHigh     ErrorPriority = "high"
	PriorityMedium   ErrorPriority = "medium"
	PriorityLow      ErrorPriority = "low"
)

// categoryPriorities maps each category to its default reporting priority.
// Insufficient data is an expected operational condition, not an incident.
var categoryPriorities = map[ErrorCategory]ErrorPriority{
	CategoryValidation:       PriorityHigh,
	CategoryConfiguration:    PriorityHigh,
	CategoryDatabase:         PriorityCritical,
	CategoryModelTraining:    PriorityMedium,
	CategoryModelEvaluation:  PriorityMedium,
	CategoryModelRegistry:    PriorityCritical,
	CategoryInsufficientData: PriorityLow,
	CategoryTimeout:          PriorityMedium,
	CategoryWorker:           PriorityHigh,
	CategoryScheduler:        PriorityHigh,
	CategoryNetwork:          PriorityMedium,
	CategoryMQTTConnection:   PriorityLow,
	CategoryNotification:     PriorityLow,
	CategoryFileIO:           PriorityMedium,
	CategoryState:            PriorityHigh,
	CategoryGeneric:          PriorityLow,
}

// componentMappings resolves caller package paths to component names for
// automatic component detection.
var componentMappings = map[string]string{
	"internal/orchestrator":  "orchestrator",
	"internal/trainer":       "trainer",
	"internal/datastore":     "datastore",
	"internal/scheduler":     "scheduler",
	"internal/forecast":      "forecast",
	"internal/drift":         "drift",
	"internal/mqtt":          "mqtt",
	"internal/notify":        "notify",
	"internal/export":        "export",
	"internal/api":           "api",
	"internal/conf":          "conf",
	"internal/jobqueue":      "jobqueue",
	"internal/observability": "observability",
	"internal/diagnostics":   "diagnostics",
	"internal/telemetry":     "telemetry",
}

// TelemetryReporter receives built errors whose priority warrants reporting.
// The telemetry package installs an implementation when enabled.
type TelemetryReporter interface {
	ReportError(ee *EnhancedError)
}

var telemetryReporter TelemetryReporter

// SetTelemetryReporter installs the reporter invoked on Build for high and
// critical priority errors. Passing nil disables reporting.
func SetTelemetryReporter(r TelemetryReporter) {
	telemetryReporter = r
}

// EnhancedError wraps an error with component, category, and structured context.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
	reported  bool
}

// Error returns the underlying error message.
func (e *EnhancedError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// Unwrap supports errors.Is and errors.As against the wrapped error.
func (e *EnhancedError) Unwrap() error {
	return e.Err
}

// Is matches either the wrapped error or another EnhancedError with the
// same category.
func (e *EnhancedError) Is(target error) bool {
	var other *EnhancedError
	if stderrors.As(target, &other) {
		return e.Category == other.Category
	}
	return stderrors.Is(e.Err, target)
}

// GetCategory returns the error category, or CategoryGeneric when unset.
func (e *EnhancedError) GetCategory() ErrorCategory {
	if e.Category == "" {
		return CategoryGeneric
	}
	return e.Category
}

// GetComponent returns the component that produced the error.
func (e *EnhancedError) GetComponent() string {
	return e.Component
}

// GetContext returns a context value and whether it was present.
func (e *EnhancedError) GetContext(key string) (any, bool) {
	v, ok := e.Context[key]
	return v, ok
}

// GetPriority returns the reporting priority for this error's category.
func (e *EnhancedError) GetPriority() ErrorPriority {
	if p, ok := categoryPriorities[e.GetCategory()]; ok {
		return p
	}
	return PriorityLow
}

// IsReported returns true once the error has been handed to telemetry.
func (e *EnhancedError) IsReported() bool {
	return e.reported
}

// MarkReported records that telemetry has seen this error.
func (e *EnhancedError) MarkReported() {
	e.reported = true
}

// LogAttrs returns the error context flattened into alternating key/value
// pairs suitable for slog calls.
func (e *EnhancedError) LogAttrs() []any {
	attrs := make([]any, 0, 2*len(e.Context)+4)
	attrs = append(attrs, "component", e.Component, "category", string(e.GetCategory()))
	for k, v := range e.Context {
		attrs = append(attrs, k, v)
	}
	return attrs
}

// ErrorBuilder provides the fluent construction API.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts building an enhanced error around an existing error.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts building an enhanced error from a format string.
func Newf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: fmt.Errorf(format, args...)}
}

// Component sets the component name, overriding auto-detection.
func (b *ErrorBuilder) Component(name string) *ErrorBuilder {
	b.component = name
	return b
}

// Category classifies the error.
func (b *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	b.category = category
	return b
}

// Context attaches one key/value pair of structured context.
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// ModelContext attaches the tag/kind pair common to training errors.
func (b *ErrorBuilder) ModelContext(tag, kind string) *ErrorBuilder {
	return b.Context("tag", tag).Context("model_kind", kind)
}

// Build finalizes the enhanced error. The component is auto-detected from the
// call site when not set explicitly, and high priority errors are handed to
// the telemetry reporter when one is installed.
func (b *ErrorBuilder) Build() *EnhancedError {
	component := b.component
	if component == "" {
		component = detectComponent()
	}

	ee := &EnhancedError{
		Err:       b.err,
		Component: component,
		Category:  b.category,
		Context:   b.context,
		Timestamp: time.Now(),
	}

	if telemetryReporter != nil {
		switch ee.GetPriority() {
		case PriorityCritical, PriorityHigh:
			telemetryReporter.ReportError(ee)
		}
	}

	return ee
}

// detectComponent walks up the call stack until it finds a frame from a
// package with a registered component mapping.
func detectComponent() string {
	pcs := make([]uintptr, 16)
	// skip runtime.Callers, detectComponent, Build
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		for pathFragment, component := range componentMappings {
			if strings.Contains(frame.File, pathFragment) {
				return component
			}
		}
		if !more {
			break
		}
	}
	return "unknown"
}

// --- Standard library pass-throughs so callers need a single errors import ---

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join wraps a list of errors into a single error.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// NewStd creates a plain sentinel error without enhancement.
func NewStd(text string) error {
	return stderrors.New(text)
}

// HasCategory reports whether err (or any wrapped error) is an EnhancedError
// of the given category.
func HasCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.GetCategory() == category
	}
	return false
}

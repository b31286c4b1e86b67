package telemetry

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/foresight-go/internal/errors"
)

// sentryReporter forwards high priority errors from the errors package to
// Sentry. Init installs it only when telemetry is enabled.
type sentryReporter struct{}

func (r *sentryReporter) ReportError(ee *errors.EnhancedError) {
	if ee.IsReported() {
		return
	}

	message := ScrubMessage(fmt.Sprintf("[%s] %s", ee.GetCategory(), ee.Error()))
	title := errorTitle(ee)
	level := levelFor(ee.GetPriority())

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.GetCategory()))
		for key, value := range ee.Context {
			if s, ok := value.(string); ok {
				value = ScrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetLevel(level)
		// Group by what failed and where, not by the message text.
		scope.SetFingerprint([]string{title, ee.Component, string(ee.GetCategory())})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// errorTitle builds the grouping title shown in Sentry from the component,
// category, and the operation context when present.
func errorTitle(ee *errors.EnhancedError) string {
	parts := make([]string, 0, 3)
	if ee.Component != "" {
		parts = append(parts, titleCase(ee.Component))
	}
	parts = append(parts, titleCase(strings.ReplaceAll(string(ee.GetCategory()), "-", " ")))
	if op, ok := ee.Context["operation"].(string); ok && op != "" {
		parts = append(parts, titleCase(strings.ReplaceAll(op, "_", " ")))
	}
	return strings.Join(parts, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func levelFor(p errors.ErrorPriority) sentry.Level {
	switch p {
	case errors.PriorityCritical, errors.PriorityHigh:
		return sentry.LevelError
	case errors.PriorityMedium:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}

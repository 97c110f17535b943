// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/getsentry/sentry-go"
	"github.com/patrickmn/go-cache"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// DefaultDedupWindow is how long an identical error is suppressed after it was reported
const DefaultDedupWindow = 5 * time.Minute

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
	seen    *cache.Cache
	capture func(*sentry.Event)
}

// NewSentryReporter creates a new Sentry telemetry reporter.
// A capture loop reporting the same wait timeout thousands of times would flood
// the project, so repeats of the same fingerprint are dropped for dedupWindow.
func NewSentryReporter(enabled bool, dedupWindow time.Duration) *SentryReporter {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	return &SentryReporter{
		enabled: enabled,
		seen:    cache.New(dedupWindow, 2*dedupWindow),
		capture: func(event *sentry.Event) { sentry.CaptureEvent(event) },
	}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy protection
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	errorTitle := generateErrorTitle(ee)
	fingerprint := strings.Join([]string{errorTitle, ee.GetComponent(), string(ee.Category), ee.GetMessage()}, "|")
	if err := sr.seen.Add(fingerprint, struct{}{}, cache.DefaultExpiration); err != nil {
		// Already reported within the window
		ee.MarkReported()
		return
	}

	scrubbedMessage := scrubMessageForPrivacy(fmt.Sprintf("[%s] %s", ee.Category, ee.GetMessage()))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_title", errorTitle)
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			scrubbedValue := value
			if strValue, ok := value.(string); ok {
				scrubbedValue = scrubMessageForPrivacy(strValue)
			}
			scope.SetContext(key, map[string]any{"value": scrubbedValue})
		}

		level := getErrorLevel(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{errorTitle, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = scrubbedMessage
		event.Level = level
		event.Exception = []sentry.Exception{{
			Type:  errorTitle,
			Value: scrubbedMessage,
		}}

		sr.capture(event)
	})

	ee.MarkReported()
}

// generateErrorTitle creates a meaningful error title from component, category and operation
func generateErrorTitle(ee *EnhancedError) string {
	var titleParts []string

	if component := ee.GetComponent(); component != "" && component != ComponentUnknown {
		titleParts = append(titleParts, titleCase(component))
	}

	if categoryTitle := formatCategoryForTitle(ee.Category); categoryTitle != "" {
		titleParts = append(titleParts, categoryTitle)
	}

	if operation, ok := ee.GetContext()["operation"].(string); ok && operation != "" {
		titleParts = append(titleParts, formatOperationForTitle(operation))
	}

	if len(titleParts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}

	return strings.Join(titleParts, " ")
}

// formatCategoryForTitle converts error categories to human-readable titles
func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryDevice:
		return "Device Error"
	case CategoryDeviceTimeout:
		return "Device Timeout"
	case CategoryDeviceUnknown:
		return "Unknown Device Status"
	case CategoryBuffer, CategoryResource:
		return "Resource Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategoryValidation:
		return "Validation Error"
	case CategoryUnsupported:
		return "Unsupported"
	case CategorySystem:
		return "System Error"
	default:
		return string(category)
	}
}

// formatOperationForTitle converts operation context to human-readable format
func formatOperationForTitle(operation string) string {
	words := strings.Fields(strings.ReplaceAll(operation, "_", " "))
	for i, word := range words {
		words[i] = titleCase(word)
	}
	return strings.Join(words, " ")
}

// titleCase capitalizes the first letter of a string
func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// getErrorLevel returns appropriate Sentry level based on category
func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryDeviceTimeout, CategoryTimeout, CategoryCancellation:
		return sentry.LevelWarning // Often transient
	case CategoryConfiguration, CategoryValidation, CategoryUnsupported:
		return sentry.LevelWarning // Caller input
	case CategoryDeviceUnknown:
		return sentry.LevelFatal
	default:
		return sentry.LevelError
	}
}

var (
	globalTelemetryReporter TelemetryReporter
	reporterMu              sync.RWMutex
)

// SetTelemetryReporter sets the global telemetry reporter
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalTelemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return globalTelemetryReporter
}

// reportToTelemetry reports an error to the configured telemetry system
func reportToTelemetry(ee *EnhancedError) {
	if reporter := GetTelemetryReporter(); reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

// Pre-compiled scrub patterns
var (
	urlQueryRegex = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	secretRegexes = []*regexp.Regexp{
		regexp.MustCompile(`api[_-]?key[=:]\S+`),
		regexp.MustCompile(`token[=:]\S+`),
		regexp.MustCompile(`dsn[=:]\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
	serialRegex = regexp.MustCompile(`serial[_-]?(number)?[=:]\S+`)
)

// scrubMessageForPrivacy removes URLs query strings, secrets and board serial numbers
func scrubMessageForPrivacy(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	for _, re := range secretRegexes {
		scrubbed = re.ReplaceAllString(scrubbed, "[API_KEY_REDACTED]")
	}
	return serialRegex.ReplaceAllString(scrubbed, "[ID_REDACTED]")
}

package errors

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	code uint32
}

func (e *statusError) Error() string                { return fmt.Sprintf("status %d", e.code) }
func (e *statusError) ErrorCategory() ErrorCategory { return CategoryDevice }

// recordingReporter captures reported errors for assertions
type recordingReporter struct {
	mu       sync.Mutex
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reported)
}

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.IsReported())
}

func TestBuilderFields(t *testing.T) {
	t.Parallel()

	base := fmt.Errorf("post buffer failed")
	ee := New(base).
		Component("acquisition").
		Category(CategoryBuffer).
		Priority(PriorityHigh).
		DeviceContext("post_buffer", 553).
		Context("buffer_index", 3).
		Build()

	assert.Equal(t, "acquisition", ee.GetComponent())
	assert.Equal(t, CategoryBuffer, ee.ErrorCategory())
	assert.Equal(t, PriorityHigh, ee.GetPriority())
	assert.Equal(t, "post_buffer", ee.GetContext()["operation"])
	assert.Equal(t, uint32(553), ee.GetContext()["status_code"])
	assert.Equal(t, 3, ee.GetContext()["buffer_index"])
	assert.ErrorIs(t, ee, base)
}

func TestPriorityNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		priority string
		want     string
	}{
		{"known priority kept", PriorityCritical, PriorityCritical},
		{"unknown priority becomes medium", "urgent", PriorityMedium},
		{"empty priority stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ee := Newf("boom").Priority(tt.priority).Build()
			assert.Equal(t, tt.want, ee.GetPriority())
		})
	}
}

func TestDetectCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil error", nil, CategoryGeneric},
		{"categorized error wins", &statusError{code: 513}, CategoryDevice},
		{"wrapped categorized error", fmt.Errorf("configure: %w", &statusError{code: 520}), CategoryDevice},
		{"context canceled", context.Canceled, CategoryCancellation},
		{"deadline exceeded", context.DeadlineExceeded, CategoryTimeout},
		{"validation wording", NewStd("samples_per_record must be positive"), CategoryValidation},
		{"file wording", NewStd("open output file"), CategoryFileIO},
		{"anything else", NewStd("boom"), CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, detectCategory(tt.err))
		})
	}
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("missing board")).Category(CategoryNotFound).Build()
	wrapped := fmt.Errorf("open board: %w", ee)

	assert.True(t, IsNotFound(wrapped))
	assert.True(t, IsCategory(wrapped, CategoryNotFound))
	assert.False(t, IsCategory(wrapped, CategoryDevice))
	assert.False(t, IsNotFound(NewStd("plain")))
}

func TestEnhancedErrorIsMatchesCategory(t *testing.T) {
	t.Parallel()

	a := New(NewStd("first")).Category(CategoryDeviceTimeout).Build()
	b := New(NewStd("second")).Category(CategoryDeviceTimeout).Build()
	c := New(NewStd("third")).Category(CategoryDevice).Build()

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestLookupComponentPrefersLongestPattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "memory", lookupComponent("github.com/digitizerlab/ats-go/internal/acquisition/memory.Allocate"))
	assert.Equal(t, "driver", lookupComponent("github.com/digitizerlab/ats-go/internal/acquisition/drivers/simulator.(*Board).StartCapture"))
	assert.Equal(t, "acquisition", lookupComponent("github.com/digitizerlab/ats-go/internal/acquisition.(*Engine).Acquire"))
	assert.Equal(t, ComponentUnknown, lookupComponent("main.main"))
}

func TestTelemetryReporting(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("wait timed out")).Category(CategoryDeviceTimeout).Build()

	require.Equal(t, 1, reporter.count())
	assert.True(t, ee.IsReported())
	assert.Same(t, reporter, GetTelemetryReporter())
}

func TestSentryReporterDeduplicates(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var events []*sentry.Event
	sr := NewSentryReporter(true, time.Minute)
	sr.capture = func(event *sentry.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}

	for range 5 {
		ee := New(NewStd("ApiWaitTimeout")).
			Component("acquisition").
			Category(CategoryDeviceTimeout).
			Context("operation", "wait_buffer").
			Build()
		sr.ReportError(ee)
		assert.True(t, ee.IsReported())
	}

	other := New(NewStd("ApiBufferOverflow")).Component("acquisition").Category(CategoryDevice).Build()
	sr.ReportError(other)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, "Acquisition Device Timeout Wait Buffer", events[0].Exception[0].Type)
	assert.Equal(t, sentry.LevelWarning, events[0].Level)
	assert.Equal(t, sentry.LevelError, events[1].Level)
}

func TestSentryReporterDisabled(t *testing.T) {
	t.Parallel()

	called := false
	sr := NewSentryReporter(false, 0)
	sr.capture = func(*sentry.Event) { called = true }

	sr.ReportError(New(NewStd("boom")).Component("acquisition").Build())

	assert.False(t, called)
	assert.False(t, sr.IsEnabled())
}

func TestScrubMessageForPrivacy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		want      string
		forbidden string
	}{
		{
			name:  "url query removed",
			input: "upload to https://api.example.com?api_key=secret123&token=abc failed",
			want:  "upload to https://api.example.com?[REDACTED] failed",
		},
		{
			name:      "api key redacted",
			input:     "config error: api_key=secret123 is invalid",
			forbidden: "secret123",
		},
		{
			name:      "board serial redacted",
			input:     "board serial_number=910266 not responding",
			forbidden: "910266",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := scrubMessageForPrivacy(tt.input)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			if tt.forbidden != "" {
				assert.False(t, strings.Contains(got, tt.forbidden), "scrubbed message still contains %q: %s", tt.forbidden, got)
			}
		})
	}
}

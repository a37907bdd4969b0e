package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiocapture/internal/errors"
)

const testDSN = "https://public@example.com/1"

func newTestReporter(t *testing.T) (*Reporter, *mockTransport) {
	t.Helper()
	transport := &mockTransport{}
	r, err := NewReporter(Config{Enabled: true, DSN: testDSN}, "1.2.0", WithTransport(transport))
	require.NoError(t, err)
	require.True(t, r.IsEnabled())
	return r, transport
}

func TestDisabledReporter(t *testing.T) {
	r, err := NewReporter(Config{}, "1.2.0")
	require.NoError(t, err)
	assert.False(t, r.IsEnabled())
	assert.True(t, r.Flush())
	assert.NotPanics(t, func() {
		r.ReportError(&errors.EnhancedError{Category: errors.CategoryAudioBackend})
		r.Close()
	})
}

func TestReportsBackendFaults(t *testing.T) {
	r, transport := newTestReporter(t)

	ee := &errors.EnhancedError{
		Err:       errors.NewStd("device lost token=abcdef"),
		Component: "capture",
		Category:  errors.CategoryAudioBackend,
		Context:   map[string]any{"operation": "read"},
	}
	r.ReportError(ee)
	r.ReportError(ee)
	require.True(t, r.Flush())

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "capture", events[0].Tags["component"])
	assert.Equal(t, "audio-backend", events[0].Tags["category"])
	assert.Equal(t, "read", events[0].Tags["operation"])
	assert.NotContains(t, events[0].Message, "abcdef")
	assert.Empty(t, events[0].ServerName)
	assert.True(t, ee.IsReported())
}

func TestSkipsCallerMistakes(t *testing.T) {
	r, transport := newTestReporter(t)

	for _, cat := range []errors.ErrorCategory{errors.CategoryValidation, errors.CategoryState, errors.CategoryCancellation} {
		r.ReportError(&errors.EnhancedError{Err: errors.NewStd("nope"), Category: cat})
	}
	r.Flush()
	assert.Empty(t, transport.Events())
}

func TestInstallHooksErrorBuilder(t *testing.T) {
	r, transport := newTestReporter(t)
	r.Install()
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	_ = errors.Newf("capture device vanished").
		Component("capture").
		Category(errors.CategoryAudioDevice).
		Build()
	r.Flush()

	require.Len(t, transport.Events(), 1)
	r.Close()
	assert.False(t, r.IsEnabled())
}

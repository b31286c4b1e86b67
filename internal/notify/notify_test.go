package notify

import (
	"log/slog"
	"testing"
	"time"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
)

// fakeSender records deliveries instead of hitting real services.
type fakeSender struct {
	messages []string
	titles   []string
	fail     error
}

func (f *fakeSender) Send(message string, params *stypes.Params) []error {
	if f.fail != nil {
		return []error{f.fail}
	}
	f.messages = append(f.messages, message)
	title := ""
	if params != nil {
		title = (*params)["title"]
	}
	f.titles = append(f.titles, title)
	return nil
}

func notificationSettings(minSeverity string, urls ...string) *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "TestNode"
	s.Notification.Enabled = true
	s.Notification.Urls = urls
	s.Notification.MinSeverity = minSeverity
	return s
}

func fakeNotifier(minSeverity string) (*Notifier, *fakeSender) {
	sink := &fakeSender{}
	n := &Notifier{
		settings: notificationSettings(minSeverity, "fake://"),
		sender:   sink,
		log:      slog.Default(),
	}
	return n, sink
}

func TestDisabledNotifierDropsEverything(t *testing.T) {
	s := &conf.Settings{}
	n, err := NewNotifier(s)
	require.NoError(t, err)

	assert.False(t, n.Enabled())
	assert.NoError(t, n.Send(t.Context(), "critical", "t", "m"))
}

func TestNewNotifierRequiresURLs(t *testing.T) {
	_, err := NewNotifier(notificationSettings("high"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfiguration))
}

func TestNewNotifierRejectsUnknownService(t *testing.T) {
	_, err := NewNotifier(notificationSettings("high", "no-such-scheme"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfiguration))
}

func TestSendFiltersBelowSeverityFloor(t *testing.T) {
	n, sink := fakeNotifier("high")

	require.NoError(t, n.Send(t.Context(), "medium", "quiet", "nothing to see"))
	assert.Empty(t, sink.messages, "medium is below the high floor")

	require.NoError(t, n.Send(t.Context(), "critical", "loud", "wake up"))
	require.Len(t, sink.messages, 1)
	assert.Equal(t, "wake up", sink.messages[0])
	assert.Equal(t, "loud", sink.titles[0])
}

func TestSendWrapsDeliveryErrors(t *testing.T) {
	n, sink := fakeNotifier("low")
	sink.fail = errors.NewStd("provider down")

	err := n.Send(t.Context(), "high", "t", "m")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotification))
}

func TestRunSeverityScalesWithOutcome(t *testing.T) {
	assert.Equal(t, "low", runSeverity(&datastore.RunRecord{}))
	assert.Equal(t, "medium", runSeverity(&datastore.RunRecord{Failed: 2}))
	assert.Equal(t, "high", runSeverity(&datastore.RunRecord{Aborted: true, Failed: 2}))
}

func TestRunCompletedComposesSummary(t *testing.T) {
	n, sink := fakeNotifier("low")

	started := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)
	err := n.RunCompleted(t.Context(), &datastore.RunRecord{
		RunID:      "run-42",
		StartedAt:  started,
		FinishedAt: started.Add(95 * time.Second),
		Attempted:  12,
		Succeeded:  10,
		Promoted:   4,
		Skipped:    1,
		Failed:     2,
	})
	require.NoError(t, err)

	require.Len(t, sink.messages, 1)
	assert.Equal(t, "Retraining pass completed", sink.titles[0])
	assert.Contains(t, sink.messages[0], "run-42")
	assert.Contains(t, sink.messages[0], "10/12 entities succeeded")
	assert.Contains(t, sink.messages[0], "4 promoted")
	assert.Contains(t, sink.messages[0], "1m35s")
}

func TestAbortedRunMessageNamesTheReason(t *testing.T) {
	n, sink := fakeNotifier("low")

	err := n.RunCompleted(t.Context(), &datastore.RunRecord{
		RunID:       "run-43",
		Aborted:     true,
		AbortReason: "registry unreachable",
	})
	require.NoError(t, err)

	require.Len(t, sink.messages, 1)
	assert.Equal(t, "Retraining pass aborted", sink.titles[0])
	assert.Contains(t, sink.messages[0], "registry unreachable")
}

func TestDriftDetectedUsesCheckSeverity(t *testing.T) {
	n, sink := fakeNotifier("high")

	low := &datastore.DriftRecord{Tag: "TAG_A", Severity: "low"}
	require.NoError(t, n.DriftDetected(t.Context(), low))
	assert.Empty(t, sink.messages, "low drift stays below the floor")

	critical := &datastore.DriftRecord{
		Tag: "TAG_A", Severity: "critical",
		PSI: 2.1, KSPValue: 0.0001, JSDivergence: 0.82,
		CurrentSamples: 120, ReferenceSamples: 4000,
	}
	require.NoError(t, n.DriftDetected(t.Context(), critical))
	require.Len(t, sink.messages, 1)
	assert.Contains(t, sink.messages[0], "critical drift on TAG_A")
	assert.Contains(t, sink.titles[0], "TAG_A")
}

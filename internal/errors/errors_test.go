package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderCarriesCategoryAndContext(t *testing.T) {
	base := NewStd("promote transaction failed")

	ee := New(base).
		Component("datastore").
		Category(CategoryModelRegistry).
		Context("tag", "TANK_LEVEL_01").
		Context("version", 3).
		Build()

	require.NotNil(t, ee)
	assert.Equal(t, "datastore", ee.GetComponent())
	assert.Equal(t, CategoryModelRegistry, ee.GetCategory())

	tag, ok := ee.GetContext("tag")
	require.True(t, ok)
	assert.Equal(t, "TANK_LEVEL_01", tag)

	// wrapping must stay transparent to errors.Is
	assert.True(t, Is(ee, base))
}

func TestBuilderDefaultsToGenericCategory(t *testing.T) {
	ee := Newf("boom %d", 7).Build()
	assert.Equal(t, CategoryGeneric, ee.GetCategory())
	assert.Equal(t, "boom 7", ee.Error())
}

func TestModelContextShorthand(t *testing.T) {
	ee := Newf("fit failed").
		ModelContext("FLOW_02", "seasonal-regression").
		Category(CategoryModelTraining).
		Build()

	kind, ok := ee.GetContext("model_kind")
	require.True(t, ok)
	assert.Equal(t, "seasonal-regression", kind)
}

func TestHasCategoryThroughWrapping(t *testing.T) {
	ee := Newf("no samples in window").Category(CategoryInsufficientData).Build()
	wrapped := fmt.Errorf("entity FLOW_02: %w", ee)

	assert.True(t, HasCategory(wrapped, CategoryInsufficientData))
	assert.False(t, HasCategory(wrapped, CategoryModelTraining))
}

func TestPriorityFollowsCategory(t *testing.T) {
	assert.Equal(t, PriorityCritical, Newf("x").Category(CategoryDatabase).Build().GetPriority())
	assert.Equal(t, PriorityLow, Newf("x").Category(CategoryInsufficientData).Build().GetPriority())
}

type recordingReporter struct {
	seen []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.seen = append(r.seen, ee)
}

func TestTelemetryReporterReceivesHighPriorityOnly(t *testing.T) {
	rec := &recordingReporter{}
	SetTelemetryReporter(rec)
	defer SetTelemetryReporter(nil)

	Newf("registry down").Category(CategoryModelRegistry).Build()
	Newf("window too small").Category(CategoryInsufficientData).Build()

	require.Len(t, rec.seen, 1)
	assert.Equal(t, CategoryModelRegistry, rec.seen[0].GetCategory())
}

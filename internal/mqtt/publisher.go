package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/logging"
)

// defaultTopicPrefix is used when no topic prefix is configured.
const defaultTopicPrefix = "foresight"

// RunEvent is the wire form of one completed orchestration pass.
type RunEvent struct {
	RunID       string    `json:"run_id"`
	Node        string    `json:"node"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Attempted   int       `json:"attempted"`
	Succeeded   int       `json:"succeeded"`
	Promoted    int       `json:"promoted"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Aborted     bool      `json:"aborted"`
	AbortReason string    `json:"abort_reason,omitempty"`
}

// ForecastPoint is one horizon inside a forecast event.
type ForecastPoint struct {
	TargetTime     time.Time `json:"target_time"`
	HorizonMinutes int       `json:"horizon_minutes"`
	Predicted      float64   `json:"predicted"`
	LowerBound     float64   `json:"lower_bound"`
	UpperBound     float64   `json:"upper_bound"`
}

// ForecastEvent is the wire form of one tag's forecast cycle, carrying all
// horizons in a single message so subscribers see the cycle atomically.
type ForecastEvent struct {
	Tag          string          `json:"tag"`
	Node         string          `json:"node"`
	ModelVersion int             `json:"model_version"`
	ForecastTime time.Time       `json:"forecast_time"`
	Points       []ForecastPoint `json:"points"`
}

// DriftEvent is the wire form of one drift check outcome.
type DriftEvent struct {
	Tag              string    `json:"tag"`
	Node             string    `json:"node"`
	Severity         string    `json:"severity"`
	PSI              float64   `json:"psi"`
	KSStat           float64   `json:"ks_stat"`
	KSPValue         float64   `json:"ks_pvalue"`
	JSDistance       float64   `json:"js_distance"`
	CurrentSamples   int       `json:"current_samples"`
	ReferenceSamples int       `json:"reference_samples"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Publisher turns stored records into JSON events on the configured topic
// prefix: <prefix>/runs for passes, <prefix>/forecast/<tag> for fresh
// forecasts, <prefix>/drift/<tag> for drift checks.
type Publisher struct {
	client Client
	prefix string
	node   string
	log    *slog.Logger
}

// NewPublisher creates a Publisher sending through client.
func NewPublisher(settings *conf.Settings, client Client) *Publisher {
	log := logging.ForService("mqtt")
	if log == nil {
		log = slog.Default().With("service", "mqtt")
	}

	prefix := settings.MQTT.Topic
	if prefix == "" {
		prefix = defaultTopicPrefix
	}

	return &Publisher{
		client: client,
		prefix: prefix,
		node:   settings.Main.Name,
		log:    log,
	}
}

// PublishRun publishes the summary of one orchestration pass.
func (p *Publisher) PublishRun(ctx context.Context, rec *datastore.RunRecord) error {
	event := RunEvent{
		RunID:       rec.RunID,
		Node:        p.node,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
		Attempted:   rec.Attempted,
		Succeeded:   rec.Succeeded,
		Promoted:    rec.Promoted,
		Skipped:     rec.Skipped,
		Failed:      rec.Failed,
		Aborted:     rec.Aborted,
		AbortReason: rec.AbortReason,
	}
	return p.publish(ctx, fmt.Sprintf("%s/runs", p.prefix), &event)
}

// PublishForecast publishes one tag's freshly stored predictions under the
// tag's topic. All records must come from the same generation cycle; an
// empty slice publishes nothing.
func (p *Publisher) PublishForecast(ctx context.Context, preds []datastore.PredictionRecord) error {
	if len(preds) == 0 {
		return nil
	}
	event := ForecastEvent{
		Tag:          preds[0].Tag,
		Node:         p.node,
		ModelVersion: preds[0].ModelVersion,
		ForecastTime: preds[0].ForecastTime,
		Points:       make([]ForecastPoint, 0, len(preds)),
	}
	for i := range preds {
		event.Points = append(event.Points, ForecastPoint{
			TargetTime:     preds[i].TargetTime,
			HorizonMinutes: preds[i].HorizonMinutes,
			Predicted:      preds[i].Predicted,
			LowerBound:     preds[i].LowerBound,
			UpperBound:     preds[i].UpperBound,
		})
	}
	return p.publish(ctx, fmt.Sprintf("%s/forecast/%s", p.prefix, event.Tag), &event)
}

// PublishDrift publishes one drift check outcome under the tag's topic.
func (p *Publisher) PublishDrift(ctx context.Context, rec *datastore.DriftRecord) error {
	event := DriftEvent{
		Tag:              rec.Tag,
		Node:             p.node,
		Severity:         rec.Severity,
		PSI:              rec.PSI,
		KSStat:           rec.KSStat,
		KSPValue:         rec.KSPValue,
		JSDistance:       rec.JSDivergence,
		CurrentSamples:   rec.CurrentSamples,
		ReferenceSamples: rec.ReferenceSamples,
		CheckedAt:        rec.CheckedAt,
	}
	return p.publish(ctx, fmt.Sprintf("%s/drift/%s", p.prefix, rec.Tag), &event)
}

func (p *Publisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", topic, err)
	}
	return p.client.Publish(ctx, topic, string(payload))
}

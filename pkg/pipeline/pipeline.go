// Package pipeline runs both detectors over a batch and scores them against
// ground truth.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hed1ad/trafficeval/pkg/config"
	"github.com/hed1ad/trafficeval/pkg/detectors"
	"github.com/hed1ad/trafficeval/pkg/detectors/iforest"
	"github.com/hed1ad/trafficeval/pkg/detectors/threshold"
	"github.com/hed1ad/trafficeval/pkg/eval"
	"github.com/hed1ad/trafficeval/pkg/features"
	"github.com/hed1ad/trafficeval/pkg/observability"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// Pipeline evaluates the threshold rule and the isolation forest on one
// batch per Run. It keeps no state between runs.
type Pipeline struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	rule    *threshold.Detector
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics publishes every run to m.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Outcome is everything a run produced.
type Outcome struct {
	RunID            uuid.UUID
	Records          []traffic.Record
	ThresholdResults []detectors.Result
	OutlierResults   []detectors.Result
	FlaggedSources   []threshold.Source
	Forest           *iforest.IsolationForest
	Report           eval.Report
}

// New validates the detector settings and builds a pipeline.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	rule, err := threshold.New(cfg.DoSThreshold)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: zap.NewNop(),
		rule:   rule,
	}
	for _, opt := range opts {
		opt(p)
	}

	// Surface forest configuration errors before any data is read.
	if _, err := p.newForest(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Pipeline) newForest() (*iforest.IsolationForest, error) {
	return iforest.New(
		iforest.WithTrees(p.cfg.NumTrees),
		iforest.WithSampleSize(p.cfg.SubsampleSize),
		iforest.WithContamination(p.cfg.Contamination),
		iforest.WithSeed(p.cfg.RandomSeed),
		iforest.WithWorkers(p.cfg.Workers),
	)
}

// Detect runs both detectors without scoring them. It is used for batches
// that carry no ground truth.
func (p *Pipeline) Detect(records []traffic.Record) (*Outcome, error) {
	forest, err := p.newForest()
	if err != nil {
		return nil, err
	}
	return p.detect(records, forest, true)
}

// DetectWith is Detect with a previously fitted forest, which is used as
// is instead of being fitted on the batch.
func (p *Pipeline) DetectWith(records []traffic.Record, forest *iforest.IsolationForest) (*Outcome, error) {
	return p.detect(records, forest, false)
}

func (p *Pipeline) detect(records []traffic.Record, forest *iforest.IsolationForest, fit bool) (*Outcome, error) {
	if err := traffic.Validate(records); err != nil {
		return nil, err
	}

	out := &Outcome{
		RunID:   uuid.New(),
		Records: records,
		Forest:  forest,
	}
	log := p.logger.With(zap.String("run_id", out.RunID.String()))
	log.Info("run started", zap.Int("records", len(records)))

	out.ThresholdResults = p.rule.Detect(records)
	out.FlaggedSources = p.rule.Sources(records)
	log.Info("threshold detector finished",
		zap.Int("limit", p.rule.Limit()),
		zap.Int("flagged_records", detectors.Flagged(out.ThresholdResults)),
		zap.Int("flagged_sources", len(out.FlaggedSources)),
	)
	for _, s := range out.FlaggedSources {
		log.Debug("source over threshold", zap.String("source_id", s.ID), zap.Int("count", s.Count))
	}

	vectors := features.Extract(records)
	start := time.Now()
	var err error
	switch {
	case fit:
		out.OutlierResults, err = forest.Detect(vectors)
	case len(vectors) == 0:
		out.OutlierResults = []detectors.Result{}
	default:
		out.OutlierResults, err = forest.Classify(vectors)
	}
	if err != nil {
		return nil, fmt.Errorf("isolation forest: %w", err)
	}
	elapsed := time.Since(start)
	log.Info("isolation forest finished",
		zap.Bool("fitted", fit),
		zap.Int("subsample_size", forest.SampleSize()),
		zap.Int("max_depth", forest.MaxDepth()),
		zap.Int("flagged_records", detectors.Flagged(out.OutlierResults)),
		zap.Duration("elapsed", elapsed),
	)

	if p.metrics != nil {
		p.metrics.ObserveFit(elapsed.Seconds())
		p.metrics.SetFlagged(detectors.NameThreshold, detectors.Flagged(out.ThresholdResults))
		p.metrics.SetFlagged(detectors.NameOutlier, detectors.Flagged(out.OutlierResults))
	}

	return out, nil
}

// Run runs both detectors and compares them against the ground truth
// labels of the records.
func (p *Pipeline) Run(records []traffic.Record) (*Outcome, error) {
	out, err := p.Detect(records)
	if err != nil {
		return nil, err
	}

	truth := traffic.Labels(records)
	baseline, err := eval.Confuse(detectors.Predictions(out.ThresholdResults), truth)
	if err != nil {
		return nil, fmt.Errorf("threshold detector: %w", err)
	}
	candidate, err := eval.Confuse(detectors.Predictions(out.OutlierResults), truth)
	if err != nil {
		return nil, fmt.Errorf("isolation forest: %w", err)
	}
	out.Report = eval.CompareConfusion(baseline, candidate)

	p.logger.Info("run finished",
		zap.String("run_id", out.RunID.String()),
		zap.Float64("threshold_f1", out.Report.ThresholdMetrics.F1),
		zap.Float64("threshold_accuracy", out.Report.ThresholdMetrics.Accuracy),
		zap.Float64("outlier_f1", out.Report.OutlierMetrics.F1),
		zap.Float64("outlier_accuracy", out.Report.OutlierMetrics.Accuracy),
		zap.Float64("f1_improvement_pct", out.Report.F1ImprovementPct),
		zap.Float64("accuracy_improvement_pct", out.Report.AccuracyImprovementPct),
	)

	if p.metrics != nil {
		p.metrics.RecordReport(len(records), out.Report)
	}

	return out, nil
}

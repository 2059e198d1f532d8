// Package pipeline runs a detected song through an ordered list of
// independent processing stages. Stages communicate only through the song's
// processed-field state, never by calling each other.
package pipeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
	"scrobblerd/internal/song"
)

// Stage is one unit of song enrichment, correction or validation. A stage
// must not assume any other stage has or has not run. Returning an error
// means the stage contributed nothing; only song.MarkInvalid stops the run.
type Stage interface {
	Name() string
	Apply(ctx context.Context, s *song.Song) error
}

// Default stage priorities. Lower runs earlier and wins non-forced writes.
const (
	PriorityNormalize  = 10
	PriorityUserEdit   = 20
	PriorityLLMExtract = 30
	PriorityInfo       = 40
	PriorityValidate   = 90
)

type registeredStage struct {
	priority int
	order    int
	stage    Stage
}

// Processor owns the configured stage order. Stages run by ascending
// priority; equal priorities run in registration order.
type Processor struct {
	logger *zap.Logger
	stages []registeredStage
}

func NewProcessor(logger *zap.Logger) *Processor {
	return &Processor{logger: logger}
}

// Register adds a stage at the given priority. Lower priorities run first
// and therefore win non-forced field writes.
func (p *Processor) Register(priority int, stage Stage) {
	p.stages = append(p.stages, registeredStage{
		priority: priority,
		order:    len(p.stages),
		stage:    stage,
	})
	sort.SliceStable(p.stages, func(i, j int) bool {
		if p.stages[i].priority != p.stages[j].priority {
			return p.stages[i].priority < p.stages[j].priority
		}
		return p.stages[i].order < p.stages[j].order
	})
}

// Process builds a Song from raw input and runs every stage over it in
// order, stopping as soon as any stage invalidates the song. The returned
// song may be invalid; callers check IsValid before reporting it anywhere.
func (p *Processor) Process(ctx context.Context, raw core.RawSong) *song.Song {
	s := song.New(raw)

	for _, rs := range p.stages {
		if s.IsInvalid() {
			p.logger.Debug("Song invalid, skipping remaining stages",
				zap.String("stage", rs.stage.Name()),
				zap.String("reason", s.InvalidReason()))
			break
		}
		p.runStage(ctx, rs.stage, s)
	}

	return s
}

// runStage isolates one stage: a stage that errors or panics contributed
// nothing, and must never abort the rest of the pipeline.
func (p *Processor) runStage(ctx context.Context, stage Stage, s *song.Song) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Pipeline stage panicked",
				zap.String("stage", stage.Name()),
				zap.Any("panic", r))
		}
	}()

	if err := stage.Apply(ctx, s); err != nil {
		p.logger.Warn("Pipeline stage failed",
			zap.String("stage", stage.Name()),
			zap.Error(err))
	}
}

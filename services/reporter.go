package services

import (
	"sync"

	"github.com/mrnavastar/mclaunch/util"
	"github.com/pterm/pterm"
)

const (
	EventProgress = "on-progress"
	EventComplete = "on-complete"
	EventFailed   = "on-failed"
)

// Emitter is the push side of the RPC channel.
type Emitter interface {
	Emit(event string, payload any)
}

// StageReporter is what a stage executor may call while it works.
type StageReporter interface {
	ReportProgress(percent int)
	ReportFailure(stage util.Stage)
}

type ProgressEvent struct {
	Id         string     `json:"id"`
	Version    string     `json:"version"`
	Stage      util.Stage `json:"stage"`
	StageLabel string     `json:"stageLabel"`
	Progress   int        `json:"progress"`
	Cycle      int        `json:"cycle"`
	Layer      string     `json:"layer"`
}

type CompleteEvent struct {
	Id      string `json:"id"`
	Version string `json:"version"`
}

type FailedEvent struct {
	Id      string     `json:"id"`
	Version string     `json:"version"`
	Stage   util.Stage `json:"stage"`
	Cycle   int        `json:"cycle"`
	Message string     `json:"message,omitempty"`
}

// Reporter turns pipeline callbacks into push events.
type Reporter struct {
	emitter Emitter
	logger  *pterm.Logger
}

func NewReporter(emitter Emitter, logger *pterm.Logger) *Reporter {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Reporter{emitter: emitter, logger: logger}
}

func (r *Reporter) emit(event string, payload any) {
	if r.emitter != nil {
		r.emitter.Emit(event, payload)
	}
}

func (r *Reporter) stage(task util.InstallTask, cycle int, layer string, stage util.Stage) *stageReporter {
	return &stageReporter{reporter: r, task: task, cycle: cycle, layer: layer, stage: stage, last: -1}
}

func (r *Reporter) complete(task util.InstallTask) {
	r.logger.Info("install complete", r.logger.Args("id", task.TargetId, "version", task.VanillaVersion))
	r.emit(EventComplete, CompleteEvent{Id: task.TargetId, Version: task.VanillaVersion})
}

func (r *Reporter) failed(task util.InstallTask, cycle int, stage util.Stage, err error) {
	event := FailedEvent{Id: task.TargetId, Version: task.VanillaVersion, Stage: stage, Cycle: cycle}
	if err != nil {
		event.Message = err.Error()
	}
	r.logger.Error("install stage failed", r.logger.Args("id", task.TargetId, "stage", stage, "cycle", cycle, "error", event.Message))
	r.emit(EventFailed, event)
}

// stageReporter guarantees a non-decreasing progress stream per stage.
type stageReporter struct {
	reporter *Reporter
	task     util.InstallTask
	cycle    int
	layer    string
	stage    util.Stage

	mu     sync.Mutex
	last   int
	failed bool
}

func (s *stageReporter) ReportProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed || percent <= s.last {
		return
	}
	s.last = percent
	s.reporter.emit(EventProgress, ProgressEvent{
		Id:         s.task.TargetId,
		Version:    s.task.VanillaVersion,
		Stage:      s.stage,
		StageLabel: s.stage.Label(),
		Progress:   percent,
		Cycle:      s.cycle,
		Layer:      s.layer,
	})
}

// ReportFailure marks the stage failed; the pipeline emits the single
// on-failed event once the executor returns.
func (s *stageReporter) ReportFailure(stage util.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
}

func (s *stageReporter) hasFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Percent converts done/total units to a clamped 0..100 value.
func Percent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(p)
}

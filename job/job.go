// Package job runs one scheduled entry point and turns whatever happens,
// error and panic included, into an Outcome the scheduler can act on.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const StatusFailed = "failed"

// Outcome is what a single run reports back.
type Outcome struct {
	Job      string        `json:"job"`
	RunID    string        `json:"run_id"`
	OK       bool          `json:"ok"`
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

func (o Outcome) String() string {
	state := "ok"
	if !o.OK {
		state = "not ok"
	}
	return fmt.Sprintf("%s %s: %s: %s", o.Job, state, o.Status, o.Message)
}

// Report is filled in by the job body.
type Report struct {
	OK      bool
	Status  string
	Message string
}

// Func is a job body. The logger it receives already carries the job name
// and run id.
type Func func(ctx context.Context, log *zap.Logger) (Report, error)

// Recorder counts outcomes. *metrics.Recorder satisfies it.
type Recorder interface {
	Job(job, status string)
}

// Run executes fn once. An error or a panic yields a failed Outcome; a
// Report with OK false is passed through as is.
func Run(ctx context.Context, log *zap.Logger, rec Recorder, name string, fn Func) (out Outcome) {
	if log == nil {
		log = zap.NewNop()
	}
	out = Outcome{
		Job:     name,
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	jlog := log.With(zap.String("job", name), zap.String("run_id", out.RunID))
	jlog.Info("job started")

	defer func() {
		if r := recover(); r != nil {
			out.OK = false
			out.Status = StatusFailed
			out.Message = fmt.Sprintf("panic: %v", r)
			jlog.Error("job panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		out.Duration = time.Since(out.Started)
		if rec != nil {
			rec.Job(name, out.Status)
		}
		fields := []zap.Field{
			zap.Bool("ok", out.OK),
			zap.String("status", out.Status),
			zap.String("message", out.Message),
			zap.Duration("duration", out.Duration),
		}
		if out.OK {
			jlog.Info("job finished", fields...)
		} else {
			jlog.Warn("job finished", fields...)
		}
	}()

	rep, err := fn(ctx, jlog)
	if err != nil {
		out.OK = false
		out.Status = rep.Status
		if out.Status == "" {
			out.Status = StatusFailed
		}
		out.Message = err.Error()
		jlog.Error("job failed", zap.Error(err))
		return out
	}

	out.OK = rep.OK
	out.Status = rep.Status
	out.Message = rep.Message
	return out
}

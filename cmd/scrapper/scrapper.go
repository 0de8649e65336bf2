package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/app"
	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/logger"
	"github.com/abelzeko/water-watcher/internal/usecases"
)

// pipeline is the part of PipelineUseCase the scheduler drives
type pipeline interface {
	RunRiverScrapers(ctx context.Context) usecases.CycleSummary
	RunRaftWatch(ctx context.Context) usecases.CycleSummary
	RunLandAgencyScrapers(ctx context.Context) usecases.CycleSummary
	RunFacebook(ctx context.Context) usecases.CycleSummary
	RunWeeklyDigest(ctx context.Context) usecases.CycleSummary
}

type job struct {
	name       string
	spec       string
	runOnStart bool
	run        func(ctx context.Context) usecases.CycleSummary
}

func every(minutes int) string {
	return fmt.Sprintf("@every %dm", minutes)
}

// scheduleJobs lists the pipeline jobs enabled by the schedule. Jobs with a
// non-positive interval are skipped.
func scheduleJobs(cfg config.ScheduleConfig, p pipeline) []job {
	var jobs []job
	add := func(name string, minutes int, run func(ctx context.Context) usecases.CycleSummary) {
		if minutes > 0 {
			jobs = append(jobs, job{name: name, spec: every(minutes), runOnStart: true, run: run})
		}
	}
	add("rivers", cfg.RiverIntervalMinutes, p.RunRiverScrapers)
	add("raft_watch", cfg.RaftWatchIntervalMinutes, p.RunRaftWatch)
	add("land_agencies", cfg.LandAgencyIntervalMinutes, p.RunLandAgencyScrapers)
	add("facebook", cfg.FacebookIntervalMinutes, p.RunFacebook)

	if cfg.DigestCron != "" {
		jobs = append(jobs, job{name: "weekly_digest", spec: cfg.DigestCron, run: p.RunWeeklyDigest})
	}
	return jobs
}

// cronLogger routes robfig/cron logs through zap
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

func newScheduler(log *zap.Logger) *cron.Cron {
	cl := cronLogger{log: log.Named("cron").Sugar()}
	return cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// registerJobs adds jobs to c and returns the entries to run right away
func registerJobs(ctx context.Context, c *cron.Cron, jobs []job, log *zap.Logger) ([]cron.EntryID, error) {
	var onStart []cron.EntryID
	for _, j := range jobs {
		jobLog := log.With(zap.String("job", j.name))
		jobCtx := logger.WithLogger(ctx, jobLog)
		id, err := c.AddFunc(j.spec, func() {
			summary := j.run(jobCtx)
			if len(summary.Failed) > 0 {
				jobLog.Warn("Job finished with failed sources", zap.Strings("failed", summary.Failed))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule %s (%q): %w", j.name, j.spec, err)
		}
		log.Info("Job scheduled", zap.String("job", j.name), zap.String("spec", j.spec))
		if j.runOnStart {
			onStart = append(onStart, id)
		}
	}
	return onStart, nil
}

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.toml if present)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.Log
	log.Info("Starting Water-Watcher scraping pipeline")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newScheduler(log)
	onStart, err := registerJobs(ctx, c, scheduleJobs(a.Config.Schedule, a.Pipeline()), log)
	if err != nil {
		log.Error("Failed to set up scheduler", zap.Error(err))
		return err
	}
	c.Start()

	startup := runOnStart(ctx, c, onStart)

	<-ctx.Done()
	log.Info("Shutting down scheduler, waiting for running jobs")
	<-c.Stop().Done()
	<-startup
	log.Info("Scheduler stopped")
	return nil
}

// runOnStart runs the given entries once, one after another, and closes the
// returned channel when the last one finishes or ctx is cancelled
func runOnStart(ctx context.Context, c *cron.Cron, ids []cron.EntryID) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			c.Entry(id).WrappedJob.Run()
		}
	}()
	return done
}

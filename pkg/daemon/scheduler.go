package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/config"
	"github.com/battmeter/battmeter/pkg/types"
)

// cronLogger forwards cron's logs to logrus.
type cronLogger struct {
	logger logrus.FieldLogger
}

func kvFields(keysAndValues []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.WithFields(kvFields(keysAndValues)).Trace("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

const sampleRecordCount = 60

// SampleScheduler periodically asks for a fresh battery sample. The schedule
// can be replaced while running.
type SampleScheduler struct {
	cron     *cron.Cron
	task     func()
	recorder *TimeSeriesRecorder

	mu       sync.Mutex
	entry    cron.EntryID
	spec     string
	schedule cron.Schedule
}

func NewSampleScheduler(task func()) (*SampleScheduler, error) {
	if task == nil {
		return nil, fmt.Errorf("task function cannot be nil")
	}

	logger := cronLogger{logger: logrus.StandardLogger()}
	return &SampleScheduler{
		cron: cron.New(
			cron.WithParser(config.ScheduleParser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		task:     task,
		recorder: NewTimeSeriesRecorder(sampleRecordCount),
	}, nil
}

// interval returns the expected time between two samples around t.
func (s *SampleScheduler) interval(t time.Time) time.Duration {
	s.mu.Lock()
	sh := s.schedule
	s.mu.Unlock()

	if sh == nil {
		return 0
	}
	next := sh.Next(t)
	return sh.Next(next).Sub(next)
}

func (s *SampleScheduler) run() {
	now := time.Now()
	s.checkMissedSamples(now)
	s.recorder.AddRecord(now)
	s.task()
}

// missedSamples reports whether a timer sample should have run between the
// last recorded one and now.
func (s *SampleScheduler) missedSamples(now time.Time) (last time.Time, interval time.Duration, missed bool) {
	last = s.recorder.GetLastRecord()
	if last.IsZero() {
		return last, 0, false
	}
	interval = s.interval(last)
	if interval <= 0 {
		return last, interval, false
	}
	return last, interval, now.Sub(last) >= 2*interval+time.Second
}

// checkMissedSamples logs when the previous timer sample is further back
// than the schedule allows, which usually means the system was asleep.
func (s *SampleScheduler) checkMissedSamples(now time.Time) bool {
	last, interval, missed := s.missedSamples(now)
	if !missed {
		return false
	}
	since := now.Sub(last)
	logrus.WithFields(logrus.Fields{
		"lastSample": last.Format(time.RFC3339),
		"since":      since.Round(time.Second).String(),
		"interval":   interval.String(),
	}).Info("possibly missed samples, the system may have been asleep")
	return true
}

// Schedule replaces the current schedule with spec.
func (s *SampleScheduler) Schedule(spec string) error {
	sh, err := config.ScheduleParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid sample schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spec == spec && s.entry != 0 {
		return nil
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = s.cron.Schedule(sh, cron.FuncJob(s.run))
	s.spec = spec
	s.schedule = sh

	logrus.WithField("schedule", spec).Debug("sample schedule set")
	return nil
}

func (s *SampleScheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running sample request to return.
func (s *SampleScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Status returns the current schedule, its next run and recent timer
// samples. The next run is unset until the scheduler has been started.
func (s *SampleScheduler) Status() types.ScheduleStatus {
	s.mu.Lock()
	st := types.ScheduleStatus{Schedule: s.spec}
	next := s.cron.Entry(s.entry).Next
	s.mu.Unlock()

	if !next.IsZero() {
		st.Next = &next
	}
	now := time.Now()
	last, interval, missed := s.missedSamples(now)
	if !last.IsZero() {
		st.LastSample = &last
		st.ContinuousSamples = s.recorder.GetRecordsIn(sampleRecordCount*interval, interval, now)
		st.MissedSamples = missed
	}
	return st
}

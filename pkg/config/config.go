package config

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScheduleParser parses sample schedules. It accepts an optional seconds
// field and descriptors such as "@every 1m".
var ScheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config interface {
	// DBPath is the SQLite database holding widgets and their state. An empty
	// path keeps everything in memory.
	DBPath() string
	DebugLogPath() string
	SampleSchedule() string
	AllowNonRootAccess() bool
	ExportDBus() bool
	QueueSize() int

	SetDBPath(string)
	SetDebugLogPath(string)
	SetSampleSchedule(string) error
	SetAllowNonRootAccess(bool)
	SetExportDBus(bool)
	SetQueueSize(int) error

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}

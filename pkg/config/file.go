package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/utils/ptr"
)

const (
	minQueueSize = 1
	maxQueueSize = 4096
)

var (
	defaultFileConfig = &RawFileConfig{
		DBPath:             ptr.To("/var/lib/battmeter/state.db"),
		DebugLogPath:       ptr.To("/var/lib/battmeter/debug.log"),
		SampleSchedule:     ptr.To("@every 1m"),
		AllowNonRootAccess: ptr.To(false),
		// D-Bus needs a session bus, which system daemons usually do not have.
		ExportDBus: ptr.To(false),
		QueueSize:  ptr.To(64),
	}
)

var _ Config = &File{}

// File is a Config stored as JSON, or as TOML when the path ends in ".toml".
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	DBPath             *string `json:"dbPath,omitempty" toml:"dbPath"`
	DebugLogPath       *string `json:"debugLogPath,omitempty" toml:"debugLogPath"`
	SampleSchedule     *string `json:"sampleSchedule,omitempty" toml:"sampleSchedule"`
	AllowNonRootAccess *bool   `json:"allowNonRootAccess,omitempty" toml:"allowNonRootAccess"`
	ExportDBus         *bool   `json:"exportDBus,omitempty" toml:"exportDBus"`
	QueueSize          *int    `json:"queueSize,omitempty" toml:"queueSize"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		DBPath:             ptr.To(c.DBPath()),
		DebugLogPath:       ptr.To(c.DebugLogPath()),
		SampleSchedule:     ptr.To(c.SampleSchedule()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
		ExportDBus:         ptr.To(c.ExportDBus()),
		QueueSize:          ptr.To(c.QueueSize()),
	}

	return rawConfig, nil
}

func valueOr[T any](v, def *T) T {
	if v != nil {
		return *v
	}
	return *def
}

func (f *File) DBPath() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return valueOr(f.c.DBPath, defaultFileConfig.DBPath)
}

func (f *File) DebugLogPath() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return valueOr(f.c.DebugLogPath, defaultFileConfig.DebugLogPath)
}

func (f *File) SampleSchedule() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return valueOr(f.c.SampleSchedule, defaultFileConfig.SampleSchedule)
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return valueOr(f.c.AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess)
}

func (f *File) ExportDBus() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return valueOr(f.c.ExportDBus, defaultFileConfig.ExportDBus)
}

func (f *File) QueueSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return valueOr(f.c.QueueSize, defaultFileConfig.QueueSize)
}

func (f *File) SetDBPath(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.DBPath = &p
}

func (f *File) SetDebugLogPath(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.DebugLogPath = &p
}

func (f *File) SetSampleSchedule(s string) error {
	if _, err := ScheduleParser.Parse(s); err != nil {
		return pkgerrors.Wrapf(err, "invalid sample schedule %q", s)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SampleSchedule = &s
	return nil
}

func (f *File) SetAllowNonRootAccess(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &b
}

func (f *File) SetExportDBus(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.ExportDBus = &b
}

func (f *File) SetQueueSize(n int) error {
	if n < minQueueSize || n > maxQueueSize {
		return pkgerrors.Errorf("queue size must be between %d and %d, got %d", minQueueSize, maxQueueSize, n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.QueueSize = &n
	return nil
}

func (f *File) isTOML() bool {
	return strings.EqualFold(filepath.Ext(f.filepath), ".toml")
}

// validate checks values that would otherwise only fail once the daemon
// uses them.
func validate(c *RawFileConfig) error {
	if c.SampleSchedule != nil {
		if _, err := ScheduleParser.Parse(*c.SampleSchedule); err != nil {
			return pkgerrors.Wrapf(err, "invalid sampleSchedule %q", *c.SampleSchedule)
		}
	}
	if c.QueueSize != nil && (*c.QueueSize < minQueueSize || *c.QueueSize > maxQueueSize) {
		return pkgerrors.Errorf("queueSize must be between %d and %d, got %d", minQueueSize, maxQueueSize, *c.QueueSize)
	}
	return nil
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if f.isTOML() {
		err = toml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := validate(&conf); err != nil {
		return pkgerrors.Wrapf(err, "bad config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	var buf bytes.Buffer
	if f.isTOML() {
		if err := toml.NewEncoder(&buf).Encode(f.c); err != nil {
			return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
		}
	} else {
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(f.c); err != nil {
			return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
		}
	}

	if err := os.WriteFile(f.filepath, buf.Bytes(), 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"dbPath":             f.DBPath(),
		"debugLogPath":       f.DebugLogPath(),
		"sampleSchedule":     f.SampleSchedule(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"exportDBus":         f.ExportDBus(),
		"queueSize":          f.QueueSize(),
	}
}

// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config is the three-stage configuration layer: compiled-in
// defaults, an optional JSON config file loaded through
// github.com/spf13/viper, then CLI flag overrides applied on top,
// mirroring config.py's _load_default/load/load_args precedence.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/symflow/mazerunner/pkg/rlmodel"
)

// Defaults mirror config.py's module-level constants.
const (
	DefaultMaxDistance      = int64(1<<63 - 1)
	DefaultDiscountFactor   = 1.0
	DefaultLearningRate     = 0.5
	DefaultExploreRate      = 0.5
	DefaultSyncFrequency    = 100
	DefaultSaveFrequency    = 200
	DefaultTimeoutSeconds   = 60
	DefaultMaxTimeoutSecond = 20 * 60
	DefaultMaxErrorReports  = 30
	DefaultMaxCrashReports  = 30
	DefaultMaxFlipNum       = 128
	DefaultMinHangFiles     = 30
	DefaultMemoryLimitPct   = 85
	DefaultDiskLimitBytes   = int64(32) << 30
	DefaultRandomInput      = "AAAA"
)

// Config is the fully resolved run configuration, ported field-for-field
// from config.py's Config class.
type Config struct {
	AgentType string `mapstructure:"agent_type"`

	OutputDir       string `mapstructure:"output_dir"`
	AflDir          string `mapstructure:"afl_dir"`
	MazerunnerDir   string `mapstructure:"mazerunner_dir"`
	InitialSeedDir  string `mapstructure:"initial_seed_dir"`
	StaticResultDir string `mapstructure:"static_result_folder"`

	Cmd     []string `mapstructure:"cmd"`
	Mail    string   `mapstructure:"mail"`
	Debug   bool     `mapstructure:"debug"`

	RandomInput              string  `mapstructure:"random_input"`
	MaxDistance              int64   `mapstructure:"max_distance"`
	NestedBranchEnabled      bool    `mapstructure:"nested_branch_enabled"`
	GEPSolverEnabled         bool    `mapstructure:"gep_solver_enabled"`
	OptimisticSolvingEnabled bool    `mapstructure:"optimistic_solving_enabled"`
	DiscountFactor           float64 `mapstructure:"discount_factor"`
	LearningRate             float64 `mapstructure:"learning_rate"`
	ExploreRate              float64 `mapstructure:"explore_rate"`

	SyncFrequency   int `mapstructure:"sync_frequency"`
	SaveFrequency   int `mapstructure:"save_frequency"`
	Timeout         int `mapstructure:"timeout"`
	MaxTimeout      int `mapstructure:"max_timeout"`
	MaxErrorReports int `mapstructure:"max_error_reports"`
	MaxCrashReports int `mapstructure:"max_crash_reports"`
	MaxFlipNum      int `mapstructure:"max_flip_num"`
	MinHangFiles    int `mapstructure:"min_hang_files"`

	MemoryLimitPercent int   `mapstructure:"memory_limit"`
	DiskLimitBytes     int64 `mapstructure:"disk_limit"`

	ModelType rlmodel.Kind `mapstructure:"-"`

	InitialPolicyPath string `mapstructure:"initial_policy_path"`
}

// Defaults returns the config.py-equivalent starting point; callers
// then apply an optional file and CLI overrides on top.
func Defaults() *Config {
	return &Config{
		RandomInput:              DefaultRandomInput,
		MaxDistance:              DefaultMaxDistance,
		NestedBranchEnabled:      true,
		GEPSolverEnabled:         false,
		OptimisticSolvingEnabled: true,
		DiscountFactor:           DefaultDiscountFactor,
		LearningRate:             DefaultLearningRate,
		ExploreRate:              DefaultExploreRate,
		SyncFrequency:            DefaultSyncFrequency,
		SaveFrequency:            DefaultSaveFrequency,
		Timeout:                  DefaultTimeoutSeconds,
		MaxTimeout:               DefaultMaxTimeoutSecond,
		MaxErrorReports:          DefaultMaxErrorReports,
		MaxCrashReports:          DefaultMaxCrashReports,
		MaxFlipNum:               DefaultMaxFlipNum,
		MinHangFiles:             DefaultMinHangFiles,
		MemoryLimitPercent:       DefaultMemoryLimitPct,
		DiskLimitBytes:           DefaultDiskLimitBytes,
		ModelType:                rlmodel.KindReachability,
	}
}

// LoadFile merges a JSON config file on top of c, via viper, matching
// config.py's load(path): an empty path is a no-op, while a path that
// does not exist is an error.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config: %s does not exist", path)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if mt := v.GetString("model_type"); mt != "" {
		c.ModelType = parseModelType(mt)
	}
	return nil
}

func parseModelType(s string) rlmodel.Kind {
	if strings.EqualFold(s, "distance") {
		return rlmodel.KindDistance
	}
	return rlmodel.KindReachability
}

// CLIOverrides is the subset of flags cmd/mazerunner exposes; every
// non-zero field overrides the corresponding Config field, matching
// config.py's load_args.
type CLIOverrides struct {
	AgentType           string
	OutputDir           string
	AflDir              string
	MazerunnerDir       string
	Input               string
	Mail                string
	Cmd                 []string
	Debug               bool
	StaticResultFolder  string
	ModelType           string
}

// ApplyCLI layers CLI flag overrides on top of c.
func (c *Config) ApplyCLI(o CLIOverrides) error {
	if o.AgentType != "" {
		c.AgentType = o.AgentType
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.AflDir != "" {
		c.AflDir = o.AflDir
	}
	if o.MazerunnerDir != "" {
		c.MazerunnerDir = filepath.Join(c.OutputDir, o.MazerunnerDir)
	}
	if o.Input != "" {
		c.InitialSeedDir = o.Input
	}
	if o.Mail != "" {
		c.Mail = o.Mail
	}
	if len(o.Cmd) > 0 {
		c.Cmd = o.Cmd
	}
	if o.Debug {
		c.Debug = true
	}
	if o.StaticResultFolder != "" {
		c.StaticResultDir = o.StaticResultFolder
	}
	if o.ModelType != "" {
		c.ModelType = parseModelType(o.ModelType)
	}
	if c.StaticResultDir != "" {
		maxDist, err := loadDistanceFile(filepath.Join(c.StaticResultDir, "distance.cfg.txt"))
		if err != nil {
			return err
		}
		c.MaxDistance = maxDist
	}
	return nil
}

// Validate mirrors config.py's validate(): cmd is mandatory, qsym/replay
// need an afl_dir, and output_dir must exist.
func (c *Config) Validate() error {
	if len(c.Cmd) == 0 {
		return fmt.Errorf("config: no cmd provided")
	}
	if (c.AgentType == "qsym" || c.AgentType == "replay") && c.AflDir == "" {
		return fmt.Errorf("config: agent type %q requires an afl dir", c.AgentType)
	}
	if info, err := os.Stat(c.OutputDir); err != nil || !info.IsDir() {
		return fmt.Errorf("config: %s is not a directory", c.OutputDir)
	}
	return nil
}

// loadDistanceFile reads the last non-empty line of a CSV-ish distance
// config and returns its last field, truncated to an integer; earlier
// lines are not compared.
func loadDistanceFile(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("config: distance file: %w", err)
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lastLine = line
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if lastLine == "" {
		return 0, fmt.Errorf("config: distance file %s is empty", path)
	}
	fields := strings.Split(lastLine, ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[len(fields)-1]), 64)
	if err != nil {
		return 0, fmt.Errorf("config: parsing distance: %w", err)
	}
	return int64(v), nil
}

package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Dicklesworthstone/omnimon/internal/errors"
	"github.com/Dicklesworthstone/omnimon/internal/ranking"
)

// EnvPrefix prefixes every environment override, e.g. OMNIMON_SLOW_INTERVAL.
const EnvPrefix = "OMNIMON"

// Config carries runtime options for omnimon.
type Config struct {
	HistoryCapacity      int
	HeatmapWidth         int
	FastInterval         time.Duration
	SlowInterval         time.Duration
	PollInterval         time.Duration
	AggregationInterval  time.Duration
	FrameInterval        time.Duration
	ChannelCapacity      int
	MovingAverageSamples int
	ProcessLimit         int
	Sort                 string
	Filter               string
	JSON                 bool
	JSONStream           bool
	NoColor              bool
	LogFile              string
	Debug                bool
	MetricsAddr          string
}

func Default() Config {
	return Config{
		HistoryCapacity:      200,
		HeatmapWidth:         100,
		FastInterval:         time.Millisecond,
		SlowInterval:         500 * time.Millisecond,
		PollInterval:         100 * time.Microsecond,
		AggregationInterval:  100 * time.Millisecond,
		FrameInterval:        33 * time.Millisecond,
		ChannelCapacity:      4096,
		MovingAverageSamples: 1000,
		ProcessLimit:         50,
		Sort:                 "cpu",
	}
}

// key names shared by viper, env vars (upper-cased, prefixed) and YAML files.
const (
	keyHistoryCapacity      = "history_capacity"
	keyHeatmapWidth         = "heatmap_width"
	keyFastInterval         = "fast_interval"
	keySlowInterval         = "slow_interval"
	keyPollInterval         = "poll_interval"
	keyAggregationInterval  = "aggregation_interval"
	keyFrameInterval        = "frame_interval"
	keyChannelCapacity      = "channel_capacity"
	keyMovingAverageSamples = "moving_average_samples"
	keyProcessLimit         = "process_limit"
	keySort                 = "sort"
	keyFilter               = "filter"
	keyJSON                 = "json"
	keyJSONStream           = "json_stream"
	keyNoColor              = "no_color"
	keyLogFile              = "log_file"
	keyDebug                = "debug"
	keyMetricsAddr          = "metrics_addr"
)

// flagName maps a config key to its command-line flag.
func flagName(key string) string { return strings.ReplaceAll(key, "_", "-") }

// RegisterFlags defines one flag per config key on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int(flagName(keyHistoryCapacity), d.HistoryCapacity, "points retained per history series")
	fs.Int(flagName(keyHeatmapWidth), d.HeatmapWidth, "time columns per core in the heatmap")
	fs.Duration(flagName(keyFastInterval), d.FastInterval, "CPU/memory refresh cadence")
	fs.Duration(flagName(keySlowInterval), d.SlowInterval, "process/network/disk/sensor refresh cadence")
	fs.Duration(flagName(keyPollInterval), d.PollInterval, "scheduler wake interval")
	fs.Duration(flagName(keyAggregationInterval), d.AggregationInterval, "window collapsed into one history point every")
	fs.Duration(flagName(keyFrameInterval), d.FrameInterval, "UI refresh interval")
	fs.Int(flagName(keyChannelCapacity), d.ChannelCapacity, "samples buffered between scheduler and UI before dropping")
	fs.Int(flagName(keyMovingAverageSamples), d.MovingAverageSamples, "raw samples in the CPU moving average")
	fs.Int(flagName(keyProcessLimit), d.ProcessLimit, "processes shown in the ranking")
	fs.String(flagName(keySort), d.Sort, "initial process sort: cpu|mem")
	fs.String(flagName(keyFilter), d.Filter, "regex filter for process names")
	fs.Bool(flagName(keyJSON), d.JSON, "print one aggregated JSON snapshot and exit")
	fs.Bool(flagName(keyJSONStream), d.JSONStream, "stream NDJSON snapshots until interrupted")
	fs.Bool(flagName(keyNoColor), d.NoColor, "disable colors")
	fs.String(flagName(keyLogFile), d.LogFile, "write logs to this file while the UI runs")
	fs.Bool(flagName(keyDebug), d.Debug, "enable debug logging")
	fs.String(flagName(keyMetricsAddr), d.MetricsAddr, "serve Prometheus metrics on this address (e.g. :9102)")
}

// Load resolves configuration with precedence flags > environment > .env >
// config file > defaults. configPath may be empty, in which case the
// default path is used when it exists. fs may be nil.
func Load(configPath string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	// .env only fills variables that are not already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read .env file",
			"Fix or remove the .env file in the working directory")
	}

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultPath()
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil || explicit {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, errors.WrapWithCode(err, errors.ErrConfig,
					"Failed to read config file "+configPath,
					"Check the file exists and is valid YAML")
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for _, key := range allKeys {
			if f := fs.Lookup(flagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, errors.WrapWithCode(err, errors.ErrConfig,
						"Failed to bind flag --"+f.Name, "")
				}
			}
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// DefaultPath returns $XDG_CONFIG_HOME/omnimon/config.yaml (or the
// platform equivalent), or "" if no config directory is known.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "omnimon", "config.yaml")
}

var allKeys = []string{
	keyHistoryCapacity, keyHeatmapWidth, keyFastInterval, keySlowInterval,
	keyPollInterval, keyAggregationInterval, keyFrameInterval, keyChannelCapacity,
	keyMovingAverageSamples, keyProcessLimit, keySort, keyFilter, keyJSON,
	keyJSONStream, keyNoColor, keyLogFile, keyDebug, keyMetricsAddr,
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(keyHistoryCapacity, d.HistoryCapacity)
	v.SetDefault(keyHeatmapWidth, d.HeatmapWidth)
	v.SetDefault(keyFastInterval, d.FastInterval.String())
	v.SetDefault(keySlowInterval, d.SlowInterval.String())
	v.SetDefault(keyPollInterval, d.PollInterval.String())
	v.SetDefault(keyAggregationInterval, d.AggregationInterval.String())
	v.SetDefault(keyFrameInterval, d.FrameInterval.String())
	v.SetDefault(keyChannelCapacity, d.ChannelCapacity)
	v.SetDefault(keyMovingAverageSamples, d.MovingAverageSamples)
	v.SetDefault(keyProcessLimit, d.ProcessLimit)
	v.SetDefault(keySort, d.Sort)
	v.SetDefault(keyFilter, d.Filter)
	v.SetDefault(keyJSON, d.JSON)
	v.SetDefault(keyJSONStream, d.JSONStream)
	v.SetDefault(keyNoColor, d.NoColor)
	v.SetDefault(keyLogFile, d.LogFile)
	v.SetDefault(keyDebug, d.Debug)
	v.SetDefault(keyMetricsAddr, d.MetricsAddr)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		HistoryCapacity:      v.GetInt(keyHistoryCapacity),
		HeatmapWidth:         v.GetInt(keyHeatmapWidth),
		ChannelCapacity:      v.GetInt(keyChannelCapacity),
		MovingAverageSamples: v.GetInt(keyMovingAverageSamples),
		ProcessLimit:         v.GetInt(keyProcessLimit),
		Sort:                 v.GetString(keySort),
		Filter:               v.GetString(keyFilter),
		JSON:                 v.GetBool(keyJSON),
		JSONStream:           v.GetBool(keyJSONStream),
		NoColor:              v.GetBool(keyNoColor),
		LogFile:              v.GetString(keyLogFile),
		Debug:                v.GetBool(keyDebug),
		MetricsAddr:          v.GetString(keyMetricsAddr),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{keyFastInterval, &cfg.FastInterval},
		{keySlowInterval, &cfg.SlowInterval},
		{keyPollInterval, &cfg.PollInterval},
		{keyAggregationInterval, &cfg.AggregationInterval},
		{keyFrameInterval, &cfg.FrameInterval},
	}
	for _, d := range durations {
		parsed, err := parseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, errors.WrapWithCode(err, errors.ErrConfig,
				"Invalid duration for "+d.key,
				"Use a Go duration like 500ms or 1s, or a plain number of seconds")
		}
		*d.dst = parsed
	}
	return cfg, nil
}

// parseDuration accepts Go durations and bare numbers meaning seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	return time.ParseDuration(s + "s")
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	positive := []struct {
		name string
		ok   bool
	}{
		{keyHistoryCapacity, c.HistoryCapacity > 0},
		{keyHeatmapWidth, c.HeatmapWidth > 0},
		{keyChannelCapacity, c.ChannelCapacity > 0},
		{keyMovingAverageSamples, c.MovingAverageSamples > 0},
		{keyProcessLimit, c.ProcessLimit > 0},
		{keyFastInterval, c.FastInterval > 0},
		{keySlowInterval, c.SlowInterval > 0},
		{keyPollInterval, c.PollInterval > 0},
		{keyAggregationInterval, c.AggregationInterval > 0},
		{keyFrameInterval, c.FrameInterval > 0},
	}
	for _, p := range positive {
		if !p.ok {
			return errors.New(errors.ErrConfig,
				p.name+" must be greater than zero",
				"Set "+p.name+" in the config file, --"+flagName(p.name)+", or "+EnvPrefix+"_"+strings.ToUpper(p.name))
		}
	}
	if _, err := c.SortKey(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid sort key", "Use --sort cpu or --sort mem")
	}
	if _, err := c.FilterRegexp(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid process filter", "Check the --filter regular expression")
	}
	if c.JSON && c.JSONStream {
		return errors.New(errors.ErrConfig,
			"--json and --json-stream are mutually exclusive",
			"Pick one export mode")
	}
	return nil
}

// SortKey parses the configured sort order.
func (c Config) SortKey() (ranking.SortKey, error) { return ranking.ParseSortKey(c.Sort) }

// FilterRegexp compiles the process filter, or returns nil when unset.
func (c Config) FilterRegexp() (*regexp.Regexp, error) {
	if c.Filter == "" {
		return nil, nil
	}
	return regexp.Compile(c.Filter)
}

// YAML renders the effective configuration using the file key names.
func (c Config) YAML() ([]byte, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key, value, tag string) {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: value, Tag: tag},
		)
	}
	itoa := strconv.Itoa
	btoa := func(b bool) string {
		if b {
			return "true"
		}
		return "false"
	}

	add(keyHistoryCapacity, itoa(c.HistoryCapacity), "!!int")
	add(keyHeatmapWidth, itoa(c.HeatmapWidth), "!!int")
	add(keyFastInterval, c.FastInterval.String(), "!!str")
	add(keySlowInterval, c.SlowInterval.String(), "!!str")
	add(keyPollInterval, c.PollInterval.String(), "!!str")
	add(keyAggregationInterval, c.AggregationInterval.String(), "!!str")
	add(keyFrameInterval, c.FrameInterval.String(), "!!str")
	add(keyChannelCapacity, itoa(c.ChannelCapacity), "!!int")
	add(keyMovingAverageSamples, itoa(c.MovingAverageSamples), "!!int")
	add(keyProcessLimit, itoa(c.ProcessLimit), "!!int")
	add(keySort, c.Sort, "!!str")
	add(keyFilter, c.Filter, "!!str")
	add(keyJSON, btoa(c.JSON), "!!bool")
	add(keyJSONStream, btoa(c.JSONStream), "!!bool")
	add(keyNoColor, btoa(c.NoColor), "!!bool")
	add(keyLogFile, c.LogFile, "!!str")
	add(keyDebug, btoa(c.Debug), "!!bool")
	add(keyMetricsAddr, c.MetricsAddr, "!!str")

	return yaml.Marshal(node)
}

// Package config holds the runtime configuration of the store: database
// count, encoding promotion thresholds, snapshot settings and the memory
// ceiling. Values are resolved in the usual precedence order (defaults,
// config file, .env file, environment variables) and the config file can be
// watched for changes at runtime.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables, so the databases option
// becomes CEDAR_DATABASES.
const EnvPrefix = "CEDAR"

// Config holds all runtime parameters.
type Config struct {
	// Keyspace
	Databases int `mapstructure:"databases"`

	// Memory ceiling in bytes, 0 disables the limit
	MaxMemory int64 `mapstructure:"maxmemory"`

	// Encoding promotion thresholds
	HashMaxZiplistEntries int `mapstructure:"hash-max-ziplist-entries"`
	HashMaxZiplistValue   int `mapstructure:"hash-max-ziplist-value"`
	ListMaxZiplistEntries int `mapstructure:"list-max-ziplist-entries"`
	ListMaxZiplistValue   int `mapstructure:"list-max-ziplist-value"`
	SetMaxIntsetEntries   int `mapstructure:"set-max-intset-entries"`
	ZSetMaxZiplistEntries int `mapstructure:"zset-max-ziplist-entries"`
	ZSetMaxZiplistValue   int `mapstructure:"zset-max-ziplist-value"`

	// Snapshot settings
	Dir            string `mapstructure:"dir"`
	DBFilename     string `mapstructure:"dbfilename"`
	RDBCompression bool   `mapstructure:"rdbcompression"`
	RDBChecksum    bool   `mapstructure:"rdbchecksum"`

	// A background save starts once SaveAfterChanges keyspace changes
	// accumulated and SaveAfterSeconds passed since the last save.
	// SaveAfterChanges 0 disables scheduled saves.
	SaveAfterChanges int `mapstructure:"save-after-changes"`
	SaveAfterSeconds int `mapstructure:"save-after-seconds"`

	// Logging configuration
	LogLevel string `mapstructure:"loglevel"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Databases:             16,
		MaxMemory:             0,
		HashMaxZiplistEntries: 512,
		HashMaxZiplistValue:   64,
		ListMaxZiplistEntries: 512,
		ListMaxZiplistValue:   64,
		SetMaxIntsetEntries:   512,
		ZSetMaxZiplistEntries: 128,
		ZSetMaxZiplistValue:   64,
		Dir:                   ".",
		DBFilename:            "dump.rdb",
		RDBCompression:        true,
		RDBChecksum:           true,
		SaveAfterChanges:      1000,
		SaveAfterSeconds:      60,
		LogLevel:              "info",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("databases", d.Databases)
	v.SetDefault("maxmemory", d.MaxMemory)
	v.SetDefault("hash-max-ziplist-entries", d.HashMaxZiplistEntries)
	v.SetDefault("hash-max-ziplist-value", d.HashMaxZiplistValue)
	v.SetDefault("list-max-ziplist-entries", d.ListMaxZiplistEntries)
	v.SetDefault("list-max-ziplist-value", d.ListMaxZiplistValue)
	v.SetDefault("set-max-intset-entries", d.SetMaxIntsetEntries)
	v.SetDefault("zset-max-ziplist-entries", d.ZSetMaxZiplistEntries)
	v.SetDefault("zset-max-ziplist-value", d.ZSetMaxZiplistValue)
	v.SetDefault("dir", d.Dir)
	v.SetDefault("dbfilename", d.DBFilename)
	v.SetDefault("rdbcompression", d.RDBCompression)
	v.SetDefault("rdbchecksum", d.RDBChecksum)
	v.SetDefault("save-after-changes", d.SaveAfterChanges)
	v.SetDefault("save-after-seconds", d.SaveAfterSeconds)
	v.SetDefault("loglevel", d.LogLevel)
}

// Load resolves the configuration. An empty configFile skips the file
// layer; a missing .env file is not an error.
func Load(configFile string) (*Config, error) {
	// load .env into the process environment first so viper sees it
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the code relies on.
func (c *Config) Validate() error {
	if c.Databases < 1 {
		return fmt.Errorf("databases must be at least 1, got %d", c.Databases)
	}
	if c.MaxMemory < 0 {
		return fmt.Errorf("maxmemory must not be negative, got %d", c.MaxMemory)
	}
	for name, val := range map[string]int{
		"hash-max-ziplist-entries": c.HashMaxZiplistEntries,
		"hash-max-ziplist-value":   c.HashMaxZiplistValue,
		"list-max-ziplist-entries": c.ListMaxZiplistEntries,
		"list-max-ziplist-value":   c.ListMaxZiplistValue,
		"set-max-intset-entries":   c.SetMaxIntsetEntries,
		"zset-max-ziplist-entries": c.ZSetMaxZiplistEntries,
		"zset-max-ziplist-value":   c.ZSetMaxZiplistValue,
	} {
		if val < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, val)
		}
	}
	if c.DBFilename == "" {
		return fmt.Errorf("dbfilename must not be empty")
	}
	if c.SaveAfterChanges < 0 || c.SaveAfterSeconds < 0 {
		return fmt.Errorf("save thresholds must not be negative")
	}
	return nil
}

// Watch reloads the config file on every change and calls onChange with the
// new configuration. Invalid intermediate states are logged and skipped.
// The returned function stops the watcher.
func Watch(configFile string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(configFile); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", configFile, err)
	}

	lg := logger.GetLogger("config")
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(configFile)
				if err != nil {
					lg.Warningf("ignoring config reload: %v", err)
					continue
				}
				lg.Infof("config file %s reloaded", configFile)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				lg.Errorf("config watcher: %v", err)
			}
		}
	}()
	return func() { watcher.Close() }, nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-26s: %s\n", name, value))
	}

	addSection("Keyspace")
	addField("Databases", fmt.Sprintf("%d", c.Databases))
	addField("Max Memory", fmt.Sprintf("%d bytes", c.MaxMemory))

	addSection("Encodings")
	addField("Hash Ziplist Entries", fmt.Sprintf("%d", c.HashMaxZiplistEntries))
	addField("Hash Ziplist Value", fmt.Sprintf("%d bytes", c.HashMaxZiplistValue))
	addField("List Ziplist Entries", fmt.Sprintf("%d", c.ListMaxZiplistEntries))
	addField("List Ziplist Value", fmt.Sprintf("%d bytes", c.ListMaxZiplistValue))
	addField("Set Intset Entries", fmt.Sprintf("%d", c.SetMaxIntsetEntries))
	addField("ZSet Ziplist Entries", fmt.Sprintf("%d", c.ZSetMaxZiplistEntries))
	addField("ZSet Ziplist Value", fmt.Sprintf("%d bytes", c.ZSetMaxZiplistValue))

	addSection("Snapshots")
	addField("Directory", c.Dir)
	addField("DB Filename", c.DBFilename)
	addField("Compression", fmt.Sprintf("%t", c.RDBCompression))
	addField("Checksum", fmt.Sprintf("%t", c.RDBChecksum))
	addField("Save After Changes", fmt.Sprintf("%d", c.SaveAfterChanges))
	addField("Save After Seconds", fmt.Sprintf("%d s", c.SaveAfterSeconds))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/contestguard/harvester/internal/logger"
	"github.com/contestguard/harvester/internal/validator"
)

type SimilarityConfig struct {
	// Command to run over the staged artifact directory; it must print one
	// "left right score" triple per line on stdout
	Command string   `mapstructure:"command" validate:"required"`
	Args    []string `mapstructure:"args"`
}

type S3MirrorConfig struct {
	Endpoint        string `mapstructure:"endpoint"          validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id"     validate:"required"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
	BucketName      string `mapstructure:"bucket_name"       validate:"required"`
	SSLEnabled      bool   `mapstructure:"ssl_enabled"`
}

type LoggingConfig struct {
	Level   int  `mapstructure:"level"`
	UseOTLP bool `mapstructure:"use_otlp"`
}

// See harvester.yaml for an example config
type Config struct {
	RankingBaseURL  string            `mapstructure:"ranking_base_url" validate:"required,url"`
	SiteBaseURL     string            `mapstructure:"site_base_url"    validate:"required,url"`
	Regions         map[string]string `mapstructure:"regions"          validate:"required"`
	ExcludedRegions []string          `mapstructure:"excluded_regions"`
	DataDir         string            `mapstructure:"data_dir"         validate:"required"`
	DocsDir         string            `mapstructure:"docs_dir"         validate:"required"`
	MinAttempts     int               `mapstructure:"min_attempts"     validate:"required,min=1"`
	ChunkSize       int               `mapstructure:"chunk_size"       validate:"required,min=1"`
	Tolerance       float64           `mapstructure:"tolerance"        validate:"min=0,max=1"`
	Similarity      *SimilarityConfig `mapstructure:"similarity"`
	S3Mirror        *S3MirrorConfig   `mapstructure:"s3_mirror"`
	Logging         LoggingConfig     `mapstructure:"logging"`
}

const (
	AppLogLevel       string = "logging.level"
	ChunkSize         string = "chunk_size"
	DataDir           string = "data_dir"
	DocsDir           string = "docs_dir"
	EnvPrefix         string = "harvester"
	MinAttempts       string = "min_attempts"
	RankingBaseURL    string = "ranking_base_url"
	Regions           string = "regions"
	S3AccessKeyID     string = "s3_mirror.access_key_id"
	S3SecretAccessKey string = "s3_mirror.secret_access_key" // #nosec
	SiteBaseURL       string = "site_base_url"
	Tolerance         string = "tolerance"
	UseOTLP           string = "logging.use_otlp"
)

var configReady = false
var config Config

func GetConfig() (*Config, error) {
	if configReady {
		logger.Logger.Debug("returning already-loaded config")
		return &config, nil
	}
	logger.Logger.Info("loading config")

	v := viper.New()

	v.SetConfigName("harvester")

	v.AddConfigPath("/etc/harvester/")
	v.AddConfigPath(".")

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind secret-bearing env vars explicitly so they unmarshal into the
	// nested struct
	err := v.BindEnv(S3AccessKeyID)
	if err != nil {
		return nil, err
	}
	err = v.BindEnv(S3SecretAccessKey)
	if err != nil {
		return nil, err
	}

	v.SetDefault(RankingBaseURL, "https://leetcode.com/contest/api/ranking")
	v.SetDefault(SiteBaseURL, "https://leetcode.com")
	v.SetDefault(Regions, map[string]string{
		"US": "https://leetcode.com",
		"CN": "https://leetcode.cn",
	})
	v.SetDefault(DataDir, "data")
	v.SetDefault(DocsDir, "docs")
	// Historical runs used thresholds of 1 and 4; 4 keeps the code-fetch
	// cost down on big contests and is overridable per run.
	v.SetDefault(MinAttempts, 4)
	v.SetDefault(ChunkSize, 8)
	v.SetDefault(Tolerance, 0.95)

	v.SetDefault(AppLogLevel, 0)
	v.SetDefault(UseOTLP, false)

	err = v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		if _, ok := err.(*viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	valid := validator.Create()
	err = valid.Validate(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	configReady = true
	return &config, nil
}

// RegionExcluded reports whether attempts from region are dropped entirely.
func (c *Config) RegionExcluded(region string) bool {
	for _, r := range c.ExcludedRegions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

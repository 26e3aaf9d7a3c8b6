package conf

import (
	"log/slog"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig
	Storage StorageConfig
	Detect  DetectConfig
}

type AppConfig struct {
	Port   string
	DBPath string
}

type StorageConfig struct {
	// Root is the sandbox root all relative paths resolve against.
	Root string

	// ThumbMaxEdge is the target size of a thumbnail's longer edge.
	ThumbMaxEdge int
}

type DetectConfig struct {
	// MinAreaFrac is the confidence floor: a candidate quad must cover at
	// least this fraction of the image to be reported.
	MinAreaFrac float64
}

// LoadConfig reads configuration from the environment with an optional
// local .env file, falling back to defaults suitable for development.
func LoadConfig() *Config {
	v := viper.New()

	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_DB_PATH", "docscan.db")
	v.SetDefault("STORAGE_ROOT", "data")
	v.SetDefault("STORAGE_THUMB_MAX_EDGE", 240)
	v.SetDefault("DETECT_MIN_AREA_FRAC", 0.2)

	v.AutomaticEnv()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	c := &Config{}
	c.App.Port = v.GetString("APP_PORT")
	c.App.DBPath = v.GetString("APP_DB_PATH")
	c.Storage.Root = v.GetString("STORAGE_ROOT")
	c.Storage.ThumbMaxEdge = v.GetInt("STORAGE_THUMB_MAX_EDGE")
	c.Detect.MinAreaFrac = v.GetFloat64("DETECT_MIN_AREA_FRAC")

	slog.Info("Configuration loaded.", "storageRoot", c.Storage.Root, "dbPath", c.App.DBPath)
	return c
}

package pipeline

import "github.com/kelseyhightower/envconfig"

type Config struct {
	Storage struct {
		BasePath string `envconfig:"DEPOT_BASE_PATH" default:"depot-data"`
		// Locations is the ordered replication target list. Empty
		// means replicate within the base path only.
		Locations        []string `envconfig:"DEPOT_LOCATIONS"`
		MaxCapacityBytes int64    `envconfig:"DEPOT_MAX_CAPACITY_BYTES" default:"10995116277760"`
	}
	Chunks struct {
		Size int `envconfig:"DEPOT_CHUNK_SIZE" default:"4096"`
	}
	Compression struct {
		Algorithm string `envconfig:"DEPOT_COMPRESSION_ALGORITHM" default:"zstd"`
		Level     int    `envconfig:"DEPOT_COMPRESSION_LEVEL" default:"6"`
	}
	Replication struct {
		Factor int `envconfig:"DEPOT_REPLICATION_FACTOR" default:"2"`
	}
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

package dataset

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Source binds a dataset name to the file it is loaded from.
type Source struct {
	Name string
	Path string
}

// Config holds the dataset loading configuration.
type Config struct {
	Sources        []Source
	ReloadInterval time.Duration
	MaxConcurrency int64
}

// LoadConfig reads <NAME>_FILE for each dataset name, e.g. PASSWORDS_FILE. Datasets
// without a file are left unpublished until uploaded.
func LoadConfig(names []string) (*Config, error) {
	var sources []Source
	for _, name := range names {
		key := strings.ToUpper(name) + "_FILE"
		path := os.Getenv(key)
		if path == "" {
			logrus.Infof("%s not set. Dataset %s starts unavailable.", key, name)
			continue
		}
		sources = append(sources, Source{Name: name, Path: path})
	}

	reloadMinutes, err := strconv.Atoi(os.Getenv("DATASET_RELOAD_MINUTES"))
	if err != nil || reloadMinutes <= 0 {
		reloadMinutes = 5
		logrus.Infof("Invalid or missing DATASET_RELOAD_MINUTES. Defaulting to %d minutes.", reloadMinutes)
	}

	concurrency, err := strconv.ParseInt(os.Getenv("DATASET_LOAD_CONCURRENCY"), 10, 64)
	if err != nil || concurrency <= 0 {
		concurrency = 1
	}

	return &Config{
		Sources:        sources,
		ReloadInterval: time.Duration(reloadMinutes) * time.Minute,
		MaxConcurrency: concurrency,
	}, nil
}

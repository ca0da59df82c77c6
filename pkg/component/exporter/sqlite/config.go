package sqlitexporter

import "time"

type Config struct {
	Path            string
	BatchWait       time.Duration
	BatchEntriesNum int
}

func NewConfig() *Config {
	return &Config{
		Path:            "/tmp/rawtoevent/rawtoevent.db",
		BatchWait:       10 * time.Second,
		BatchEntriesNum: 1000,
	}
}

package config

type Config struct {
	Version bool `mapstructure:"version"`

	DECODE DECODE `skip:"true" mapstructure:",squash"`
}

type DECODE struct {
	LogLevel string `def:"info" desc:"log level: debug|info|warn|error" mapstructure:"log-level"`
	MaxBlock int    `def:"0" desc:"stop after this many 64KB trace blocks, 0 means no limit" mapstructure:"maxblock"`
	Verbose  bool   `def:"false" desc:"dump per-entry decode details" mapstructure:"verbose"`
	HexEvent bool   `def:"false" desc:"dump raw events in hex alongside the decoded stream" mapstructure:"hexevent"`
	KeepIdle bool   `def:"false" desc:"do not remap idle:* threads to pid 0" mapstructure:"keep-idle"`
	Output   string `def:"" desc:"output file for the event stream, stdout if empty" mapstructure:"output"`
	Exporter string `def:"" desc:"extra data exporter: sqlite" mapstructure:"exporter"`
	DbPath   string `def:"/tmp/rawtoevent/rawtoevent.db" desc:"sqlite database path for the sqlite exporter" mapstructure:"db-path"`
}

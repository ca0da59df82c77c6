package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

var (
	configPath   = "rawtoevent.yaml"
	ConfigGlobal *Config
)

type Config struct {
	Log struct {
		Path  string `yaml:"Path"`
		Level string `yaml:"Level"`
	} `yaml:"log"`
	Exporters []struct {
		Type string `yaml:"Type"`
		Path string `yaml:"Path,omitempty"`
	} `yaml:"exporters"`
}

var defaultConfig = Config{
	Log: struct {
		Path  string `yaml:"Path"`
		Level string `yaml:"Level"`
	}{
		Path:  "",
		Level: "INFO",
	},
	Exporters: []struct {
		Type string `yaml:"Type"`
		Path string `yaml:"Path,omitempty"`
	}{
		{Type: "exporter_text"},
	},
}

func NewConfig() *Config {
	return &Config{
		Log:       defaultConfig.Log,
		Exporters: defaultConfig.Exporters,
	}
}

func ConfigInit() error {
	ConfigGlobal = NewConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		data, err := yaml.Marshal(defaultConfig)
		if err != nil {
			return fmt.Errorf("yaml marshal failed:%v", err)
		}
		err = os.WriteFile(configPath, data, 0644)
		if err != nil {
			return fmt.Errorf("yaml write failed:%v", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("yaml read failed:%v", err)
		}
		err = yaml.Unmarshal(data, ConfigGlobal)
		if err != nil {
			return fmt.Errorf("yaml unmarshal failed:%v", err)
		}
	}
	return nil
}

func GetConfig() *Config {
	return ConfigGlobal
}

/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"os"

	"github.com/serialxfer/xfer/serialport"
	"github.com/serialxfer/xfer/xmodem"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"
)

var logLevels = map[string]log.Level{
	"debug":   log.DebugLevel,
	"info":    log.InfoLevel,
	"warning": log.WarnLevel,
	"error":   log.ErrorLevel,
}

// Config is the xfer configuration file
type Config struct {
	Device         string             `yaml:"device"`
	Serial         serialport.Options `yaml:"serial"`
	XModem         xmodem.Config      `yaml:"xmodem"`
	MonitoringPort int                `yaml:"monitoringport"`
	LogLevel       string             `yaml:"loglevel"`
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() *Config {
	return &Config{
		Device:   "/dev/ttyUSB0",
		Serial:   serialport.DefaultOptions(),
		XModem:   *xmodem.DefaultConfig(),
		LogLevel: "info",
	}
}

// Validate config is sane
func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("device must be specified")
	}
	if err := c.Serial.Validate(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	if err := c.XModem.Validate(); err != nil {
		return fmt.Errorf("xmodem: %w", err)
	}
	if c.MonitoringPort < 0 || c.MonitoringPort > 65535 {
		return fmt.Errorf("monitoringport must be between 0 and 65535")
	}
	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unsupported loglevel %q", c.LogLevel)
	}
	return nil
}

// ReadConfig reads config from the file, unset values keep their defaults
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	cData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(cData, c)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Overrides are config values given as CLI flags
type Overrides struct {
	Device          string
	Baud            int
	Variant         string
	Text            bool
	WriteDuplicates bool
	MonitoringPort  int
}

// overrideFlags lists the flags PrepareConfig knows about
var overrideFlags = []string{"device", "baud", "variant", "text", "write-duplicates", "monitoringport"}

func changedFlags(c *cobra.Command) map[string]bool {
	setFlags := make(map[string]bool)
	for _, name := range overrideFlags {
		if f := c.Flags().Lookup(name); f != nil && f.Changed {
			setFlags[name] = true
		}
	}
	return setFlags
}

// PrepareConfig reads the config file if given and applies the CLI flags that were set
func PrepareConfig(cfgPath string, o Overrides, setFlags map[string]bool) (*Config, error) {
	cfg := DefaultConfig()
	var err error
	warn := func(name string) {
		log.Warningf("overriding %s from CLI flag", name)
	}
	if cfgPath != "" {
		cfg, err = ReadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("reading config from %q: %w", cfgPath, err)
		}
	}
	if setFlags["device"] {
		warn("device")
		cfg.Device = o.Device
	}
	if setFlags["baud"] {
		warn("baud")
		cfg.Serial.BaudRate = o.Baud
	}
	if setFlags["variant"] {
		warn("variant")
		v, err := xmodem.ParseVariant(o.Variant)
		if err != nil {
			return nil, err
		}
		cfg.XModem.Variant = v
	}
	if setFlags["text"] {
		warn("text")
		cfg.XModem.TextMode = o.Text
	}
	if setFlags["write-duplicates"] {
		warn("write-duplicates")
		cfg.XModem.WriteDuplicates = o.WriteDuplicates
	}
	if setFlags["monitoringport"] {
		warn("monitoringport")
		cfg.MonitoringPort = o.MonitoringPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	log.Debugf("config: %+v", cfg)
	return cfg, nil
}

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

package xmodem

import (
	"fmt"
	"time"
)

// Config specifies transfer options and protocol timing
type Config struct {
	Variant  Variant `yaml:"variant"`
	TextMode bool    `yaml:"text_mode"`
	// Newline replaces CR/LF sequences in text mode on receive. Empty means host convention
	Newline string `yaml:"newline"`
	// WriteDuplicates writes the payload of a retransmitted, already acknowledged block again
	WriteDuplicates bool `yaml:"write_duplicates"`

	SenderConnectTimeout time.Duration `yaml:"sender_connect_timeout"` // how long the sender waits for the handshake
	AckTimeout           time.Duration `yaml:"ack_timeout"`            // rolling window for ACK/NAK after a block or EOT
	PollInterval         time.Duration `yaml:"poll_interval"`          // sleep between empty reads while waiting for ACK
	EOTPollInterval      time.Duration `yaml:"eot_poll_interval"`      // sleep between empty reads after EOT

	ConnectTimeout   time.Duration `yaml:"connect_timeout"`    // receiver wait per handshake attempt
	ConnectTimeout1K time.Duration `yaml:"connect_timeout_1k"` // receiver wait per 'C' handshake attempt
	ConnectRetries   int           `yaml:"connect_retries"`    // handshake retries before giving up
	FallbackAfter1K  int           `yaml:"fallback_after_1k"`  // failed 'C' attempts before falling back to checksum
	DataTimeout      time.Duration `yaml:"data_timeout"`       // receiver inactivity limit once data started
	ReadInterval     time.Duration `yaml:"read_interval"`      // sleep between empty reads on receive

	MaxRetries    int `yaml:"max_retries"`
	MaxDuplicates int `yaml:"max_duplicates"`
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() *Config {
	return &Config{
		Variant:              VariantChecksum,
		Newline:              NativeNewline(),
		SenderConnectTimeout: 60 * time.Second,
		AckTimeout:           60 * time.Second,
		PollInterval:         150 * time.Millisecond,
		EOTPollInterval:      1500 * time.Millisecond,
		ConnectTimeout:       10 * time.Second,
		ConnectTimeout1K:     3 * time.Second,
		ConnectRetries:       10,
		FallbackAfter1K:      3,
		DataTimeout:          time.Second,
		ReadInterval:         10 * time.Millisecond,
		MaxRetries:           10,
		MaxDuplicates:        10,
	}
}

// Validate config is sane
func (c *Config) Validate() error {
	if _, ok := variantToString[c.Variant]; !ok {
		return fmt.Errorf("unsupported variant %d", c.Variant)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"sender_connect_timeout", c.SenderConnectTimeout},
		{"ack_timeout", c.AckTimeout},
		{"poll_interval", c.PollInterval},
		{"eot_poll_interval", c.EOTPollInterval},
		{"connect_timeout", c.ConnectTimeout},
		{"connect_timeout_1k", c.ConnectTimeout1K},
		{"data_timeout", c.DataTimeout},
		{"read_interval", c.ReadInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be greater than zero", d.name)
		}
	}
	if c.ConnectRetries < 0 {
		return fmt.Errorf("connect_retries must be 0 or positive")
	}
	if c.FallbackAfter1K <= 0 {
		return fmt.Errorf("fallback_after_1k must be greater than zero")
	}
	if c.MaxRetries < 0 || c.MaxDuplicates < 0 {
		return fmt.Errorf("max_retries and max_duplicates must be 0 or positive")
	}
	return nil
}

func (c *Config) newline() string {
	if c.Newline == "" {
		return NativeNewline()
	}
	return c.Newline
}

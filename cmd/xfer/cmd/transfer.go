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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/serialxfer/xfer/serialport"
	"github.com/serialxfer/xfer/stats"
	"github.com/serialxfer/xfer/xmodem"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// flags shared by send and receive
var (
	transferOverrides Overrides
	transferDigest    bool
)

func addTransferFlags(c *cobra.Command) {
	defaults := DefaultConfig()
	c.Flags().StringVarP(&transferOverrides.Device, "device", "d", defaults.Device, "serial port device")
	c.Flags().IntVarP(&transferOverrides.Baud, "baud", "b", defaults.Serial.BaudRate, "baud rate")
	c.Flags().StringVarP(&transferOverrides.Variant, "variant", "m", defaults.XModem.Variant.String(), "xmodem variant: checksum, crc16 or 1k")
	c.Flags().BoolVarP(&transferOverrides.Text, "text", "t", false, "text mode, convert line endings")
	c.Flags().IntVar(&transferOverrides.MonitoringPort, "monitoringport", 0, "port to serve transfer stats on, 0 disables")
	c.Flags().BoolVar(&transferDigest, "digest", false, "print xxhash64 of the file")
}

type transferFunc func(ctx context.Context, p xmodem.Port, path string, c *xmodem.Config, st stats.Stats, progress xmodem.ProgressFunc) (*xmodem.Result, error)

func runTransfer(c *cobra.Command, direction, path string, do transferFunc) error {
	cfg, err := PrepareConfig(rootConfigFlag, transferOverrides, changedFlags(c))
	if err != nil {
		return err
	}
	ConfigureVerbosity(cfg)

	st := stats.NewJSONStats()
	if cfg.MonitoringPort != 0 {
		go st.Start(cfg.MonitoringPort)
	}

	port, err := serialport.Open(cfg.Device, cfg.Serial)
	if err != nil {
		return err
	}
	defer port.Close()

	var size int64 = -1
	if fi, err := os.Stat(path); err == nil && direction == "send" {
		size = fi.Size()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(infoString, fmt.Sprintf("%s %s over %s (%s, text mode %v), waiting for the other side...",
		direction, path, cfg.Device, cfg.XModem.Variant, cfg.XModem.TextMode))
	progress := func(blocks int, bytes int64) {
		if size >= 0 {
			progressLine("Block %d, bytes %d/%d", blocks, bytes, size)
			return
		}
		progressLine("Block %d, bytes %d", blocks, bytes)
	}

	res, err := do(ctx, port, path, &cfg.XModem, st, progress)
	fmt.Println()
	st.Snapshot()
	if err != nil {
		fmt.Println(failString, err)
		if perr := printCounters(os.Stdout, st.Values(), "xmodem."); perr != nil {
			log.Errorf("printing counters: %v", perr)
		}
		return fmt.Errorf("%s failed", direction)
	}
	fmt.Println(okString, fmt.Sprintf("%s completed", direction))

	digest := ""
	if transferDigest {
		sum, err := fileDigest(path)
		if err != nil {
			fmt.Println(warnString, err)
		} else {
			digest = fmt.Sprintf("%016x", sum)
		}
	}
	if err := printResult(os.Stdout, direction, path, res, digest); err != nil {
		return err
	}
	return printCounters(os.Stdout, st.Values(), "xmodem.")
}

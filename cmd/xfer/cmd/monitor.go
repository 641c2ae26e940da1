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
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/serialxfer/xfer/dispatch"
	"github.com/serialxfer/xfer/serialport"
	"github.com/serialxfer/xfer/stats"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	monitorOverrides Overrides
	monitorDuration  time.Duration
	monitorInterval  time.Duration
	monitorMask      []string
)

func init() {
	RootCmd.AddCommand(monitorCmd)
	defaults := DefaultConfig()
	monitorCmd.Flags().StringVarP(&monitorOverrides.Device, "device", "d", defaults.Device, "serial port device")
	monitorCmd.Flags().IntVarP(&monitorOverrides.Baud, "baud", "b", defaults.Serial.BaudRate, "baud rate")
	monitorCmd.Flags().IntVar(&monitorOverrides.MonitoringPort, "monitoringport", 0, "port to serve looper stats on, 0 disables")
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 0, "stop after this long, 0 runs until interrupted")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", serialport.DefaultPollInterval, "modem status sampling interval")
	monitorCmd.Flags().StringSliceVar(&monitorMask, "lines", []string{"cts", "dsr", "dcd", "ri"}, "status lines to report")
}

var lineNames = map[string]dispatch.Lines{
	"cts": dispatch.LineCTS,
	"dsr": dispatch.LineDSR,
	"dcd": dispatch.LineDCD,
	"ri":  dispatch.LineRI,
}

func parseLines(names []string) (dispatch.Lines, error) {
	var m dispatch.Lines
	for _, n := range names {
		l, ok := lineNames[n]
		if !ok {
			return 0, fmt.Errorf("unknown status line %q", n)
		}
		m |= l
	}
	return m, nil
}

// printer writes inbound traffic and line changes as they arrive
type printer struct {
	sync.Mutex
	w     io.Writer
	bytes int64
	errs  int
	lines dispatch.Lines
	seen  map[dispatch.Lines]int
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, seen: make(map[dispatch.Lines]int)}
}

func (p *printer) OnData(b []byte) {
	p.Lock()
	defer p.Unlock()
	p.bytes += int64(len(b))
	fmt.Fprintf(p.w, "%s %q\n", color.CyanString("[RX]"), b)
}

func (p *printer) OnDataError(err error) {
	p.Lock()
	defer p.Unlock()
	p.errs++
	fmt.Fprintln(p.w, failString, err)
}

func (p *printer) OnLineEvent(ev dispatch.LineEvent) {
	p.Lock()
	defer p.Unlock()
	p.lines = ev.New
	for l := dispatch.LineCTS; l <= dispatch.LineRI; l <<= 1 {
		if ev.Changed()&l != 0 {
			p.seen[l]++
		}
	}
	fmt.Fprintln(p.w, color.YellowString("[LINE]"), ev)
}

// summary prints the line table of what was observed
func (p *printer) summary(w io.Writer) error {
	p.Lock()
	defer p.Unlock()
	table := tablewriter.NewWriter(w)
	table.Header("line", "state", "changes")
	for l := dispatch.LineCTS; l <= dispatch.LineRI; l <<= 1 {
		state := "off"
		if p.lines&l != 0 {
			state = "on"
		}
		if err := table.Append([]string{l.String(), state, fmt.Sprintf("%d", p.seen[l])}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(w, "received %d bytes, %d read errors\n", p.bytes, p.errs)
	return nil
}

func monitorRun(ctx context.Context, cfg *Config, mask dispatch.Lines) error {
	st := stats.NewJSONStats()
	sub := serialport.NewSubsystem(dispatch.NewDispatcher(st))
	defer func() {
		if err := sub.Close(); err != nil {
			log.Errorf("closing ports: %v", err)
		}
	}()

	h, _, err := sub.Open(cfg.Device, cfg.Serial)
	if err != nil {
		return err
	}
	d := sub.Dispatcher()
	p := newPrinter(os.Stdout)
	if err := d.SetEventMask(h, mask); err != nil {
		return err
	}
	if err := d.RegisterDataListener(h, p); err != nil {
		return err
	}
	if err := d.RegisterEventListener(h, p); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	if cfg.MonitoringPort != 0 {
		go st.Start(cfg.MonitoringPort)
	}
	if err := sub.StartPolling(ctx, h, monitorInterval); err != nil {
		return err
	}
	fmt.Println(infoString, "monitoring", cfg.Device, "press Ctrl-C to stop")
	eg.Go(func() error {
		<-ctx.Done()
		sub.StopPolling(h)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := d.UnregisterDataListener(h); err != nil {
		return err
	}
	if err := d.UnregisterEventListener(h); err != nil {
		return err
	}
	if err := p.summary(os.Stdout); err != nil {
		return err
	}
	st.Snapshot()
	return printCounters(os.Stdout, st.Values(), "looper.")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print inbound data and modem status line changes of a serial port",
	Run: func(c *cobra.Command, _ []string) {
		cfg, err := PrepareConfig(rootConfigFlag, monitorOverrides, changedFlags(c))
		if err != nil {
			log.Fatal(err)
		}
		ConfigureVerbosity(cfg)
		mask, err := parseLines(monitorMask)
		if err != nil {
			log.Fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if monitorDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, monitorDuration)
			defer cancel()
		}
		if err := monitorRun(ctx, cfg, mask); err != nil {
			log.Fatal(err)
		}
	},
}

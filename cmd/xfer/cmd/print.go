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
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/serialxfer/xfer/xmodem"
	"golang.org/x/term"
)

var okString = color.GreenString("[OK]")
var infoString = color.GreenString("[INFO]")
var warnString = color.YellowString("[WARN]")
var failString = color.RedString("[FAIL]")

func progressLine(format string, args ...interface{}) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	fmt.Printf("\u001b[1000D")
	fmt.Printf(format, args...)
}

// fileDigest returns xxhash64 of the file at path
func fileDigest(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum64(), nil
}

func printResult(w io.Writer, direction, path string, res *xmodem.Result, digest string) error {
	table := tablewriter.NewWriter(w)
	table.Header("direction", "file", "variant", "blocks", "bytes", "duration", "rate", "xxhash")
	rate := "-"
	if secs := res.Duration.Seconds(); secs > 0 {
		rate = fmt.Sprintf("%.0f B/s", float64(res.Bytes)/secs)
	}
	if err := table.Append([]string{
		direction,
		path,
		res.Variant.String(),
		fmt.Sprintf("%d", res.Blocks),
		fmt.Sprintf("%d", res.Bytes),
		res.Duration.Round(time.Millisecond).String(),
		rate,
		digest,
	}); err != nil {
		return err
	}
	return table.Render()
}

// printCounters prints non-zero counters whose name starts with prefix
func printCounters(w io.Writer, values map[string]int64, prefix string) error {
	keys := []string{}
	for k, v := range values {
		if strings.HasPrefix(k, prefix) && v != 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.Header("counter", "value")
	for _, k := range keys {
		if err := table.Append([]string{k, fmt.Sprintf("%d", values[k])}); err != nil {
			return err
		}
	}
	return table.Render()
}

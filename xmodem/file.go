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
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/serialxfer/xfer/stats"
)

// SendFile sends the file at path. The file is closed on every exit path
func SendFile(ctx context.Context, p Port, path string, c *Config, st stats.Stats, progress ProgressFunc) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open source file: %w", err)
	}
	defer f.Close()

	s := NewSender(p, c, st)
	s.Progress = progress
	return s.Send(ctx, bufio.NewReader(f))
}

// ReceiveFile receives into a file created at path. The file is flushed
// and closed on every exit path
func ReceiveFile(ctx context.Context, p Port, path string, c *Config, st stats.Stats, progress ProgressFunc) (res *Result, err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create destination file: %w", err)
	}
	w := bufio.NewWriter(f)
	defer func() {
		if ferr := w.Flush(); err == nil && ferr != nil {
			err = fmt.Errorf("flushing destination file: %w", ferr)
		}
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing destination file: %w", cerr)
		}
	}()

	r := NewReceiver(p, c, st)
	r.Progress = progress
	return r.Receive(ctx, w)
}

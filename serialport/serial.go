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

/*
Package serialport opens serial devices for xmodem sessions and feeds
their inbound traffic to a dispatch.Dispatcher.
*/
package serialport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/serialxfer/xfer/dispatch"
	"go.bug.st/serial"
)

// Device is the part of serial.Port we use
type Device interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	ResetOutputBuffer() error
	SetReadTimeout(t time.Duration) error
	GetModemStatusBits() (*serial.ModemStatusBits, error)
	Close() error
}

// OpenFunc opens a device with the given line settings
type OpenFunc func(name string, mode *serial.Mode) (Device, error)

func openSerial(name string, mode *serial.Mode) (Device, error) {
	return serial.Open(name, mode)
}

// Options are the line settings of a device
type Options struct {
	BaudRate    int           `yaml:"baud"`
	DataBits    int           `yaml:"data_bits"`
	Parity      string        `yaml:"parity"`
	StopBits    string        `yaml:"stop_bits"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DefaultOptions returns 115200 8N1 with a short read timeout
func DefaultOptions() Options {
	return Options{
		BaudRate:    115200,
		DataBits:    8,
		Parity:      "none",
		StopBits:    "1",
		ReadTimeout: 10 * time.Millisecond,
	}
}

var parities = map[string]serial.Parity{
	"none":  serial.NoParity,
	"odd":   serial.OddParity,
	"even":  serial.EvenParity,
	"mark":  serial.MarkParity,
	"space": serial.SpaceParity,
}

var stopBits = map[string]serial.StopBits{
	"1":   serial.OneStopBit,
	"1.5": serial.OnePointFiveStopBits,
	"2":   serial.TwoStopBits,
}

// Validate options are sane
func (o Options) Validate() error {
	_, err := o.Mode()
	return err
}

// Mode converts the options to a serial.Mode
func (o Options) Mode() (*serial.Mode, error) {
	if o.BaudRate <= 0 {
		return nil, fmt.Errorf("baud rate must be greater than zero")
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return nil, fmt.Errorf("data bits must be between 5 and 8, got %d", o.DataBits)
	}
	parity, ok := parities[o.Parity]
	if !ok {
		return nil, fmt.Errorf("unsupported parity %q", o.Parity)
	}
	stop, ok := stopBits[o.StopBits]
	if !ok {
		return nil, fmt.Errorf("unsupported stop bits %q", o.StopBits)
	}
	if o.ReadTimeout <= 0 {
		return nil, fmt.Errorf("read timeout must be greater than zero")
	}
	return &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: o.DataBits,
		Parity:   parity,
		StopBits: stop,
	}, nil
}

// ListPorts returns the names of the serial devices present on the system
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, wrapError("listing", "serial ports", err)
	}
	return ports, nil
}

// Port is an open serial device. It implements xmodem.Port
type Port struct {
	name string
	dev  Device
}

// Open opens the device name with options o
func Open(name string, o Options) (*Port, error) {
	return open(openSerial, name, o)
}

func open(openFn OpenFunc, name string, o Options) (*Port, error) {
	mode, err := o.Mode()
	if err != nil {
		return nil, err
	}
	dev, err := openFn(name, mode)
	if err != nil {
		return nil, wrapError("opening", name, err)
	}
	// reads must return after a short while for the polling sessions
	if err := dev.SetReadTimeout(o.ReadTimeout); err != nil {
		dev.Close()
		return nil, wrapError("setting read timeout on", name, err)
	}
	return &Port{name: name, dev: dev}, nil
}

// Name of the device
func (p *Port) Name() string {
	return p.name
}

// Read returns what arrived within the read timeout, possibly nothing
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.dev.Read(b)
	if err != nil {
		return n, wrapError("reading", p.name, err)
	}
	return n, nil
}

// Write sends b to the device
func (p *Port) Write(b []byte) (int, error) {
	n, err := p.dev.Write(b)
	if err != nil {
		return n, wrapError("writing", p.name, err)
	}
	return n, nil
}

// ClearBuffers discards pending input and/or output
func (p *Port) ClearBuffers(rx, tx bool) error {
	if rx {
		if err := p.dev.ResetInputBuffer(); err != nil {
			return wrapError("clearing input of", p.name, err)
		}
	}
	if tx {
		if err := p.dev.ResetOutputBuffer(); err != nil {
			return wrapError("clearing output of", p.name, err)
		}
	}
	return nil
}

// Lines samples the modem status lines
func (p *Port) Lines() (dispatch.Lines, error) {
	bits, err := p.dev.GetModemStatusBits()
	if err != nil {
		return 0, wrapError("reading modem status of", p.name, err)
	}
	return linesFromBits(bits), nil
}

// Close the device
func (p *Port) Close() error {
	if err := p.dev.Close(); err != nil {
		return wrapError("closing", p.name, err)
	}
	return nil
}

func linesFromBits(bits *serial.ModemStatusBits) dispatch.Lines {
	var l dispatch.Lines
	if bits == nil {
		return l
	}
	if bits.CTS {
		l |= dispatch.LineCTS
	}
	if bits.DSR {
		l |= dispatch.LineDSR
	}
	if bits.DCD {
		l |= dispatch.LineDCD
	}
	if bits.RI {
		l |= dispatch.LineRI
	}
	return l
}

var portErrorText = map[serial.PortErrorCode]string{
	serial.PortBusy:               "port busy",
	serial.PortNotFound:           "port not found",
	serial.InvalidSerialPort:      "not a serial port",
	serial.PermissionDenied:       "permission denied",
	serial.InvalidSpeed:           "invalid baud rate",
	serial.InvalidDataBits:        "invalid data bits",
	serial.InvalidParity:          "invalid parity",
	serial.InvalidStopBits:        "invalid stop bits",
	serial.InvalidTimeoutValue:    "invalid timeout",
	serial.ErrorEnumeratingPorts:  "cannot enumerate ports",
	serial.PortClosed:             "port closed",
	serial.FunctionNotImplemented: "not supported on this platform",
}

// portErrorCode extracts the code of a serial.PortError, returned by value or pointer
func portErrorCode(err error) (serial.PortErrorCode, bool) {
	var pp *serial.PortError
	if errors.As(err, &pp) && pp != nil {
		return pp.Code(), true
	}
	var pv serial.PortError
	if errors.As(err, &pv) {
		return pv.Code(), true
	}
	return 0, false
}

func wrapError(op, name string, err error) error {
	if code, ok := portErrorCode(err); ok {
		if text, ok := portErrorText[code]; ok {
			return fmt.Errorf("%s %s: %s: %w", op, name, text, err)
		}
	}
	return fmt.Errorf("%s %s: %w", op, name, err)
}

// closedError reports whether err means the device is gone
func closedError(err error) bool {
	if code, ok := portErrorCode(err); ok {
		return code == serial.PortClosed || code == serial.PortNotFound || code == serial.InvalidSerialPort
	}
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)
}

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
	"errors"
	"fmt"
)

// Timeout classes
var (
	ErrConnectTimeout = errors.New("connect timeout")
	ErrAckTimeout     = errors.New("ack timeout")
	ErrDataTimeout    = errors.New("data timeout")
)

// Session errors. All of them are terminal for the session
var (
	// ErrReceiverConnectTimeout is returned by the sender when nobody asked for the transfer
	ErrReceiverConnectTimeout = fmt.Errorf("%w: receiver did not request the transfer", ErrConnectTimeout)
	// ErrTransmitterConnectTimeout is returned by the receiver when no block arrived
	ErrTransmitterConnectTimeout = fmt.Errorf("%w: transmitter did not start sending", ErrConnectTimeout)
	// ErrEOTAckTimeout is returned when EOT was never acknowledged
	ErrEOTAckTimeout = fmt.Errorf("%w: EOT was not acknowledged", ErrAckTimeout)
	// ErrReceiverDataTimeout is returned when the sender stalls in the middle of the transfer
	ErrReceiverDataTimeout = fmt.Errorf("%w: transmitter stopped sending", ErrDataTimeout)

	ErrMaxRetriesReached   = errors.New("maximum number of retries reached")
	ErrMaxDuplicateRetries = errors.New("maximum number of duplicate blocks reached")
	ErrProtocol            = errors.New("protocol error")
	ErrAborted             = errors.New("transfer aborted")
)

func protocolError(b byte) error {
	return fmt.Errorf("%w: unexpected byte 0x%02x", ErrProtocol, b)
}

// abortedError keeps both ErrAborted and the cause visible to errors.Is
type abortedError struct {
	cause error
}

func (e *abortedError) Error() string {
	return fmt.Sprintf("%v: %v", ErrAborted, e.cause)
}

func (e *abortedError) Unwrap() []error {
	return []error{ErrAborted, e.cause}
}

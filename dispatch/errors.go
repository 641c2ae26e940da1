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

package dispatch

import "errors"

// Errors returned synchronously by the Dispatcher
var (
	ErrUnknownHandle         = errors.New("unknown port handle")
	ErrHandleExists          = errors.New("port handle already registered")
	ErrListenerAlreadyExists = errors.New("listener already registered for this handle")
	ErrListenerNotRegistered = errors.New("no listener registered for this handle")
	ErrHandleBusy            = errors.New("port handle still has listeners")
	ErrNilListener           = errors.New("listener is nil")
	ErrInvalidEventMask      = errors.New("event mask has unsupported bits")
)

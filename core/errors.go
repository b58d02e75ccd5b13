//  Copyright (C) 2021-2023 Chronicle Labs, Inc.
//
//  This program is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Affero General Public License as
//  published by the Free Software Foundation, either version 3 of the
//  License, or (at your option) any later version.
//
//  This program is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Affero General Public License for more details.
//
//  You should have received a copy of the GNU Affero General Public License
//  along with this program.  If not, see <http://www.gnu.org/licenses/>.

package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse is wrapped in a TransportError when a node answers
	// with neither a result nor an error.
	ErrMalformedResponse = errors.New("response has neither result nor error")

	// ErrTransactionTimeout is returned when a submitted transaction is not
	// seen in any block within the confirmation window.
	ErrTransactionTimeout = errors.New("transaction was not included in a block in time")

	// ErrNodesExhausted is returned when the configured rotation ceiling is reached.
	ErrNodesExhausted = errors.New("maximum node rotations reached")

	ErrBlockNotFound = errors.New("block not found")
)

// TransportError is a failure to get a well-formed response from a node:
// the node is unreachable or its reply can not be parsed.
// It is the only error that makes the Provider switch nodes.
type TransportError struct {
	Node string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is a well-formed error response. It is never retried.
type RemoteError struct {
	Node    string
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed on node %s: %s", e.Method, e.Node, e.Message)
}

func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

func IsRemoteError(err error) bool {
	var e *RemoteError
	return errors.As(err, &e)
}

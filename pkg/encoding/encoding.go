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

// Package encoding converts raw byte sequences to and from their hex,
// Base58 and Base64 text forms.
package encoding

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/defiweb/go-eth/hexutil"
)

// Base58Alphabet is the Bitcoin Base58 alphabet.
const Base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ErrFormat is returned for text that is not a valid encoding of any byte sequence.
var ErrFormat = errors.New("invalid format")

// BytesToHex returns the "0x" prefixed lowercase hex form of b.
func BytesToHex(b []byte) string {
	return hexutil.BytesToHex(b)
}

// HexToBytes decodes a hex string, optionally prefixed with "0x".
// Unlike hexutil it rejects odd-length input instead of padding it.
func HexToBytes(h string) ([]byte, error) {
	s := h
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length hex string %q", ErrFormat, h)
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return nil, fmt.Errorf("%w: invalid hex character %q at position %d", ErrFormat, s[i], i)
		}
	}
	if len(s) == 0 {
		return []byte{}, nil
	}
	b, err := hexutil.HexToBytes("0x" + s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return b, nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Base58Encode encodes b with the Bitcoin alphabet. Leading zero bytes become
// leading '1' characters.
func Base58Encode(b []byte) string {
	return base58.Encode(b)
}

// Base58Decode decodes s. base58.Decode signals bad input with an empty
// result, so the alphabet is checked here first to tell it apart from "".
func Base58Decode(s string) ([]byte, error) {
	if i := strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune(Base58Alphabet, r)
	}); i >= 0 {
		return nil, fmt.Errorf("%w: invalid base58 character %q at position %d", ErrFormat, s[i], i)
	}
	return base58.Decode(s), nil
}

// Base64Encode returns the unpadded URL-safe Base64 form of b, which is what
// nodes use for bytes fields.
func Base64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Base64Decode accepts both padded and unpadded URL-safe input. The decoder
// skips newlines, so the alphabet is checked here first.
func Base64Decode(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	for i := 0; i < len(s); i++ {
		if !isBase64URLChar(s[i]) {
			return nil, fmt.Errorf("%w: invalid base64 character %q at position %d", ErrFormat, s[i], i)
		}
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return b, nil
}

func isBase64URLChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

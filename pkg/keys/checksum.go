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

package keys

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/chronicleprotocol/koinos-client/pkg/encoding"
)

// Kind is the payload kind of a checksummed buffer.
type Kind int

const (
	// KindPublic is a 20 byte public key hash (an address).
	KindPublic Kind = iota
	// KindPrivate is a 32 byte private key.
	KindPrivate
)

func (k Kind) String() string {
	switch k {
	case KindPublic:
		return "public"
	case KindPrivate:
		return "private"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

const (
	PublicVersion  byte = 0x00
	PrivateVersion byte = 0x80

	PublicPayloadLen  = 20
	PrivatePayloadLen = 32

	compressedFlag byte = 0x01
	checksumLen         = 4
)

// Encoded buffer lengths: version + payload [+ flag] + checksum.
const (
	publicBufferLen             = 1 + PublicPayloadLen + checksumLen
	privateBufferLen            = 1 + PrivatePayloadLen + checksumLen
	privateCompressedBufferLen  = privateBufferLen + 1
	privateCompressedPayloadEnd = 1 + PrivatePayloadLen
)

var (
	ErrChecksum = errors.New("checksum mismatch")
	ErrVersion  = errors.New("unexpected version byte")
)

// Decoded is the content of a checksummed string.
type Decoded struct {
	Payload    []byte
	Kind       Kind
	Compressed bool
}

func (k Kind) version() byte {
	if k == KindPrivate {
		return PrivateVersion
	}
	return PublicVersion
}

// EncodeChecksummed builds [version][payload][flag?][checksum] and returns it
// Base58 encoded. The compression flag is only valid for private keys.
func EncodeChecksummed(payload []byte, kind Kind, compressed bool) (string, error) {
	switch kind {
	case KindPublic:
		if len(payload) != PublicPayloadLen {
			return "", fmt.Errorf("%w: public payload must be %d bytes, got %d", encoding.ErrFormat, PublicPayloadLen, len(payload))
		}
		if compressed {
			return "", fmt.Errorf("%w: compression flag is not defined for public payloads", encoding.ErrFormat)
		}
	case KindPrivate:
		if len(payload) != PrivatePayloadLen {
			return "", fmt.Errorf("%w: private payload must be %d bytes, got %d", encoding.ErrFormat, PrivatePayloadLen, len(payload))
		}
	default:
		return "", fmt.Errorf("unknown payload kind %v", kind)
	}
	return encodeChecksummed(payload, kind, compressed), nil
}

func encodeChecksummed(payload []byte, kind Kind, compressed bool) string {
	body := make([]byte, 0, len(payload)+1)
	body = append(body, payload...)
	if compressed {
		body = append(body, compressedFlag)
	}
	// CheckEncode prepends the version and appends the double SHA-256 checksum.
	return base58.CheckEncode(body, kind.version())
}

// DecodeChecksummed reverses EncodeChecksummed. The kind and compression are
// taken from the buffer length, then the checksum and the version byte are
// verified before the payload is returned.
func DecodeChecksummed(text string) (*Decoded, error) {
	raw, err := encoding.Base58Decode(text)
	if err != nil {
		return nil, err
	}

	var d Decoded
	switch len(raw) {
	case publicBufferLen:
		d.Kind = KindPublic
	case privateBufferLen:
		d.Kind = KindPrivate
	case privateCompressedBufferLen:
		d.Kind = KindPrivate
		d.Compressed = true
	default:
		return nil, fmt.Errorf("%w: unexpected checksummed buffer length %d", encoding.ErrFormat, len(raw))
	}

	body, version, err := base58.CheckDecode(text)
	if err != nil {
		if errors.Is(err, base58.ErrChecksum) {
			return nil, fmt.Errorf("%w: %s", ErrChecksum, text)
		}
		return nil, fmt.Errorf("%w: %v", encoding.ErrFormat, err)
	}
	if version != d.Kind.version() {
		return nil, fmt.Errorf("%w: got 0x%02x, expected 0x%02x for %s payload", ErrVersion, version, d.Kind.version(), d.Kind)
	}

	if d.Compressed {
		if raw[privateCompressedPayloadEnd] != compressedFlag {
			return nil, fmt.Errorf("%w: invalid compression flag 0x%02x", encoding.ErrFormat, raw[privateCompressedPayloadEnd])
		}
		body = body[:PrivatePayloadLen]
	}
	d.Payload = body
	return &d, nil
}

// decodeKind decodes text and requires the payload to be of the given kind.
func decodeKind(text string, kind Kind) (*Decoded, error) {
	d, err := DecodeChecksummed(text)
	if err != nil {
		return nil, err
	}
	if d.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s payload, got %s", ErrVersion, kind, d.Kind)
	}
	return d, nil
}

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

// Package keys renders keys and addresses in their Base58Check text forms.
package keys

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/chronicleprotocol/koinos-client/pkg/encoding"
)

// DeriveAddress returns the address of a serialized public key:
// Base58Check(0x00, RIPEMD160(SHA256(publicKey))).
func DeriveAddress(publicKey []byte) string {
	return encodeChecksummed(btcutil.Hash160(publicKey), KindPublic, false)
}

// AddressToHash returns the 20 byte hash an address encodes.
func AddressToHash(address string) ([]byte, error) {
	d, err := decodeKind(address, KindPublic)
	if err != nil {
		return nil, err
	}
	return d.Payload, nil
}

// IsValidAddress reports whether address decodes to a public payload with a valid checksum.
func IsValidAddress(address string) bool {
	_, err := AddressToHash(address)
	return err == nil
}

// PrivateKeyToWIF returns the wallet import format of a 32 byte private key.
func PrivateKeyToWIF(privateKey []byte, compressed bool) (string, error) {
	return EncodeChecksummed(privateKey, KindPrivate, compressed)
}

// WIFToPrivateKey returns the private key encoded in wif and whether it is
// marked as the compressed variant.
func WIFToPrivateKey(wif string) ([]byte, bool, error) {
	d, err := decodeKind(wif, KindPrivate)
	if err != nil {
		return nil, false, err
	}
	return d.Payload, d.Compressed, nil
}

// PublicKey serializes the secp256k1 public key of privateKey, 33 bytes when
// compressed and 65 bytes otherwise.
func PublicKey(privateKey []byte, compressed bool) ([]byte, error) {
	if len(privateKey) != PrivatePayloadLen {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", encoding.ErrFormat, PrivatePayloadLen, len(privateKey))
	}
	key := secp256k1.PrivKeyFromBytes(privateKey)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("%w: private key is zero modulo the curve order", encoding.ErrFormat)
	}
	if compressed {
		return key.PubKey().SerializeCompressed(), nil
	}
	return key.PubKey().SerializeUncompressed(), nil
}

// AddressFromPrivateKey derives the address of the public key of privateKey.
func AddressFromPrivateKey(privateKey []byte, compressed bool) (string, error) {
	pub, err := PublicKey(privateKey, compressed)
	if err != nil {
		return "", err
	}
	return DeriveAddress(pub), nil
}

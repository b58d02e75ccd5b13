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
	"fmt"
	"strconv"
)

// RPC method names.
const (
	MethodGetAccountNonce     = "chain.get_account_nonce"
	MethodGetAccountRc        = "chain.get_account_rc"
	MethodGetHeadInfo         = "chain.get_head_info"
	MethodSubmitTransaction   = "chain.submit_transaction"
	MethodReadContract        = "chain.read_contract"
	MethodGetBlocksByHeight   = "block_store.get_blocks_by_height"
	MethodGetBlocksByID       = "block_store.get_blocks_by_id"
	MethodGetTransactionsByID = "transaction_store.get_transactions_by_id"
)

// Uint64 is encoded as a decimal JSON string, the way nodes render 64 bit
// integers. Plain JSON numbers are accepted when decoding.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *Uint64) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	if s == "" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 value %s: %w", b, err)
	}
	*u = Uint64(v)
	return nil
}

type BlockTopology struct {
	ID       string `json:"id"`
	Height   Uint64 `json:"height"`
	Previous string `json:"previous"`
}

type HeadInfo struct {
	HeadTopology           BlockTopology `json:"head_topology"`
	LastIrreversibleHeight Uint64        `json:"last_irreversible_height"`
}

// BlockItem is a block as returned by the block store. Block and receipt
// bodies are kept in their JSON form.
type BlockItem struct {
	BlockID      string          `json:"block_id"`
	BlockHeight  Uint64          `json:"block_height"`
	Block        json.RawMessage `json:"block,omitempty"`
	BlockReceipt json.RawMessage `json:"block_receipt,omitempty"`
}

// Transaction is a signed transaction ready for submission. Only the id is
// interpreted here.
type Transaction struct {
	ID         string          `json:"id"`
	Header     json.RawMessage `json:"header,omitempty"`
	Operations json.RawMessage `json:"operations,omitempty"`
	Signatures []string        `json:"signatures,omitempty"`
}

// TransactionItem is an entry of the transaction store.
type TransactionItem struct {
	Transaction      json.RawMessage `json:"transaction,omitempty"`
	ContainingBlocks []string        `json:"containing_blocks,omitempty"`
}

// CallContractOperation is the encoded call passed to chain.read_contract.
type CallContractOperation struct {
	ContractID string `json:"contract_id"`
	EntryPoint uint32 `json:"entry_point"`
	Args       string `json:"args"`
}

type ReadContractResult struct {
	Result string `json:"result"`
	Logs   string `json:"logs"`
}

type accountRequest struct {
	Account string `json:"account"`
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

type rcResponse struct {
	Rc string `json:"rc"`
}

type GetBlocksByHeightRequest struct {
	HeadBlockID         string `json:"head_block_id"`
	AncestorStartHeight uint64 `json:"ancestor_start_height"`
	NumBlocks           uint32 `json:"num_blocks"`
	ReturnBlock         bool   `json:"return_block"`
	ReturnReceipt       bool   `json:"return_receipt"`
}

type GetBlocksByIDRequest struct {
	BlockIDs      []string `json:"block_id"`
	ReturnBlock   bool     `json:"return_block"`
	ReturnReceipt bool     `json:"return_receipt"`
}

type GetBlocksResponse struct {
	BlockItems []BlockItem `json:"block_items"`
}

type GetTransactionsByIDRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
}

type GetTransactionsByIDResponse struct {
	Transactions []TransactionItem `json:"transactions"`
}

type SubmitTransactionRequest struct {
	Transaction *Transaction `json:"transaction"`
}

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

// Package devnode is an in-memory node that answers the JSON-RPC methods
// used by the provider. It keeps a single linear chain, account nonces and
// resource credits, canned contract results, and includes submitted
// transactions in a new block after they have been polled a configurable
// number of times.
package devnode

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	logger "github.com/sirupsen/logrus"

	"github.com/chronicleprotocol/koinos-client/core"
	"github.com/chronicleprotocol/koinos-client/pkg/encoding"
)

type Options struct {
	// InclusionDelay is the number of transaction store lookups a submitted
	// transaction stays invisible for before it is put in a block.
	InclusionDelay int
}

type pendingTx struct {
	tx    *core.Transaction
	polls int
}

// Node is safe for concurrent use.
type Node struct {
	opts   Options
	bridge jhttp.Bridge

	mu        sync.Mutex
	blocks    []core.BlockItem
	byID      map[string]int
	nonces    map[string]uint64
	rc        map[string]string
	contracts map[string]core.ReadContractResult
	pending   map[string]*pendingTx
	included  map[string]string
	txs       map[string]*core.Transaction
	failures  map[string][]string
}

type accountRequest struct {
	Account string `json:"account"`
}

type nonceResponse struct {
	Nonce string `json:"nonce,omitempty"`
}

type rcResponse struct {
	Rc string `json:"rc,omitempty"`
}

type emptyRequest struct{}

type submitResponse struct{}

// New creates a node holding only a genesis block at height 1.
func New(opts Options) *Node {
	n := &Node{
		opts:      opts,
		byID:      make(map[string]int),
		nonces:    make(map[string]uint64),
		rc:        make(map[string]string),
		contracts: make(map[string]core.ReadContractResult),
		pending:   make(map[string]*pendingTx),
		included:  make(map[string]string),
		txs:       make(map[string]*core.Transaction),
		failures:  make(map[string][]string),
	}
	n.ProduceBlock()

	n.bridge = jhttp.NewBridge(handler.Map{
		core.MethodGetAccountNonce:     handler.New(n.getAccountNonce),
		core.MethodGetAccountRc:        handler.New(n.getAccountRc),
		core.MethodGetHeadInfo:         handler.New(n.getHeadInfo),
		core.MethodSubmitTransaction:   handler.New(n.submitTransaction),
		core.MethodReadContract:        handler.New(n.readContract),
		core.MethodGetBlocksByHeight:   handler.New(n.getBlocksByHeight),
		core.MethodGetBlocksByID:       handler.New(n.getBlocksByID),
		core.MethodGetTransactionsByID: handler.New(n.getTransactionsByID),
	}, nil)
	return n
}

func (n *Node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.bridge.ServeHTTP(w, r)
}

func (n *Node) Close() error {
	return n.bridge.Close()
}

// SetNonce sets the nonce reported for account.
func (n *Node) SetNonce(account string, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[account] = nonce
}

// SetRc sets the resource credits reported for account.
func (n *Node) SetRc(account string, rc string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rc[account] = rc
}

// SetContractResult sets what a read of entryPoint on contractID returns.
func (n *Node) SetContractResult(contractID string, entryPoint uint32, result core.ReadContractResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.contracts[contractKey(contractID, entryPoint)] = result
}

// FailNext makes the next call of method fail with message.
func (n *Node) FailNext(method string, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[method] = append(n.failures[method], message)
}

// Head returns the current head block.
func (n *Node) Head() core.BlockItem {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blocks[len(n.blocks)-1]
}

// ProduceBlock appends a block containing the given transactions.
func (n *Node) ProduceBlock(txIDs ...string) core.BlockItem {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.produceBlock(txIDs)
}

func (n *Node) produceBlock(txIDs []string) core.BlockItem {
	height := uint64(len(n.blocks) + 1)
	previous := encoding.BytesToHex(make([]byte, 34))
	if len(n.blocks) > 0 {
		previous = n.blocks[len(n.blocks)-1].BlockID
	}

	h := sha256.New()
	h.Write([]byte(previous))
	_ = binary.Write(h, binary.BigEndian, height)
	for _, id := range txIDs {
		h.Write([]byte(id))
	}
	// Multihash prefix for sha2-256, as node ids carry.
	id := encoding.BytesToHex(append([]byte{0x12, 0x20}, h.Sum(nil)...))

	txs := make([]*core.Transaction, 0, len(txIDs))
	for _, txID := range txIDs {
		if tx, ok := n.txs[txID]; ok {
			txs = append(txs, tx)
		}
		n.included[txID] = id
		delete(n.pending, txID)
	}
	body, _ := json.Marshal(map[string]any{
		"id": id,
		"header": map[string]any{
			"previous": previous,
			"height":   strconv.FormatUint(height, 10),
		},
		"transactions": txs,
	})

	item := core.BlockItem{
		BlockID:     id,
		BlockHeight: core.Uint64(height),
		Block:       body,
	}
	n.byID[id] = len(n.blocks)
	n.blocks = append(n.blocks, item)
	logger.WithField("blockID", id).Debugf("produced block %d with %d transactions", height, len(txIDs))
	return item
}

// injected returns a queued failure for method. Callers hold n.mu.
func (n *Node) injected(method string) error {
	queue := n.failures[method]
	if len(queue) == 0 {
		return nil
	}
	n.failures[method] = queue[1:]
	return errors.New(queue[0])
}

func contractKey(contractID string, entryPoint uint32) string {
	return fmt.Sprintf("%s/%d", contractID, entryPoint)
}

func (n *Node) getAccountNonce(_ context.Context, req accountRequest) (nonceResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.injected(core.MethodGetAccountNonce); err != nil {
		return nonceResponse{}, err
	}
	nonce, ok := n.nonces[req.Account]
	if !ok || nonce == 0 {
		return nonceResponse{}, nil
	}
	return nonceResponse{Nonce: strconv.FormatUint(nonce, 10)}, nil
}

func (n *Node) getAccountRc(_ context.Context, req accountRequest) (rcResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.injected(core.MethodGetAccountRc); err != nil {
		return rcResponse{}, err
	}
	return rcResponse{Rc: n.rc[req.Account]}, nil
}

func (n *Node) getHeadInfo(_ context.Context, _ emptyRequest) (core.HeadInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.injected(core.MethodGetHeadInfo); err != nil {
		return core.HeadInfo{}, err
	}
	head := n.blocks[len(n.blocks)-1]
	previous := ""
	if len(n.blocks) > 1 {
		previous = n.blocks[len(n.blocks)-2].BlockID
	}
	return core.HeadInfo{
		HeadTopology: core.BlockTopology{
			ID:       head.BlockID,
			Height:   head.BlockHeight,
			Previous: previous,
		},
		LastIrreversibleHeight: head.BlockHeight,
	}, nil
}

func (n *Node) submitTransaction(_ context.Context, req core.SubmitTransactionRequest) (submitResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.injected(core.MethodSubmitTransaction); err != nil {
		return submitResponse{}, err
	}
	if req.Transaction == nil || req.Transaction.ID == "" {
		return submitResponse{}, errors.New("transaction id is required")
	}
	id := req.Transaction.ID
	if _, ok := n.txs[id]; ok {
		return submitResponse{}, fmt.Errorf("transaction %s already submitted", id)
	}
	n.txs[id] = req.Transaction
	n.pending[id] = &pendingTx{tx: req.Transaction}
	return submitResponse{}, nil
}

func (n *Node) readContract(_ context.Context, op core.CallContractOperation) (core.ReadContractResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.injected(core.MethodReadContract); err != nil {
		return core.ReadContractResult{}, err
	}
	res, ok := n.contracts[contractKey(op.ContractID, op.EntryPoint)]
	if !ok {
		return core.ReadContractResult{}, fmt.Errorf("contract %s has no entry point %d", op.ContractID, op.EntryPoint)
	}
	return res, nil
}

func (n *Node) getBlocksByHeight(_ context.Context, req core.GetBlocksByHeightRequest) (core.GetBlocksResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.injected(core.MethodGetBlocksByHeight); err != nil {
		return core.GetBlocksResponse{}, err
	}
	headIdx, ok := n.byID[req.HeadBlockID]
	if !ok {
		return core.GetBlocksResponse{}, fmt.Errorf("unknown head block %s", req.HeadBlockID)
	}
	res := core.GetBlocksResponse{BlockItems: []core.BlockItem{}}
	h := req.AncestorStartHeight
	if h == 0 {
		h = 1
	}
	for ; h <= uint64(headIdx+1) && h-req.AncestorStartHeight < uint64(req.NumBlocks); h++ {
		res.BlockItems = append(res.BlockItems, n.itemFor(n.blocks[h-1], req.ReturnBlock))
	}
	return res, nil
}

func (n *Node) getBlocksByID(_ context.Context, req core.GetBlocksByIDRequest) (core.GetBlocksResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.injected(core.MethodGetBlocksByID); err != nil {
		return core.GetBlocksResponse{}, err
	}
	res := core.GetBlocksResponse{BlockItems: []core.BlockItem{}}
	for _, id := range req.BlockIDs {
		if idx, ok := n.byID[id]; ok {
			res.BlockItems = append(res.BlockItems, n.itemFor(n.blocks[idx], req.ReturnBlock))
		}
	}
	return res, nil
}

func (n *Node) itemFor(b core.BlockItem, withBlock bool) core.BlockItem {
	if !withBlock {
		b.Block = nil
	}
	return b
}

// getTransactionsByID only reports transactions that are in a block. Each
// lookup of a pending transaction counts towards its inclusion.
func (n *Node) getTransactionsByID(_ context.Context, req core.GetTransactionsByIDRequest) (core.GetTransactionsByIDResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.injected(core.MethodGetTransactionsByID); err != nil {
		return core.GetTransactionsByIDResponse{}, err
	}

	var ready []string
	for _, id := range req.TransactionIDs {
		if p, ok := n.pending[id]; ok {
			p.polls++
			if p.polls > n.opts.InclusionDelay {
				ready = append(ready, id)
			}
		}
	}
	if len(ready) > 0 {
		n.produceBlock(ready)
	}

	res := core.GetTransactionsByIDResponse{Transactions: []core.TransactionItem{}}
	for _, id := range req.TransactionIDs {
		blockID, ok := n.included[id]
		if !ok {
			continue
		}
		tx, _ := json.Marshal(n.txs[id])
		res.Transactions = append(res.Transactions, core.TransactionItem{
			Transaction:      tx,
			ContainingBlocks: []string{blockID},
		})
	}
	return res, nil
}

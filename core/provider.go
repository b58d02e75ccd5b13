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
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	logger "github.com/sirupsen/logrus"
)

// OnErrorFunc is called after a transport failure, once the cursor has
// already moved from currentNode to newNode. Returning true aborts the call
// and hands err to the caller.
type OnErrorFunc func(err error, currentNode, newNode string) (abort bool)

// NeverAbort is the default failure hook: keep rotating until a node answers.
func NeverAbort(error, string, string) bool {
	return false
}

// ProviderOptions configures a Provider.
type ProviderOptions func(p *Provider) error

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) ProviderOptions {
	return func(p *Provider) error {
		if t == nil {
			return errors.New("transport is nil")
		}
		p.transport = t
		p.customTransport = true
		return nil
	}
}

// WithHTTPClient sets the client used by the default HTTP transport. It can
// not be combined with WithTransport.
func WithHTTPClient(client *http.Client) ProviderOptions {
	return func(p *Provider) error {
		if client == nil {
			return errors.New("http client is nil")
		}
		p.httpClient = client
		return nil
	}
}

// WithOnError sets the failure hook.
func WithOnError(hook OnErrorFunc) ProviderOptions {
	return func(p *Provider) error {
		p.SetOnError(hook)
		return nil
	}
}

// WithMaxRotations stops a call after n node rotations. Zero means no limit.
func WithMaxRotations(n int) ProviderOptions {
	return func(p *Provider) error {
		if n < 0 {
			return fmt.Errorf("max rotations must not be negative, got %d", n)
		}
		p.maxRotations = n
		return nil
	}
}

// WithTimer sets the timer factory used while waiting for transactions.
func WithTimer(newTimer func() backoff.Timer) ProviderOptions {
	return func(p *Provider) error {
		p.newTimer = newTimer
		return nil
	}
}

// WithNow sets the clock used to compute transaction deadlines.
func WithNow(now func() time.Time) ProviderOptions {
	return func(p *Provider) error {
		p.now = now
		return nil
	}
}

// Provider sends RPC calls to a pool of interchangeable nodes. A call that
// fails with a TransportError moves the cursor to the next node and is
// retried there; every other error is returned immediately.
//
// Provider is safe for concurrent use. The cursor only advances when the
// node that failed is still the current one, so concurrent failures on the
// same node cause a single rotation.
type Provider struct {
	nodes        []string
	transport    Transport
	maxRotations int
	newTimer     func() backoff.Timer
	now          func() time.Time

	customTransport bool
	httpClient      *http.Client

	mu      sync.Mutex
	cursor  int
	onError OnErrorFunc
}

// NewProvider creates a provider for the given node URLs. The first node is
// used until it fails.
func NewProvider(nodes []string, opts ...ProviderOptions) (*Provider, error) {
	if len(nodes) == 0 {
		return nil, errors.New("at least one node is required")
	}
	for i, n := range nodes {
		if n == "" {
			return nil, fmt.Errorf("node %d has an empty url", i)
		}
	}
	p := &Provider{
		nodes:     append([]string(nil), nodes...),
		transport: NewHTTPTransport(nil, nil),
		newTimer:  newRealTimer,
		now:       time.Now,
		onError:   NeverAbort,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.httpClient != nil {
		if p.customTransport {
			return nil, errors.New("WithHTTPClient and WithTransport are mutually exclusive")
		}
		p.transport = NewHTTPTransport(p.httpClient, nil)
	}
	return p, nil
}

// Nodes returns a copy of the node pool.
func (p *Provider) Nodes() []string {
	return append([]string(nil), p.nodes...)
}

// CurrentNode returns the node the next call is sent to.
func (p *Provider) CurrentNode() string {
	_, node := p.current()
	return node
}

// SetOnError replaces the failure hook. A nil hook restores NeverAbort.
func (p *Provider) SetOnError(hook OnErrorFunc) {
	if hook == nil {
		hook = NeverAbort
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = hook
}

func (p *Provider) current() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor, p.nodes[p.cursor]
}

// rotate advances the cursor past the node at index failed, unless another
// call already did. It returns the node to retry on and the hook to invoke.
func (p *Provider) rotate(failed int) (string, OnErrorFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor == failed {
		p.cursor = (p.cursor + 1) % len(p.nodes)
	}
	return p.nodes[p.cursor], p.onError
}

// Call sends method with params to the current node and decodes the result
// into result, which may be nil.
func (p *Provider) Call(ctx context.Context, method string, params any, result any) error {
	rotations := 0
	for {
		idx, node := p.current()
		err := p.transport.Call(ctx, node, method, params, result)
		if err == nil {
			RequestsCounter.WithLabelValues(node, method, "ok").Inc()
			return nil
		}

		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			if IsRemoteError(err) {
				RequestsCounter.WithLabelValues(node, method, "remote_error").Inc()
				logger.
					WithField("node", node).
					WithField("method", method).
					Debugf("node rejected request: %v", err)
			}
			return err
		}
		RequestsCounter.WithLabelValues(node, method, "transport_error").Inc()

		// Cancellation is not a node fault.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		next, onError := p.rotate(idx)
		FailoverCounter.WithLabelValues(node, next).Inc()
		logger.
			WithField("node", node).
			WithField("next", next).
			WithField("method", method).
			Warnf("node failed, switching: %v", err)

		if onError(err, node, next) {
			return err
		}
		rotations++
		if p.maxRotations > 0 && rotations >= p.maxRotations {
			return fmt.Errorf("%w after %d rotations: %w", ErrNodesExhausted, rotations, err)
		}
	}
}

// GetNonce returns the nonce of account, 0 when the node reports none.
func (p *Provider) GetNonce(ctx context.Context, account string) (uint64, error) {
	var res nonceResponse
	if err := p.Call(ctx, MethodGetAccountNonce, accountRequest{Account: account}, &res); err != nil {
		return 0, err
	}
	if res.Nonce == "" {
		return 0, nil
	}
	nonce, err := strconv.ParseUint(res.Nonce, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid nonce %q for account %s: %w", res.Nonce, account, err)
	}
	return nonce, nil
}

// GetAccountRc returns the resource credits of account as a decimal string.
func (p *Provider) GetAccountRc(ctx context.Context, account string) (string, error) {
	var res rcResponse
	if err := p.Call(ctx, MethodGetAccountRc, accountRequest{Account: account}, &res); err != nil {
		return "", err
	}
	if res.Rc == "" {
		return "0", nil
	}
	return res.Rc, nil
}

func (p *Provider) GetHeadInfo(ctx context.Context) (*HeadInfo, error) {
	var res HeadInfo
	if err := p.Call(ctx, MethodGetHeadInfo, struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetBlocks returns count blocks starting at height on the chain ending in
// headBlockID. An empty headBlockID means the current head block.
func (p *Provider) GetBlocks(ctx context.Context, height uint64, count uint32, headBlockID string) ([]BlockItem, error) {
	if headBlockID == "" {
		head, err := p.GetHeadInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get head block id: %w", err)
		}
		headBlockID = head.HeadTopology.ID
	}
	var res GetBlocksResponse
	err := p.Call(ctx, MethodGetBlocksByHeight, GetBlocksByHeightRequest{
		HeadBlockID:         headBlockID,
		AncestorStartHeight: height,
		NumBlocks:           count,
		ReturnBlock:         true,
		ReturnReceipt:       false,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.BlockItems, nil
}

// GetBlock returns the block at height on the current chain.
func (p *Provider) GetBlock(ctx context.Context, height uint64) (*BlockItem, error) {
	blocks, err := p.GetBlocks(ctx, height, 1, "")
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	return &blocks[0], nil
}

func (p *Provider) GetBlocksByID(ctx context.Context, blockIDs []string) ([]BlockItem, error) {
	var res GetBlocksResponse
	err := p.Call(ctx, MethodGetBlocksByID, GetBlocksByIDRequest{
		BlockIDs:      blockIDs,
		ReturnBlock:   true,
		ReturnReceipt: false,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.BlockItems, nil
}

func (p *Provider) GetTransactionsByID(ctx context.Context, transactionIDs []string) ([]TransactionItem, error) {
	var res GetTransactionsByIDResponse
	err := p.Call(ctx, MethodGetTransactionsByID, GetTransactionsByIDRequest{TransactionIDs: transactionIDs}, &res)
	if err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

// ReadContract runs a read-only contract call.
func (p *Provider) ReadContract(ctx context.Context, op CallContractOperation) (*ReadContractResult, error) {
	var res ReadContractResult
	if err := p.Call(ctx, MethodReadContract, op, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendTransaction submits tx and returns a handle to wait for its inclusion.
// The confirmation window starts when the node accepts the transaction.
func (p *Provider) SendTransaction(ctx context.Context, tx *Transaction) (*TransactionHandle, error) {
	if tx == nil || tx.ID == "" {
		return nil, errors.New("transaction id is not set")
	}
	if err := p.Call(ctx, MethodSubmitTransaction, SubmitTransactionRequest{Transaction: tx}, nil); err != nil {
		return nil, err
	}
	logger.WithField("txID", tx.ID).Debugf("transaction submitted")
	return &TransactionHandle{
		provider: p,
		id:       tx.ID,
		deadline: p.now().Add(TxInclusionWindow),
	}, nil
}

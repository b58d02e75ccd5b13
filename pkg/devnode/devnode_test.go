package devnode_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicleprotocol/koinos-client/core"
	"github.com/chronicleprotocol/koinos-client/pkg/devnode"
)

// instantTimer fires as soon as it is started.
type instantTimer struct {
	c     chan time.Time
	total time.Duration
}

func (t *instantTimer) Start(d time.Duration) {
	t.total += d
	t.c <- time.Time{}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func startNode(t *testing.T, opts devnode.Options) (*devnode.Node, string) {
	node := devnode.New(opts)
	server := httptest.NewServer(node)
	t.Cleanup(func() {
		server.Close()
		_ = node.Close()
	})
	return node, server.URL
}

func newProvider(t *testing.T, nodes []string, timer *instantTimer) *core.Provider {
	opts := []core.ProviderOptions{core.WithNow(time.Now)}
	if timer != nil {
		opts = append(opts, core.WithTimer(func() backoff.Timer { return timer }))
	}
	p, err := core.NewProvider(nodes, opts...)
	require.NoError(t, err)
	return p
}

func TestAccountQueries(t *testing.T) {
	node, url := startNode(t, devnode.Options{})
	node.SetNonce("1Alice", 4)
	node.SetRc("1Alice", "5000000")
	p := newProvider(t, []string{url}, nil)
	ctx := context.Background()

	nonce, err := p.GetNonce(ctx, "1Alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), nonce)

	rc, err := p.GetAccountRc(ctx, "1Alice")
	require.NoError(t, err)
	assert.Equal(t, "5000000", rc)

	// Unknown accounts fall back to zero values
	nonce, err = p.GetNonce(ctx, "1Nobody")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)

	rc, err = p.GetAccountRc(ctx, "1Nobody")
	require.NoError(t, err)
	assert.Equal(t, "0", rc)
}

func TestBlocks(t *testing.T) {
	node, url := startNode(t, devnode.Options{})
	node.ProduceBlock()
	node.ProduceBlock()
	p := newProvider(t, []string{url}, nil)
	ctx := context.Background()

	head, err := p.GetHeadInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Uint64(3), head.HeadTopology.Height)
	assert.Equal(t, node.Head().BlockID, head.HeadTopology.ID)

	blocks, err := p.GetBlocks(ctx, 1, 5, "")
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	for i, b := range blocks {
		assert.Equal(t, core.Uint64(i+1), b.BlockHeight)
		assert.NotEmpty(t, b.Block)
	}

	// Walking back from an older reference
	blocks, err = p.GetBlocks(ctx, 1, 5, blocks[1].BlockID)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	block, err := p.GetBlock(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, core.Uint64(2), block.BlockHeight)

	_, err = p.GetBlock(ctx, 10)
	assert.ErrorIs(t, err, core.ErrBlockNotFound)

	byID, err := p.GetBlocksByID(ctx, []string{block.BlockID, "0xunknown"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, block.BlockID, byID[0].BlockID)

	_, err = p.GetBlocks(ctx, 1, 1, "0xunknown")
	assert.True(t, core.IsRemoteError(err))
}

func TestBlocksRangeStopsAtHead(t *testing.T) {
	node, url := startNode(t, devnode.Options{})
	node.ProduceBlock()
	p := newProvider(t, []string{url}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	blocks, err := p.GetBlocks(ctx, 1, math.MaxUint32, "")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, core.Uint64(2), blocks[1].BlockHeight)

	// Height 0 is below genesis and counts towards the range
	blocks, err = p.GetBlocks(ctx, 0, 2, "")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, core.Uint64(1), blocks[0].BlockHeight)

	blocks, err = p.GetBlocks(ctx, 5, math.MaxUint32, "")
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestReadContract(t *testing.T) {
	node, url := startNode(t, devnode.Options{})
	op := core.CallContractOperation{ContractID: "15DJN4a8SgrbGhhGksSBASiSYjGnMU8dGL", EntryPoint: 0x82a3537f}
	node.SetContractResult(op.ContractID, op.EntryPoint, core.ReadContractResult{Result: "CgVLb2lub3M"})
	p := newProvider(t, []string{url}, nil)

	res, err := p.ReadContract(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, "CgVLb2lub3M", res.Result)

	op.EntryPoint = 1
	_, err = p.ReadContract(context.Background(), op)
	assert.True(t, core.IsRemoteError(err))
}

func TestSendAndWait(t *testing.T) {
	node, url := startNode(t, devnode.Options{InclusionDelay: 2})
	timer := &instantTimer{c: make(chan time.Time, 1)}
	p := newProvider(t, []string{url}, timer)
	ctx := context.Background()

	tx := &core.Transaction{ID: "0x1220c57e3573189868970a3a1662a667c366b15015d9b7900ffed415c5e643e2a7ce"}
	h, err := p.SendTransaction(ctx, tx)
	require.NoError(t, err)

	blockID, err := h.WaitContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.Head().BlockID, blockID)

	items, err := p.GetTransactionsByID(ctx, []string{tx.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{blockID}, items[0].ContainingBlocks)
	assert.JSONEq(t, `{"id":"`+tx.ID+`"}`, string(items[0].Transaction))

	// Resubmitting is rejected by the node and not retried
	_, err = p.SendTransaction(ctx, tx)
	var remoteErr *core.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Contains(t, remoteErr.Message, "already submitted")
}

func TestWaitTimeout(t *testing.T) {
	_, url := startNode(t, devnode.Options{InclusionDelay: core.TxPollAttempts})
	timer := &instantTimer{c: make(chan time.Time, 1)}
	p := newProvider(t, []string{url}, timer)

	h, err := p.SendTransaction(context.Background(), &core.Transaction{ID: "0x1220aa"})
	require.NoError(t, err)

	_, err = h.Wait()
	assert.ErrorIs(t, err, core.ErrTransactionTimeout)
}

func TestFailover(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	node, url := startNode(t, devnode.Options{})
	node.SetNonce("1Bob", 9)
	p := newProvider(t, []string{deadURL, url}, nil)

	nonce, err := p.GetNonce(context.Background(), "1Bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), nonce)
	assert.Equal(t, url, p.CurrentNode())
}

func TestInjectedFailure(t *testing.T) {
	node, url := startNode(t, devnode.Options{})
	node.FailNext(core.MethodGetHeadInfo, "node is syncing")
	p := newProvider(t, []string{url}, nil)

	_, err := p.GetHeadInfo(context.Background())
	var remoteErr *core.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Contains(t, remoteErr.Message, "node is syncing")

	_, err = p.GetHeadInfo(context.Background())
	assert.NoError(t, err)
}

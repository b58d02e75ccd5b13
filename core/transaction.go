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
	"time"

	"github.com/cenkalti/backoff/v4"
	logger "github.com/sirupsen/logrus"
)

const (
	// TxInclusionWindow is the time after submission at which polling starts
	// in earnest; nodes need a few seconds to index a new transaction.
	TxInclusionWindow = 10 * time.Second
	TxPollInterval    = time.Second
	TxPollAttempts    = 30
)

var errNotIncluded = errors.New("transaction not yet included")

// TransactionHandle tracks a submitted transaction.
type TransactionHandle struct {
	provider *Provider
	id       string
	deadline time.Time
}

func (h *TransactionHandle) ID() string {
	return h.id
}

// Deadline is the end of the grace period after submission.
func (h *TransactionHandle) Deadline() time.Time {
	return h.deadline
}

// Wait blocks until the transaction is found in a block and returns the id
// of that block.
func (h *TransactionHandle) Wait() (string, error) {
	return h.WaitContext(context.Background())
}

// WaitContext is Wait with cancellation.
func (h *TransactionHandle) WaitContext(ctx context.Context) (string, error) {
	return h.provider.WaitForTransaction(ctx, h.id, h.deadline)
}

// WaitForTransaction sleeps until deadline, then queries the transaction
// store up to TxPollAttempts times, one interval apart, and returns the first
// containing block. The wait ends with
// ErrTransactionTimeout when every attempt comes back empty.
func (p *Provider) WaitForTransaction(ctx context.Context, txID string, deadline time.Time) (string, error) {
	t := p.newTimer()

	// A deadline already in the past polls right away.
	if err := sleepContext(ctx, t, deadline.Sub(p.now())); err != nil {
		return "", err
	}

	attempts := 0
	var blockID string
	operation := func() error {
		attempts++
		items, err := p.GetTransactionsByID(ctx, []string{txID})
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(items) > 0 && len(items[0].ContainingBlocks) > 0 {
			blockID = items[0].ContainingBlocks[0]
			return nil
		}
		logger.
			WithField("txID", txID).
			WithField("attempt", attempts).
			Tracef("transaction is not yet included")
		return errNotIncluded
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(TxPollInterval), TxPollAttempts-1),
		ctx,
	)
	err := backoff.RetryNotifyWithTimer(operation, b, nil, t)
	TransactionPollAttemptsGauge.Set(float64(attempts))

	switch {
	case err == nil:
		TransactionWaitCounter.WithLabelValues("included").Inc()
		logger.
			WithField("txID", txID).
			WithField("blockID", blockID).
			Infof("transaction included after %d attempts", attempts)
		return blockID, nil
	case ctx.Err() != nil:
		TransactionWaitCounter.WithLabelValues("canceled").Inc()
		return "", ctx.Err()
	case errors.Is(err, errNotIncluded):
		TransactionWaitCounter.WithLabelValues("timeout").Inc()
		return "", fmt.Errorf("%w: %s after %d attempts", ErrTransactionTimeout, txID, attempts)
	default:
		TransactionWaitCounter.WithLabelValues("error").Inc()
		return "", err
	}
}

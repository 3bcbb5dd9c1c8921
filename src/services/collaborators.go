package services

import (
	"context"
	"math/big"

	"group-registry/src/models"
)

// Verifier answers ownership questions for gated admission. Any error is
// treated by callers as the source not passing.
type Verifier interface {
	ListNeurons(ctx context.Context, governanceCanister, principal string, pageSize int, cursor string) (models.NeuronPage, error)
	BalanceOf(ctx context.Context, standard models.TokenStandard, contract, owner string) (*big.Int, error)
}

// Notifier enqueues a notification and returns its id.
type Notifier interface {
	Enqueue(ctx context.Context, notification models.Notification) (string, error)
}

// RewardSignal is the one-way hook consumed by the reward accrual job.
type RewardSignal interface {
	Notify(ctx context.Context, signal models.RewardSignal) error
}

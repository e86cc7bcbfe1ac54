// Package broker defines the collaborator that signed intents are handed to for off-chain
// execution. No transport ships here: the channel network's broker protocol is supplied by
// whoever integrates this module.
package broker

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/shield/pkg/intent"
)

// Receipt acknowledges that a broker accepted a signed intent
type Receipt struct {
	IntentDigest common.Hash `json:"intentDigest"`
	// Reference is the broker's own identifier for the intent, if any
	Reference  string    `json:"reference,omitempty"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Broker accepts signed intents
type Broker interface {
	Submit(ctx context.Context, signed intent.SignedIntent) (Receipt, error)
}

// Func adapts a function to the Broker interface
type Func func(ctx context.Context, signed intent.SignedIntent) (Receipt, error)

func (f Func) Submit(ctx context.Context, signed intent.SignedIntent) (Receipt, error) {
	return f(ctx, signed)
}

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/intent"
)

// ErrReplay is returned when an intent with an already seen session and nonce is submitted
var ErrReplay = errors.New("intent nonce already used")

// Memory is an in-process broker that verifies and records intents. It rejects replays the
// way a channel counterparty would, which makes it useful for dry runs and tests.
type Memory struct {
	mu       sync.Mutex
	accepted map[string]intent.SignedIntent
	order    []string
}

var _ Broker = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{accepted: make(map[string]intent.SignedIntent)}
}

func replayKey(in intent.TradeIntent) string {
	return fmt.Sprintf("%s/%d", in.SessionID(), in.Nonce())
}

func (m *Memory) Submit(ctx context.Context, signed intent.SignedIntent) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if err := signed.Verify(); err != nil {
		return Receipt{}, errors.Wrap(err, "rejected unverifiable intent")
	}

	key := replayKey(signed.Intent())

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.accepted[key]; seen {
		return Receipt{}, errors.Wrapf(ErrReplay, "session %s nonce %d", signed.Intent().SessionID(), signed.Intent().Nonce())
	}
	m.accepted[key] = signed
	m.order = append(m.order, key)

	return Receipt{
		IntentDigest: signed.Digest(),
		Reference:    uuid.NewString(),
		AcceptedAt:   time.Now().UTC(),
	}, nil
}

// Accepted returns the accepted intents in submission order
func (m *Memory) Accepted() []intent.SignedIntent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]intent.SignedIntent, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.accepted[key])
	}
	return out
}

// Package trader builds and signs off-chain trade intents for a single local session.
//
// A Trader moves through Uninitialized, Active and Closed. Intents can only be built while the
// session is Active, and every intent gets the next nonce of the session. Nothing here talks
// to the coordination endpoint: session state is local bookkeeping, and ending a session does
// not settle anything.
package trader

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/broker"
	"github.com/speedrun-hq/shield/pkg/intent"
	"github.com/speedrun-hq/shield/pkg/logger"
	"github.com/speedrun-hq/shield/pkg/metrics"
	"github.com/speedrun-hq/shield/pkg/nonce"
	"github.com/speedrun-hq/shield/pkg/signer"
)

// DefaultNativeAsset is the input asset of every intent unless overridden
const DefaultNativeAsset = "BNB"

// Operation names used in errors
const (
	opInitialize = "initialize"
	opBuild      = "build intent"
	opSign       = "sign intent"
	opSubmit     = "submit intent"
	opEnd        = "end local session"
	opNew        = "new trader"
)

// Trader builds and signs trade intents for one local session
type Trader struct {
	signer      signer.Signer
	broker      broker.Broker
	nonces      *nonce.Manager
	logger      logger.Logger
	nativeAsset string
	now         func() time.Time

	// lifecycle, guarded by mu
	mu        sync.Mutex
	status    Status
	sessionID string
	endpoint  *url.URL
	openedAt  time.Time
	closedAt  time.Time
	// digest of every intent built in the session, by nonce
	built map[uint64]common.Hash

	signed    atomic.Uint64
	failures  atomic.Uint64
	submitted atomic.Uint64
}

// Option configures a Trader
type Option func(*Trader)

// WithLogger sets the logger, the default discards everything
func WithLogger(log logger.Logger) Option {
	return func(t *Trader) { t.logger = log }
}

// WithBroker sets the broker used by SubmitIntent
func WithBroker(b broker.Broker) Option {
	return func(t *Trader) { t.broker = b }
}

// WithNativeAsset overrides the input asset symbol
func WithNativeAsset(symbol string) Option {
	return func(t *Trader) { t.nativeAsset = symbol }
}

// WithClock overrides the wall clock used for issuedAt timestamps
func WithClock(now func() time.Time) Option {
	return func(t *Trader) { t.now = now }
}

// WithNonceManager shares a nonce manager between traders. Session ids must then be unique
// across all of them.
func WithNonceManager(m *nonce.Manager) Option {
	return func(t *Trader) { t.nonces = m }
}

// New creates a Trader in the Uninitialized state
func New(s signer.Signer, opts ...Option) (*Trader, error) {
	if s == nil {
		return nil, newError(opNew, ErrConfiguration, "a signer is required")
	}

	t := &Trader{
		signer:      s,
		logger:      &logger.EmptyLogger{},
		nativeAsset: DefaultNativeAsset,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		t.logger = &logger.EmptyLogger{}
	}
	if t.nonces == nil {
		t.nonces = nonce.NewManager(t.logger)
	}
	if err := validateIdentifier("native asset", t.nativeAsset); err != nil {
		return nil, wrapError(opNew, ErrConfiguration, err)
	}

	metrics.SetSessionStatus(StatusUninitialized.String(), statusNames())
	return t, nil
}

// Initialize opens the local session and moves the Trader to Active
func (t *Trader) Initialize(endpoint, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusUninitialized {
		return newError(opInitialize, ErrInvalidState, "session is %s", t.status)
	}

	u, err := validateEndpoint(endpoint)
	if err != nil {
		return wrapError(opInitialize, ErrConfiguration, err)
	}
	if err := validateIdentifier("session id", sessionID); err != nil {
		return wrapError(opInitialize, ErrConfiguration, err)
	}
	if err := t.nonces.Open(sessionID); err != nil {
		return wrapError(opInitialize, ErrConfiguration, err)
	}

	t.status = StatusActive
	t.sessionID = sessionID
	t.endpoint = u
	t.openedAt = t.now()
	t.built = make(map[uint64]common.Hash)

	metrics.SetSessionStatus(StatusActive.String(), statusNames())
	metrics.LastNonce.Set(0)
	t.logger.InfoWithSession(sessionID, "Local session active, endpoint %s, signer %s", u.Redacted(), t.signer.Address().Hex())
	return nil
}

// BuildAndSignIntent builds the next intent of the session and signs it.
// A nonce burned by a failed signature is not handed out again.
func (t *Trader) BuildAndSignIntent(ctx context.Context, req TradeRequest) (intent.SignedIntent, error) {
	in, err := t.build(req)
	if err != nil {
		return intent.SignedIntent{}, err
	}
	return t.sign(ctx, in)
}

// BuildIntent builds the next intent of the session without signing it. It consumes a nonce.
func (t *Trader) BuildIntent(req TradeRequest) (intent.TradeIntent, error) {
	return t.build(req)
}

// SignIntent signs an intent previously built by this Trader for the current session.
// The intent must be byte for byte the one built for its nonce, so a nonce never ends up
// under two different signed intents.
func (t *Trader) SignIntent(ctx context.Context, in intent.TradeIntent) (intent.SignedIntent, error) {
	t.mu.Lock()
	if t.status != StatusActive {
		status := t.status
		t.mu.Unlock()
		return intent.SignedIntent{}, newError(opSign, ErrInvalidState, "session is %s", status)
	}
	sessionID := t.sessionID
	digest, built := t.built[in.Nonce()]
	t.mu.Unlock()

	if in.IsZero() {
		return intent.SignedIntent{}, newError(opSign, ErrInvalidArgument, "intent is empty")
	}
	if in.SessionID() != sessionID {
		return intent.SignedIntent{}, newError(opSign, ErrInvalidArgument, "intent belongs to session %s", in.SessionID())
	}
	if !built {
		return intent.SignedIntent{}, newError(opSign, ErrInvalidArgument, "nonce %d was never built in this session", in.Nonce())
	}
	if in.Digest() != digest {
		return intent.SignedIntent{}, newError(opSign, ErrInvalidArgument, "intent differs from the one built for nonce %d", in.Nonce())
	}

	return t.sign(ctx, in)
}

// SubmitIntent hands a signed intent of the current session to the configured broker
func (t *Trader) SubmitIntent(ctx context.Context, signed intent.SignedIntent) (broker.Receipt, error) {
	if t.broker == nil {
		return broker.Receipt{}, newError(opSubmit, ErrConfiguration, "no broker configured")
	}

	t.mu.Lock()
	if t.status != StatusActive {
		status := t.status
		t.mu.Unlock()
		return broker.Receipt{}, newError(opSubmit, ErrInvalidState, "session is %s", status)
	}
	sessionID := t.sessionID
	t.mu.Unlock()

	in := signed.Intent()
	if in.IsZero() || in.SessionID() != sessionID {
		return broker.Receipt{}, newError(opSubmit, ErrInvalidArgument, "signed intent does not belong to session %s", sessionID)
	}
	if err := signed.Verify(); err != nil {
		return broker.Receipt{}, wrapError(opSubmit, ErrInvalidArgument, err)
	}

	receipt, err := t.broker.Submit(ctx, signed)
	if err != nil {
		t.logger.ErrorWithSession(sessionID, "Broker did not accept nonce %d: %v", in.Nonce(), err)
		return broker.Receipt{}, wrapError(opSubmit, ErrSubmitFailed, err)
	}

	t.submitted.Add(1)
	t.logger.InfoWithSession(sessionID, "Broker accepted nonce %d, reference %s", in.Nonce(), receipt.Reference)
	return receipt, nil
}

// LocalSessionState returns the locally held session snapshot. It is valid in every state and
// is not a query of any remote channel state.
func (t *Trader) LocalSessionState() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// EndLocalSession closes the local session and returns its final snapshot. It does not settle
// anything with the coordination endpoint.
func (t *Trader) EndLocalSession() (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return t.snapshotLocked(), newError(opEnd, ErrInvalidState, "session is %s", t.status)
	}
	if err := t.nonces.Release(t.sessionID); err != nil {
		return t.snapshotLocked(), wrapError(opEnd, ErrInvalidState, err)
	}

	t.status = StatusClosed
	t.closedAt = t.now()
	t.built = nil

	snapshot := t.snapshotLocked()
	metrics.SetSessionStatus(StatusClosed.String(), statusNames())
	t.logger.InfoWithSession(t.sessionID, "Local session ended after nonce %d, %d intents signed",
		snapshot.LastNonce, snapshot.IntentsSigned)
	return snapshot, nil
}

// IsActive reports whether intents can be built
func (t *Trader) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == StatusActive
}

// CurrentSessionID returns the session id, empty before Initialize
func (t *Trader) CurrentSessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// SignerAddress returns the address intents are signed with
func (t *Trader) SignerAddress() common.Address {
	return t.signer.Address()
}

// build validates req, allocates a nonce and constructs the intent.
// Validation runs before allocation so rejected requests consume nothing.
func (t *Trader) build(req TradeRequest) (intent.TradeIntent, error) {
	t.mu.Lock()
	if t.status != StatusActive {
		status := t.status
		t.mu.Unlock()
		return intent.TradeIntent{}, newError(opBuild, ErrInvalidState, "session is %s", status)
	}

	assetOut, err := validateRequest(req, t.nativeAsset)
	if err != nil {
		t.mu.Unlock()
		metrics.InvalidRequests.WithLabelValues(invalidReason(err)).Inc()
		return intent.TradeIntent{}, wrapError(opBuild, ErrInvalidArgument, err)
	}

	sessionID := t.sessionID
	n, err := t.nonces.Next(sessionID)
	t.mu.Unlock()
	if err != nil {
		return intent.TradeIntent{}, wrapError(opBuild, ErrInvalidState, err)
	}

	in, err := intent.New(intent.Params{
		SessionID:    sessionID,
		AssetIn:      t.nativeAsset,
		AssetOut:     assetOut,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		SlippageBps:  req.SlippageBps,
		IssuedAtMs:   t.now().UnixMilli(),
		Nonce:        n,
	})
	if err != nil {
		return intent.TradeIntent{}, wrapError(opBuild, ErrInvalidArgument, err)
	}

	t.mu.Lock()
	if t.built != nil {
		t.built[n] = in.Digest()
	}
	t.mu.Unlock()

	metrics.IntentsBuilt.Inc()
	metrics.LastNonce.Set(float64(n))
	t.logger.DebugWithSession(sessionID, "Built %s", in)
	return in, nil
}

// sign asks the signer for a signature over the intent digest, outside the lifecycle lock.
// A signature that arrives after the session was ended is discarded.
func (t *Trader) sign(ctx context.Context, in intent.TradeIntent) (intent.SignedIntent, error) {
	start := time.Now()
	sig, err := t.signer.SignText(ctx, in.Digest().Bytes())
	metrics.SigningTime.Observe(time.Since(start).Seconds())
	if err != nil {
		return t.signingFailed(in, metrics.StatusRejected, err)
	}

	signed, err := intent.NewSigned(in, sig, t.signer.Address())
	if err != nil {
		return t.signingFailed(in, metrics.StatusFailed, err)
	}
	// the signer may hold a different key than it claims
	if err := signed.Verify(); err != nil {
		return t.signingFailed(in, metrics.StatusFailed, err)
	}

	t.mu.Lock()
	status := t.status
	t.mu.Unlock()
	if status != StatusActive {
		t.failures.Add(1)
		metrics.IntentsSigned.WithLabelValues(metrics.StatusRejected).Inc()
		t.logger.ErrorWithSession(in.SessionID(), "Discarding signature for nonce %d, session is %s", in.Nonce(), status)
		return intent.SignedIntent{}, newError(opSign, ErrInvalidState, "session is %s", status)
	}

	t.signed.Add(1)
	metrics.IntentsSigned.WithLabelValues(metrics.StatusSuccess).Inc()
	t.logger.InfoWithSession(in.SessionID(), "Signed nonce %d, digest %s", in.Nonce(), in.Digest().Hex())
	return signed, nil
}

func (t *Trader) signingFailed(in intent.TradeIntent, status string, err error) (intent.SignedIntent, error) {
	t.failures.Add(1)
	metrics.IntentsSigned.WithLabelValues(status).Inc()
	t.logger.ErrorWithSession(in.SessionID(), "Signing nonce %d failed: %v", in.Nonce(), err)
	return intent.SignedIntent{}, wrapError(opSign, ErrSigningFailed, err)
}

func (t *Trader) snapshotLocked() Snapshot {
	s := Snapshot{
		SessionID:        t.sessionID,
		Status:           t.status,
		Signer:           t.signer.Address(),
		NativeAsset:      t.nativeAsset,
		IntentsSigned:    t.signed.Load(),
		SigningFailures:  t.failures.Load(),
		IntentsSubmitted: t.submitted.Load(),
		LocalOnly:        true,
	}
	if t.endpoint != nil {
		s.Endpoint = t.endpoint.Redacted()
	}
	if t.sessionID != "" {
		s.LastNonce, _ = t.nonces.Current(t.sessionID)
	}
	if !t.openedAt.IsZero() {
		openedAt := t.openedAt
		s.OpenedAt = &openedAt
	}
	if !t.closedAt.IsZero() {
		closedAt := t.closedAt
		s.ClosedAt = &closedAt
	}
	return s
}

func statusNames() []string {
	names := make([]string, 0, len(Statuses))
	for _, s := range Statuses {
		names = append(names, s.String())
	}
	return names
}

// invalidReason maps a validation error to a low cardinality metric label
func invalidReason(err error) string {
	msg := errors.Cause(err).Error()
	switch {
	case strings.Contains(msg, "asset"), strings.Contains(msg, "into itself"):
		return "asset"
	case strings.Contains(msg, "amount"):
		return "amount"
	case strings.Contains(msg, "slippage"):
		return "slippage"
	}
	return "other"
}

package trader

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Status is the lifecycle state of a local session
type Status int

const (
	StatusUninitialized Status = iota
	StatusActive
	StatusClosed
)

// Statuses lists every status, in lifecycle order
var Statuses = []Status{StatusUninitialized, StatusActive, StatusClosed}

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range Statuses {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return errors.Errorf("unknown session status %q", text)
}

// Snapshot is the locally held view of a session. It is bookkeeping only: nothing in it
// was confirmed by the coordination endpoint and it carries no channel balances.
type Snapshot struct {
	SessionID        string         `json:"sessionId"`
	Status           Status         `json:"status"`
	Endpoint         string         `json:"endpoint,omitempty"`
	Signer           common.Address `json:"signer"`
	NativeAsset      string         `json:"nativeAsset"`
	LastNonce        uint64         `json:"lastNonce"`
	IntentsSigned    uint64         `json:"intentsSigned"`
	SigningFailures  uint64         `json:"signingFailures"`
	IntentsSubmitted uint64         `json:"intentsSubmitted"`
	OpenedAt         *time.Time     `json:"openedAt,omitempty"`
	ClosedAt         *time.Time     `json:"closedAt,omitempty"`
	LocalOnly        bool           `json:"localOnly"`
}

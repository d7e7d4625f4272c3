package sandwich

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/google/uuid"
)

// ProbeCompletedEvent is published after every optimizer probe.
type ProbeCompletedEvent struct {
	// Victim is the hash of the transaction being sandwiched.
	Victim common.Hash
	// Probe describes the probe and the bracket it left behind.
	Probe ProbeResult
}

// OpportunityEvaluatedEvent is published once the optimizer finished with a candidate.
type OpportunityEvaluatedEvent struct {
	// ID identifies the opportunity across log lines and events.
	ID uuid.UUID
	// Victim is the hash of the transaction being sandwiched.
	Victim common.Hash
	// Token is the token bought by the victim.
	Token common.Address
	// Result is the outcome of the search.
	Result *SearchResult
	// Profitable is set when the best profit cleared the minimum profit floor.
	Profitable bool
}

// BundleSubmittedEvent is published after a bundle was handed to the relay, whether or not it was accepted.
type BundleSubmittedEvent struct {
	// ID identifies the opportunity the bundle belongs to.
	ID uuid.UUID
	// TargetBlock is the block the bundle targets.
	TargetBlock uint64
	// BundleHash is the relay's identifier for the bundle, when accepted.
	BundleHash string
	// Amount is the attack size in wei.
	Amount *big.Int
	// Err is set when the submission failed.
	Err error
}

package keyproof

import (
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
)

// MockEngine wraps an Engine, counts the calls made to it and optionally
// fails them.
type MockEngine struct {
	Engine

	// DeriveCalls is the number of ChildKeyDerive calls.
	DeriveCalls atomic.Int32

	// ApplyCalls is the number of ApplyMultipliers calls.
	ApplyCalls atomic.Int32

	// FailDerive, if set, is returned by ChildKeyDerive.
	FailDerive error

	// FailApply, if set, is returned by ApplyMultipliers.
	FailApply error

	// ReturnNil makes ApplyMultipliers return a nil key without an error.
	ReturnNil bool
}

// NewMockEngine wraps the secp256k1 engine.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		Engine: NewSecp256k1Engine(),
	}
}

// ChildKeyDerive counts the call and forwards it.
func (m *MockEngine) ChildKeyDerive(parent ExtendedPubKey,
	index uint32) (ExtendedPubKey, Multiplier, error) {

	m.DeriveCalls.Add(1)
	if m.FailDerive != nil {
		return ExtendedPubKey{}, Multiplier{}, m.FailDerive
	}

	return m.Engine.ChildKeyDerive(parent, index)
}

// ApplyMultipliers counts the call and forwards it.
func (m *MockEngine) ApplyMultipliers(pubKey *btcec.PublicKey,
	multipliers []Multiplier) (*btcec.PublicKey, error) {

	m.ApplyCalls.Add(1)
	switch {
	case m.FailApply != nil:
		return nil, m.FailApply

	case m.ReturnNil:
		return nil, nil
	}

	return m.Engine.ApplyMultipliers(pubKey, multipliers)
}

var _ Engine = (*MockEngine)(nil)

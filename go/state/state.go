// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"bytes"

	"github.com/Fantom-foundation/evmcore/go/evm"
)

// State is an in-memory implementation of the evm.WorldState interface.
// Every modification is recorded in an undo journal; snapshots are positions
// in this journal. Storage values at the start of the current transaction are
// retained to serve GetCommittedStorage until EndTransaction is called.
//
// A State is not safe for concurrent use.
type State struct {
	committed Accounts
	current   Accounts
	undo      []func()
}

var _ evm.WorldState = (*State)(nil)

// New creates a state holding a copy of the given accounts.
func New(initial Accounts) *State {
	if initial == nil {
		initial = Accounts{}
	}
	return &State{
		committed: initial.Clone(),
		current:   initial.Clone(),
	}
}

func (s *State) GetAccount(address evm.Address) (evm.Account, bool) {
	account, found := s.current[address]
	if !found {
		return evm.Account{}, false
	}
	return evm.Account{
		Nonce:    account.Nonce,
		Balance:  account.Balance,
		CodeHash: account.CodeHash(),
	}, true
}

func (s *State) GetBalance(address evm.Address) evm.Value {
	return s.current[address].Balance
}

func (s *State) SetBalance(address evm.Address, value evm.Value) {
	s.modify(address, func(a *Account) { a.Balance = value })
}

func (s *State) GetNonce(address evm.Address) uint64 {
	return s.current[address].Nonce
}

func (s *State) IncrementNonce(address evm.Address) {
	s.modify(address, func(a *Account) { a.Nonce++ })
}

func (s *State) GetCode(address evm.Address) evm.Code {
	return bytes.Clone(s.current[address].Code)
}

func (s *State) SetCode(address evm.Address, code evm.Code) {
	code = bytes.Clone(code)
	s.modify(address, func(a *Account) { a.Code = code })
}

func (s *State) GetStorage(address evm.Address, key evm.Key) evm.Word {
	return s.current[address].Storage[key]
}

func (s *State) GetCommittedStorage(address evm.Address, key evm.Key) evm.Word {
	return s.committed[address].Storage[key]
}

// SetStorage updates a single slot in place and journals its previous value.
// Storage maps of current accounts are never shared with the committed
// accounts, see New and EndTransaction.
func (s *State) SetStorage(address evm.Address, key evm.Key, value evm.Word) {
	if s.current[address].Storage == nil {
		s.modify(address, func(a *Account) { a.Storage = Storage{} })
	}
	storage := s.current[address].Storage
	previous, present := storage[key]
	if value == (evm.Word{}) {
		delete(storage, key)
	} else {
		storage[key] = value
	}
	s.undo = append(s.undo, func() {
		if present {
			storage[key] = previous
		} else {
			delete(storage, key)
		}
	})
}

func (s *State) DeleteAccount(address evm.Address) {
	original, found := s.current[address]
	if !found {
		return
	}
	delete(s.current, address)
	s.undo = append(s.undo, func() { s.current[address] = original })
}

func (s *State) CreateSnapshot() evm.Snapshot {
	return evm.Snapshot(len(s.undo))
}

func (s *State) RestoreSnapshot(snapshot evm.Snapshot) {
	for len(s.undo) > int(snapshot) {
		s.undo[len(s.undo)-1]()
		s.undo = s.undo[:len(s.undo)-1]
	}
}

// EndTransaction commits all modifications. The current storage becomes the
// committed storage of the next transaction and all snapshots are
// invalidated.
func (s *State) EndTransaction() {
	s.committed = s.current.Clone()
	s.undo = nil
}

// Accounts returns a copy of the current content of the state.
func (s *State) Accounts() Accounts {
	return s.current.Clone()
}

// modify applies the given update to a copy of the account, creating it if
// needed, and journals the previous version.
func (s *State) modify(address evm.Address, update func(*Account)) {
	original, found := s.current[address]
	modified := original
	update(&modified)
	s.current[address] = modified
	s.undo = append(s.undo, func() {
		if found {
			s.current[address] = original
		} else {
			delete(s.current, address)
		}
	})
}

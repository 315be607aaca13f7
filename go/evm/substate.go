// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package evm

import (
	"bytes"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/slices"
)

// AccessStatus is an enum utilized to indicate cold and warm account or
// storage slot accesses.
type AccessStatus bool

const (
	ColdAccess AccessStatus = false
	WarmAccess AccessStatus = true
)

// Substate accumulates the side effects of a transaction that are not part
// of the world state: self-destructed accounts, emitted logs, touched
// accounts, the gas refund counter and the accessed accounts and storage
// slots. A single instance is shared by all frames of a transaction.
//
// Self-destructs, logs and the refund counter are journaled and rolled back
// by RevertToSnapshot. Touched and accessed entries are retained.
//
// A Substate is not safe for concurrent use.
type Substate struct {
	selfDestructs    mapset.Set[Address]
	logs             []Log
	touched          mapset.Set[Address]
	refund           Gas
	accessedAccounts mapset.Set[Address]
	accessedStorage  mapset.Set[slot]
	journal          []func()
}

type slot struct {
	address Address
	key     Key
}

func NewSubstate() *Substate {
	return &Substate{
		selfDestructs:    mapset.NewThreadUnsafeSet[Address](),
		touched:          mapset.NewThreadUnsafeSet[Address](),
		accessedAccounts: mapset.NewThreadUnsafeSet[Address](),
		accessedStorage:  mapset.NewThreadUnsafeSet[slot](),
	}
}

// Snapshot returns an identifier of the current journaled state.
func (s *Substate) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes all journaled changes made since the given
// snapshot was taken.
func (s *Substate) RevertToSnapshot(snapshot int) {
	for len(s.journal) > snapshot {
		last := len(s.journal) - 1
		s.journal[last]()
		s.journal = s.journal[:last]
	}
}

// AddSelfDestruct schedules the given account for deletion at the end of the
// transaction. It returns true if the account was not scheduled before.
func (s *Substate) AddSelfDestruct(address Address) bool {
	if !s.selfDestructs.Add(address) {
		return false
	}
	s.journal = append(s.journal, func() {
		s.selfDestructs.Remove(address)
	})
	return true
}

func (s *Substate) HasSelfDestructed(address Address) bool {
	return s.selfDestructs.Contains(address)
}

// SelfDestructs lists the scheduled accounts in ascending address order.
func (s *Substate) SelfDestructs() []Address {
	return sortedAddresses(s.selfDestructs)
}

func (s *Substate) AddLog(log Log) {
	s.logs = append(s.logs, log)
	s.journal = append(s.journal, func() {
		s.logs = s.logs[:len(s.logs)-1]
	})
}

// Logs returns the emitted logs in emission order.
func (s *Substate) Logs() []Log {
	return slices.Clone(s.logs)
}

func (s *Substate) Touch(address Address) {
	s.touched.Add(address)
}

// Touched lists the touched accounts in ascending address order.
func (s *Substate) Touched() []Address {
	return sortedAddresses(s.touched)
}

func (s *Substate) AddRefund(gas Gas) {
	s.refund += gas
	s.journal = append(s.journal, func() {
		s.refund -= gas
	})
}

func (s *Substate) SubRefund(gas Gas) {
	if gas > s.refund {
		panic("refund counter below zero")
	}
	s.refund -= gas
	s.journal = append(s.journal, func() {
		s.refund += gas
	})
}

func (s *Substate) Refund() Gas {
	return s.refund
}

// AccessAccount marks the given account as accessed and reports whether it
// was accessed before.
func (s *Substate) AccessAccount(address Address) AccessStatus {
	return AccessStatus(!s.accessedAccounts.Add(address))
}

// AccessStorage marks the given storage slot as accessed and reports whether
// it was accessed before. The owning account is marked as well.
func (s *Substate) AccessStorage(address Address, key Key) AccessStatus {
	s.accessedAccounts.Add(address)
	return AccessStatus(!s.accessedStorage.Add(slot{address, key}))
}

func (s *Substate) IsAccountAccessed(address Address) bool {
	return s.accessedAccounts.Contains(address)
}

func (s *Substate) IsSlotAccessed(address Address, key Key) bool {
	return s.accessedStorage.Contains(slot{address, key})
}

func sortedAddresses(set mapset.Set[Address]) []Address {
	res := set.ToSlice()
	slices.SortFunc(res, func(a, b Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return res
}

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

import "fmt"

//go:generate mockgen -source world_state.go -destination world_state_mock.go -package evm

// WorldState is an interface to access and manipulate the state of the block chain.
// The state of the chain is a collection of accounts, each with a balance, a nonce,
// optional code and storage. Modifications are journaled and may be rolled back
// to a snapshot.
type WorldState interface {
	// GetAccount returns the account stored at the given address and
	// whether it exists.
	GetAccount(Address) (Account, bool)

	GetBalance(Address) Value
	SetBalance(Address, Value)

	// IncrementNonce bumps the nonce of the given account, creating it if
	// needed.
	IncrementNonce(Address)

	GetCode(Address) Code
	SetCode(Address, Code)

	GetStorage(Address, Key) Word
	// GetCommittedStorage returns the value of a storage slot at the start
	// of the current transaction.
	GetCommittedStorage(Address, Key) Word
	SetStorage(Address, Key, Word)

	// DeleteAccount removes the account including its code and storage.
	DeleteAccount(Address)

	CreateSnapshot() Snapshot
	RestoreSnapshot(Snapshot)
}

// Snapshot is a type used to represent a snapshot of the world state in a
// transaction context.
type Snapshot int

// StorageStatus is an enum utilized to indicate the effect of a storage
// slot update on the respective slot in the context of the current
// transaction. It is needed to perform proper gas price calculations of
// SSTORE operations.
type StorageStatus int

const (
	// The comment indicates the storage values for the corresponding
	// configuration. X, Y, Z are non-zero numbers, distinct from each other,
	// while 0 is zero.
	//
	// <original> -> <current> -> <new>
	StorageAssigned         StorageStatus = iota
	StorageAdded                          // 0 -> 0 -> Z
	StorageDeleted                        // X -> X -> 0
	StorageModified                       // X -> X -> Z
	StorageDeletedAdded                   // X -> 0 -> Z
	StorageModifiedDeleted                // X -> Y -> 0
	StorageDeletedRestored                // X -> 0 -> X
	StorageAddedDeleted                   // 0 -> Y -> 0
	StorageModifiedRestored               // X -> Y -> X
)

func (s StorageStatus) String() string {
	switch s {
	case StorageAssigned:
		return "StorageAssigned"
	case StorageAdded:
		return "StorageAdded"
	case StorageAddedDeleted:
		return "StorageAddedDeleted"
	case StorageDeletedRestored:
		return "StorageDeletedRestored"
	case StorageDeletedAdded:
		return "StorageDeletedAdded"
	case StorageDeleted:
		return "StorageDeleted"
	case StorageModified:
		return "StorageModified"
	case StorageModifiedDeleted:
		return "StorageModifiedDeleted"
	case StorageModifiedRestored:
		return "StorageModifiedRestored"
	}
	return fmt.Sprintf("StorageStatus(%d)", s)
}

// GetStorageStatus classifies the update of a storage slot holding the given
// original (=committed) and current values to the new value.
func GetStorageStatus(original, current, new Word) StorageStatus {
	var zero = Word{}

	if current == new {
		return StorageAssigned
	}
	switch {
	case original == zero && current == zero:
		return StorageAdded
	case original == zero && new == zero:
		return StorageAddedDeleted
	case original == zero:
		return StorageAssigned
	case current == original && new == zero:
		return StorageDeleted
	case current == original:
		return StorageModified
	case current == zero && new == original:
		return StorageDeletedRestored
	case current == zero:
		return StorageDeletedAdded
	case new == zero:
		return StorageModifiedDeleted
	case new == original:
		return StorageModifiedRestored
	}
	return StorageAssigned
}

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
	"fmt"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/exp/maps"
)

// ----------------------------------------------------------------------------
// Accounts
// ----------------------------------------------------------------------------

// Accounts is a plain, non-journaled collection of accounts. It is used to
// describe the content of a State, for instance to seed it or to compare it
// against an expected outcome.
type Accounts map[evm.Address]Account

func (s Accounts) Equal(other Accounts) bool {
	if len(s) != len(other) {
		return false
	}
	for address, account := range s {
		otherAccount, found := other[address]
		if !found || !account.Equal(&otherAccount) {
			return false
		}
	}
	return true
}

func (s Accounts) Clone() Accounts {
	if s == nil {
		return nil
	}
	res := make(Accounts, len(s))
	for k, v := range s {
		res[k] = v.Clone()
	}
	return res
}

// Diff lists human-readable differences between the two collections.
func (s Accounts) Diff(other Accounts) []string {
	var res []string
	for address, a := range s {
		b, found := other[address]
		if !found {
			res = append(res, fmt.Sprintf("%v: missing in other", address))
			continue
		}
		res = append(res, a.Diff(fmt.Sprintf("%v/", address), &b)...)
	}
	for address := range other {
		if _, found := s[address]; !found {
			res = append(res, fmt.Sprintf("%v: missing in self", address))
		}
	}
	return res
}

// ----------------------------------------------------------------------------
// Account
// ----------------------------------------------------------------------------

// Account is the full content of an account in the in-memory state.
type Account struct {
	Balance evm.Value
	Nonce   uint64
	Code    evm.Code
	Storage Storage
}

func (a *Account) Equal(other *Account) bool {
	return a.Balance == other.Balance &&
		a.Nonce == other.Nonce &&
		bytes.Equal(a.Code, other.Code) &&
		a.Storage.Equal(other.Storage)
}

func (a *Account) Clone() Account {
	return Account{
		Balance: a.Balance,
		Nonce:   a.Nonce,
		Code:    bytes.Clone(a.Code),
		Storage: a.Storage.Clone(),
	}
}

// CodeHash returns the keccak256 hash of the account's code.
func (a *Account) CodeHash() evm.Hash {
	if len(a.Code) == 0 {
		return evm.EmptyCodeHash
	}
	return evm.Hash(crypto.Keccak256Hash(a.Code))
}

func (a *Account) Diff(prefix string, other *Account) []string {
	var res []string
	if a.Balance != other.Balance {
		res = append(res, fmt.Sprintf("different balance: %v != %v", a.Balance, other.Balance))
	}
	if a.Nonce != other.Nonce {
		res = append(res, fmt.Sprintf("different nonce: %v != %v", a.Nonce, other.Nonce))
	}
	if !bytes.Equal(a.Code, other.Code) {
		res = append(res, fmt.Sprintf("different code: 0x%x != 0x%x", a.Code, other.Code))
	}
	res = append(res, a.Storage.Diff(prefix+"Storage/", other.Storage)...)
	for i, diff := range res {
		res[i] = prefix + diff
	}
	return res
}

// ----------------------------------------------------------------------------
// Storage
// ----------------------------------------------------------------------------

// Storage represents the storage of an account. Zero-valued entries are
// ignored when comparing storages.
type Storage map[evm.Key]evm.Word

func (s Storage) Equal(other Storage) bool {
	return equalMapsIgnoringZero(s, other, func(a, b evm.Word) bool {
		return a == b
	})
}

func (s Storage) Clone() Storage {
	return maps.Clone(s)
}

func (s Storage) Diff(prefix string, other Storage) []string {
	return diffMaps(prefix, s, other, func(k evm.Key, a, b evm.Word) []string {
		if a == b {
			return nil
		}
		return []string{
			fmt.Sprintf("different value for key %v: %v != %v", k, a, b),
		}
	})
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

// equalMapsIgnoringZero compares two maps, ignoring zero-valued entries.
func equalMapsIgnoringZero[K comparable, V any](a, b map[K]V, equal func(V, V) bool) bool {
	for k, v := range a {
		if !equal(v, b[k]) {
			return false
		}
	}
	for k, v := range b {
		if !equal(v, a[k]) {
			return false
		}
	}
	return true
}

// diffMaps compares two maps and returns a list of differences.
func diffMaps[K comparable, V any](prefix string, a, b map[K]V, diff func(K, V, V) []string) []string {
	var diffs []string
	for k, v := range a {
		diffs = append(diffs, diff(k, v, b[k])...)
	}
	for k, v := range b {
		if _, overlap := a[k]; !overlap {
			diffs = append(diffs, diff(k, a[k], v)...)
		}
	}
	for i, diff := range diffs {
		diffs[i] = prefix + diff
	}
	return diffs
}

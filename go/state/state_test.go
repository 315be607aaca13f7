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
	"testing"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestState_MissingAccountsDoNotExist(t *testing.T) {
	s := New(nil)
	if _, found := s.GetAccount(evm.Address{1}); found {
		t.Errorf("account should not exist")
	}
	if want, got := (evm.Value{}), s.GetBalance(evm.Address{1}); want != got {
		t.Errorf("unexpected balance, wanted %v, got %v", want, got)
	}
	if got := s.GetCode(evm.Address{1}); len(got) != 0 {
		t.Errorf("unexpected code %x", got)
	}
}

func TestState_InitialAccountsAreCopied(t *testing.T) {
	initial := Accounts{
		{1}: {Balance: evm.NewValue(5), Storage: Storage{{1}: {2}}},
	}
	s := New(initial)
	s.SetStorage(evm.Address{1}, evm.Key{1}, evm.Word{3})
	if want, got := (evm.Word{2}), initial[evm.Address{1}].Storage[evm.Key{1}]; want != got {
		t.Errorf("initial accounts were modified, wanted %v, got %v", want, got)
	}
}

func TestState_GetAccountReportsCodeHash(t *testing.T) {
	code := evm.Code{0x60, 0x01}
	s := New(Accounts{
		{1}: {Nonce: 1},
		{2}: {Code: code},
	})

	account, found := s.GetAccount(evm.Address{1})
	if !found {
		t.Fatalf("account not found")
	}
	if want, got := evm.EmptyCodeHash, account.CodeHash; want != got {
		t.Errorf("unexpected code hash, wanted %v, got %v", want, got)
	}

	account, _ = s.GetAccount(evm.Address{2})
	if want, got := evm.Hash(crypto.Keccak256Hash(code)), account.CodeHash; want != got {
		t.Errorf("unexpected code hash, wanted %v, got %v", want, got)
	}
	if !account.IsContract() {
		t.Errorf("account with code should be a contract")
	}
}

func TestState_ModificationsCreateAccounts(t *testing.T) {
	tests := map[string]func(*State, evm.Address){
		"balance": func(s *State, a evm.Address) { s.SetBalance(a, evm.NewValue(1)) },
		"nonce":   func(s *State, a evm.Address) { s.IncrementNonce(a) },
		"code":    func(s *State, a evm.Address) { s.SetCode(a, evm.Code{1}) },
		"storage": func(s *State, a evm.Address) { s.SetStorage(a, evm.Key{1}, evm.Word{1}) },
	}

	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			s := New(nil)
			modify(s, evm.Address{1})
			if _, found := s.GetAccount(evm.Address{1}); !found {
				t.Errorf("account was not created")
			}
		})
	}
}

func TestState_SnapshotsRevertModifications(t *testing.T) {
	address := evm.Address{1}
	s := New(Accounts{
		address: {Balance: evm.NewValue(10), Storage: Storage{{1}: {1}}},
	})
	before := s.Accounts()

	snapshot := s.CreateSnapshot()
	s.SetBalance(address, evm.NewValue(20))
	s.IncrementNonce(address)
	s.SetCode(address, evm.Code{0xFF})
	s.SetStorage(address, evm.Key{1}, evm.Word{2})
	s.SetStorage(address, evm.Key{2}, evm.Word{3})
	s.SetBalance(evm.Address{2}, evm.NewValue(1))

	inner := s.CreateSnapshot()
	s.DeleteAccount(address)
	if _, found := s.GetAccount(address); found {
		t.Fatalf("account was not deleted")
	}
	s.RestoreSnapshot(inner)
	if want, got := uint64(1), s.GetNonce(address); want != got {
		t.Errorf("deletion was not reverted, wanted nonce %d, got %d", want, got)
	}

	s.RestoreSnapshot(snapshot)
	if after := s.Accounts(); !before.Equal(after) {
		t.Errorf("modifications were not reverted: %v", before.Diff(after))
	}
	if _, found := s.GetAccount(evm.Address{2}); found {
		t.Errorf("created account was not removed")
	}
}

func TestState_StorageUpdatesAreRevertedSlotBySlot(t *testing.T) {
	address := evm.Address{1}
	s := New(Accounts{
		address: {Storage: Storage{{1}: {1}, {2}: {2}}},
	})

	first := s.CreateSnapshot()
	s.SetStorage(address, evm.Key{1}, evm.Word{10})
	second := s.CreateSnapshot()
	s.SetStorage(address, evm.Key{1}, evm.Word{20})
	s.SetStorage(address, evm.Key{2}, evm.Word{})
	s.SetStorage(address, evm.Key{3}, evm.Word{30})

	s.RestoreSnapshot(second)
	tests := map[evm.Key]evm.Word{
		{1}: {10},
		{2}: {2},
		{3}: {},
	}
	for key, want := range tests {
		if got := s.GetStorage(address, key); want != got {
			t.Errorf("unexpected value of slot %v, wanted %v, got %v", key, want, got)
		}
	}

	s.RestoreSnapshot(first)
	if want, got := (evm.Word{1}), s.GetStorage(address, evm.Key{1}); want != got {
		t.Errorf("unexpected value, wanted %v, got %v", want, got)
	}
	if want, got := (evm.Word{1}), s.GetCommittedStorage(address, evm.Key{1}); want != got {
		t.Errorf("committed storage was modified, wanted %v, got %v", want, got)
	}
}

func TestState_StorageOfRecreatedAccountIsIndependent(t *testing.T) {
	address := evm.Address{1}
	s := New(Accounts{
		address: {Storage: Storage{{1}: {1}}},
	})

	snapshot := s.CreateSnapshot()
	s.DeleteAccount(address)
	s.SetStorage(address, evm.Key{2}, evm.Word{2})
	if want, got := (evm.Word{}), s.GetStorage(address, evm.Key{1}); want != got {
		t.Errorf("recreated account should have empty storage, got %v", got)
	}

	s.RestoreSnapshot(snapshot)
	if want, got := (evm.Word{1}), s.GetStorage(address, evm.Key{1}); want != got {
		t.Errorf("unexpected value, wanted %v, got %v", want, got)
	}
	if want, got := (evm.Word{}), s.GetStorage(address, evm.Key{2}); want != got {
		t.Errorf("slot of recreated account survived the revert, got %v", got)
	}
}

func TestState_CommittedStorageIsValueAtTransactionStart(t *testing.T) {
	address := evm.Address{1}
	key := evm.Key{1}
	s := New(Accounts{address: {Storage: Storage{key: {1}}}})

	s.SetStorage(address, key, evm.Word{2})
	if want, got := (evm.Word{1}), s.GetCommittedStorage(address, key); want != got {
		t.Errorf("unexpected committed value, wanted %v, got %v", want, got)
	}
	if want, got := (evm.Word{2}), s.GetStorage(address, key); want != got {
		t.Errorf("unexpected current value, wanted %v, got %v", want, got)
	}

	s.EndTransaction()
	if want, got := (evm.Word{2}), s.GetCommittedStorage(address, key); want != got {
		t.Errorf("unexpected committed value after commit, wanted %v, got %v", want, got)
	}
}

func TestState_EndTransactionMakesChangesPermanent(t *testing.T) {
	s := New(nil)
	snapshot := s.CreateSnapshot()
	s.SetBalance(evm.Address{1}, evm.NewValue(1))
	s.EndTransaction()
	s.RestoreSnapshot(snapshot)
	if want, got := evm.NewValue(1), s.GetBalance(evm.Address{1}); want != got {
		t.Errorf("committed change was reverted, wanted %v, got %v", want, got)
	}
}

func TestState_SettingZeroRemovesStorageEntry(t *testing.T) {
	address := evm.Address{1}
	s := New(nil)
	s.SetStorage(address, evm.Key{1}, evm.Word{1})
	s.SetStorage(address, evm.Key{1}, evm.Word{})
	if want, got := 0, len(s.Accounts()[address].Storage); want != got {
		t.Errorf("unexpected number of storage entries, wanted %d, got %d", want, got)
	}
}

func TestState_CodeIsCopied(t *testing.T) {
	code := evm.Code{1, 2, 3}
	s := New(nil)
	s.SetCode(evm.Address{1}, code)
	code[0] = 9
	if want, got := (evm.Code{1, 2, 3}), s.GetCode(evm.Address{1}); !bytes.Equal(want, got) {
		t.Errorf("unexpected code, wanted %x, got %x", want, got)
	}
}

func TestAccounts_DiffListsDifferences(t *testing.T) {
	a := Accounts{
		{1}: {Balance: evm.NewValue(1), Storage: Storage{{1}: {1}}},
		{2}: {},
	}
	b := Accounts{
		{1}: {Balance: evm.NewValue(2), Storage: Storage{{1}: {2}}},
		{3}: {},
	}
	if a.Equal(b) {
		t.Errorf("accounts should differ")
	}
	if want, got := 4, len(a.Diff(b)); want != got {
		t.Errorf("unexpected number of differences, wanted %d, got %d: %v", want, got, a.Diff(b))
	}
	if !a.Equal(a.Clone()) {
		t.Errorf("clone should be equal")
	}
}

func TestStorage_ZeroEntriesAreIgnoredInComparison(t *testing.T) {
	a := Storage{{1}: {}}
	b := Storage{}
	if !a.Equal(b) || !b.Equal(a) {
		t.Errorf("zero entries should be ignored")
	}
}

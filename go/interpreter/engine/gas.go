// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package engine

import (
	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/Fantom-foundation/evmcore/go/evm/vm"
)

const (
	CallNewAccountGas    evm.Gas = 25000 // Paid for CALL when the destination address is empty.
	CallValueTransferGas evm.Gas = 9000  // Paid for CALL when the value transfer is non-zero.
	CallStipend          evm.Gas = 2300  // Free gas given at beginning of call.

	ColdSloadCost         evm.Gas = 2100 // Cost of a cold SLOAD (EIP-2929)
	ColdAccountAccessCost evm.Gas = 2600 // Cost of a cold account access (EIP-2929)
	WarmStorageReadCost   evm.Gas = 100  // Cost of reading warm storage (EIP-2929)

	CreateBySelfdestructGas evm.Gas = 25000
	SelfdestructRefundGas   evm.Gas = 24000

	SstoreSentryGas            evm.Gas = 2300  // Minimum gas required to be present for an SSTORE call, not consumed
	SstoreSetGas               evm.Gas = 20000 // Once per SSTORE operation from clean zero to non-zero
	SstoreResetGas             evm.Gas = 5000 - ColdSloadCost
	SstoreClearsScheduleRefund evm.Gas = 15000

	ExpByteGas     evm.Gas = 50 // Per byte of the exponent
	Sha3WordGas    evm.Gas = 6  // Per word of hashed data
	CopyGas        evm.Gas = 3  // Per word of copied data
	LogDataGas     evm.Gas = 8  // Per byte of log data
	Create2WordGas evm.Gas = 6  // Per word of init code hashed by CREATE2
)

const coldAccountSurcharge = ColdAccountAccessCost - vm.GasWarmAccess

const maxCallDepth = 1024

// getAccessCost returns the dynamic costs of accessing an account on top of
// the warm access costs included in the static gas of an instruction.
func getAccessCost(accessStatus evm.AccessStatus) evm.Gas {
	if accessStatus == evm.ColdAccess {
		return coldAccountSurcharge
	}
	return 0
}

// sstoreCosts lists the dynamic costs of an SSTORE operation for each kind
// of storage update, excluding cold access costs (EIP-2200, EIP-2929).
var sstoreCosts = map[evm.StorageStatus]evm.Gas{
	evm.StorageAssigned:         WarmStorageReadCost,
	evm.StorageAdded:            SstoreSetGas,
	evm.StorageDeleted:          SstoreResetGas,
	evm.StorageModified:         SstoreResetGas,
	evm.StorageDeletedAdded:     WarmStorageReadCost,
	evm.StorageModifiedDeleted:  WarmStorageReadCost,
	evm.StorageDeletedRestored:  WarmStorageReadCost,
	evm.StorageAddedDeleted:     WarmStorageReadCost,
	evm.StorageModifiedRestored: WarmStorageReadCost,
}

// sstoreRefunds lists the changes to the refund counter caused by an SSTORE
// operation for each kind of storage update.
var sstoreRefunds = map[evm.StorageStatus]int64{
	evm.StorageDeleted:          int64(SstoreClearsScheduleRefund),
	evm.StorageDeletedAdded:     -int64(SstoreClearsScheduleRefund),
	evm.StorageModifiedDeleted:  int64(SstoreClearsScheduleRefund),
	evm.StorageDeletedRestored:  -int64(SstoreClearsScheduleRefund) + int64(5000-ColdSloadCost-WarmStorageReadCost),
	evm.StorageAddedDeleted:     int64(SstoreSetGas - WarmStorageReadCost),
	evm.StorageModifiedRestored: int64(5000 - ColdSloadCost - WarmStorageReadCost),
}

// callGas computes the gas forwarded to a nested call: all but one 64th of
// the available gas, capped at the requested amount (EIP-150).
func callGas(available evm.Gas, requested uint64, requestedIsUint64 bool) evm.Gas {
	limit := available - available/64
	if requestedIsUint64 && requested < uint64(limit) {
		return evm.Gas(requested)
	}
	return limit
}

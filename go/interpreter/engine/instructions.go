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
	"math"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/holiman/uint256"
)

func opEndWithResult(c *context) error {
	offset, size := c.stack.pop(), c.stack.pop()
	offset64, size64, err := c.expandMemory(offset, size)
	if err != nil {
		return err
	}
	c.output, _ = c.memory.Load(offset64, size64)
	return nil
}

func opPc(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.pc))
}

// jumpTo sets the program counter such that the next executed instruction
// is the given destination, which must be a JUMPDEST.
func jumpTo(c *context, destination *uint256.Int) error {
	if !destination.IsUint64() || !isJumpDest(c.code, c.analysis, destination.Uint64()) {
		return evm.ErrInvalidJump
	}
	// The program counter is incremented after the instruction.
	c.pc = int(destination.Uint64()) - 1
	return nil
}

func opJump(c *context) error {
	return jumpTo(c, c.stack.pop())
}

func opJumpi(c *context) error {
	destination, condition := c.stack.pop(), c.stack.pop()
	if condition.IsZero() {
		return nil
	}
	return jumpTo(c, destination)
}

func opPop(c *context) {
	c.stack.pop()
}

// opPush pushes the n bytes following the current instruction. Bytes beyond
// the end of the code read as zero.
func opPush(c *context, n int) {
	start := c.pc + 1
	end := min(start+n, len(c.code))
	var value [32]byte
	if start < end {
		copy(value[:], c.code[start:end])
	}
	c.stack.pushUndefined().SetBytes(value[:n])
	c.pc += n
}

func opDup(c *context, pos int) {
	c.stack.dup(pos - 1)
}

func opSwap(c *context, pos int) {
	c.stack.swap(pos)
}

func opMload(c *context) error {
	top := c.stack.peek()
	if !top.IsUint64() {
		return evm.ErrGasUintOverflow
	}
	offset := top.Uint64()
	if err := c.chargeMemory(offset, 32); err != nil {
		return err
	}
	top.SetBytes32(c.memory.getSlice(offset, 32))
	return nil
}

func opMstore(c *context) error {
	offset, value := c.stack.pop(), c.stack.pop()
	if !offset.IsUint64() {
		return evm.ErrGasUintOverflow
	}
	if err := c.chargeMemory(offset.Uint64(), 32); err != nil {
		return err
	}
	c.memory.StoreWord(offset.Uint64(), value)
	return nil
}

func opMstore8(c *context) error {
	offset, value := c.stack.pop(), c.stack.pop()
	if !offset.IsUint64() {
		return evm.ErrGasUintOverflow
	}
	if err := c.chargeMemory(offset.Uint64(), 1); err != nil {
		return err
	}
	c.memory.StoreByte(offset.Uint64(), byte(value.Uint64()))
	return nil
}

func opMsize(c *context) {
	c.stack.pushUndefined().SetUint64(c.memory.Len())
}

func opSload(c *context) error {
	top := c.stack.peek()
	key := evm.Key(top.Bytes32())

	cost := WarmStorageReadCost
	if c.substate.AccessStorage(c.env.Address, key) == evm.ColdAccess {
		cost = ColdSloadCost
	}
	if err := c.useGas(cost); err != nil {
		return err
	}
	value := c.context.GetStorage(c.env.Address, key)
	top.SetBytes32(value[:])
	return nil
}

func opSstore(c *context) error {
	// SSTORE is a write instruction, it shall not be executed in static mode.
	if !c.env.WriteAccess {
		return evm.ErrWriteProtection
	}

	// EIP-2200 demands that at least 2300 gas is available for SSTORE.
	if c.gas <= SstoreSentryGas {
		return evm.ErrOutOfGas
	}

	key := evm.Key(c.stack.pop().Bytes32())
	value := evm.Word(c.stack.pop().Bytes32())

	cost := evm.Gas(0)
	if c.substate.AccessStorage(c.env.Address, key) == evm.ColdAccess {
		cost += ColdSloadCost
	}

	original := c.context.GetCommittedStorage(c.env.Address, key)
	current := c.context.GetStorage(c.env.Address, key)
	storageStatus := evm.GetStorageStatus(original, current, value)

	cost += sstoreCosts[storageStatus]
	if err := c.useGas(cost); err != nil {
		return err
	}

	if current != value {
		c.context.SetStorage(c.env.Address, key, value)
	}
	if refund := sstoreRefunds[storageStatus]; refund > 0 {
		c.substate.AddRefund(evm.Gas(refund))
	} else if refund < 0 {
		c.substate.SubRefund(evm.Gas(-refund))
	}
	return nil
}

func opCaller(c *context) {
	c.stack.pushUndefined().SetBytes20(c.env.Caller[:])
}

func opCallvalue(c *context) {
	c.stack.pushUndefined().SetBytes32(c.env.Value[:])
}

func opCallDatasize(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(len(c.env.Input)))
}

func opCallDataload(c *context) {
	top := c.stack.peek()
	if !top.IsUint64() {
		top.Clear()
		return
	}
	top.SetBytes32(getData(c.env.Input, top.Uint64(), 32))
}

// genericDataCopy implements CALLDATACOPY and CODECOPY, copying a range of
// the given data into memory. Bytes beyond the end of the data read as zero.
func genericDataCopy(c *context, data []byte) error {
	var (
		memOffset  = c.stack.pop()
		dataOffset = c.stack.pop()
		length     = c.stack.pop()
	)

	offset, size, err := c.expandMemory(memOffset, length)
	if err != nil {
		return err
	}

	// Charge for length of copied data
	if err := c.useGas(CopyGas * evm.Gas(evm.SizeInWords(size))); err != nil {
		return err
	}

	start, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		start = math.MaxUint64
	}
	c.memory.Store(offset, getData(data, start, size))
	return nil
}

// getData returns size bytes of data starting at the given position. The
// result is right-padded with zeros if the range exceeds the data.
func getData(data []byte, start uint64, size uint64) []byte {
	length := uint64(len(data))
	if start > length {
		start = length
	}
	end := start + size
	if end > length || end < start {
		end = length
	}
	res := make([]byte, int(size))
	copy(res, data[start:end])
	return res
}

func opAnd(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.And(a, b)
}

func opOr(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Or(a, b)
}

func opNot(c *context) {
	a := c.stack.peek()
	a.Not(a)
}

func opXor(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Xor(a, b)
}

func opIszero(c *context) {
	top := c.stack.peek()
	if top.IsZero() {
		top.SetOne()
	} else {
		top.Clear()
	}
}

// setBool sets the given value to 1 if the condition holds, to 0 otherwise.
func setBool(z *uint256.Int, condition bool) {
	if condition {
		z.SetOne()
	} else {
		z.Clear()
	}
}

func opEq(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Eq(b))
}

func opLt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Lt(b))
}

func opGt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Gt(b))
}

func opSlt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Slt(b))
}

func opSgt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Sgt(b))
}

func opShr(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.LtUint64(256) {
		b.Rsh(b, uint(a.Uint64()))
	} else {
		b.Clear()
	}
}

func opShl(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.LtUint64(256) {
		b.Lsh(b, uint(a.Uint64()))
	} else {
		b.Clear()
	}
}

func opSar(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.GtUint64(256) {
		if b.Sign() >= 0 {
			b.Clear()
		} else {
			b.SetAllOne()
		}
		return
	}
	b.SRsh(b, uint(a.Uint64()))
}

func opSignExtend(c *context) {
	back, num := c.stack.pop(), c.stack.peek()
	num.ExtendSign(num, back)
}

func opByte(c *context) {
	th, val := c.stack.pop(), c.stack.peek()
	val.Byte(th)
}

func opAdd(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Add(a, b)
}

func opSub(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Sub(a, b)
}

func opMul(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Mul(a, b)
}

func opMulMod(c *context) {
	a := c.stack.pop()
	b := c.stack.pop()
	n := c.stack.peek()
	n.MulMod(a, b, n)
}

func opDiv(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Div(a, b)
}

func opSDiv(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.SDiv(a, b)
}

func opMod(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Mod(a, b)
}

func opAddMod(c *context) {
	a := c.stack.pop()
	b := c.stack.pop()
	n := c.stack.peek()
	n.AddMod(a, b, n)
}

func opSMod(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.SMod(a, b)
}

func opExp(c *context) error {
	base, exponent := c.stack.pop(), c.stack.peek()
	if err := c.useGas(ExpByteGas * evm.Gas(exponent.ByteLen())); err != nil {
		return err
	}
	exponent.Exp(base, exponent)
	return nil
}

// Cache hashes since identical values are frequently re-hashed.
var sha3Cache = newSha3HashCache(1<<16, 1<<18)

func opSha3(c *context) error {
	offset, size := c.stack.pop(), c.stack.peek()

	offset64, size64, err := c.expandMemory(offset, size)
	if err != nil {
		return err
	}

	// charge dynamic gas price
	if err := c.useGas(Sha3WordGas * evm.Gas(evm.SizeInWords(size64))); err != nil {
		return err
	}

	data := c.memory.getSlice(offset64, size64)
	var hash evm.Hash
	if c.withShaCache {
		hash = sha3Cache.hash(data)
	} else {
		hash = Keccak256(data)
	}
	size.SetBytes32(hash[:])
	return nil
}

func opGas(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.gas))
}

func opDifficulty(c *context) {
	difficulty := c.env.Header.Difficulty
	c.stack.pushUndefined().SetBytes32(difficulty[:])
}

func opTimestamp(c *context) {
	c.stack.pushUndefined().SetUint64(c.env.Header.Timestamp)
}

func opNumber(c *context) {
	c.stack.pushUndefined().SetUint64(c.env.Header.Number)
}

func opCoinbase(c *context) {
	c.stack.pushUndefined().SetBytes20(c.env.Header.Coinbase[:])
}

func opGasLimit(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.env.Header.GasLimit))
}

func opGasPrice(c *context) {
	c.stack.pushUndefined().SetBytes32(c.env.GasPrice[:])
}

func opBalance(c *context) error {
	top := c.stack.peek()
	address := evm.Address(top.Bytes20())
	if err := c.useGas(getAccessCost(c.substate.AccessAccount(address))); err != nil {
		return err
	}
	balance := c.context.GetBalance(address)
	top.SetBytes32(balance[:])
	return nil
}

func opSelfbalance(c *context) {
	balance := c.context.GetBalance(c.env.Address)
	c.stack.pushUndefined().SetBytes32(balance[:])
}

func opSelfdestruct(c *context) (status, error) {
	// SELFDESTRUCT is a write instruction, it shall not be executed in static mode.
	if !c.env.WriteAccess {
		return statusRunning, evm.ErrWriteProtection
	}

	beneficiary := evm.Address(c.stack.pop().Bytes20())
	balance := c.context.GetBalance(c.env.Address)

	cost := evm.Gas(0)
	// EIP-2929 does not charge warm access costs for SELFDESTRUCT.
	if c.substate.AccessAccount(beneficiary) == evm.ColdAccess {
		cost += ColdAccountAccessCost
	}
	if !balance.IsZero() && isEmpty(c.context, beneficiary) {
		cost += CreateBySelfdestructGas
	}
	if err := c.useGas(cost); err != nil {
		return statusRunning, err
	}

	if !c.substate.HasSelfDestructed(c.env.Address) {
		c.substate.AddRefund(SelfdestructRefundGas)
	}

	// The balance is moved to the beneficiary. If the beneficiary is the
	// destructed account itself, the balance is burned.
	if beneficiary != c.env.Address {
		c.context.SetBalance(beneficiary, evm.Add(c.context.GetBalance(beneficiary), balance))
	}
	c.substate.Touch(beneficiary)
	c.context.SetBalance(c.env.Address, evm.Value{})
	c.substate.AddSelfDestruct(c.env.Address)
	return statusSelfDestructed, nil
}

// isEmpty reports whether the given account is non-existent or empty as
// defined by EIP-161.
func isEmpty(state evm.WorldState, address evm.Address) bool {
	account, exists := state.GetAccount(address)
	return !exists || account.IsEmpty()
}

func opChainId(c *context) {
	id := c.env.ChainID
	c.stack.pushUndefined().SetBytes32(id[:])
}

func opBlockhash(c *context) {
	num := c.stack.peek()
	num64, overflow := num.Uint64WithOverflow()
	if overflow {
		num.Clear()
		return
	}
	var upper, lower uint64
	upper = c.env.Header.Number
	if upper < 257 {
		lower = 0
	} else {
		lower = upper - 256
	}
	if num64 >= lower && num64 < upper {
		hash := c.context.GetBlockHash(num64)
		num.SetBytes32(hash[:])
	} else {
		num.Clear()
	}
}

func opAddress(c *context) {
	c.stack.pushUndefined().SetBytes20(c.env.Address[:])
}

func opOrigin(c *context) {
	c.stack.pushUndefined().SetBytes20(c.env.Origin[:])
}

func opCodeSize(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(len(c.code)))
}

func opExtcodesize(c *context) error {
	top := c.stack.peek()
	address := evm.Address(top.Bytes20())
	if err := c.useGas(getAccessCost(c.substate.AccessAccount(address))); err != nil {
		return err
	}
	top.SetUint64(uint64(len(c.context.GetCode(address))))
	return nil
}

func opExtcodehash(c *context) error {
	top := c.stack.peek()
	address := evm.Address(top.Bytes20())
	if err := c.useGas(getAccessCost(c.substate.AccessAccount(address))); err != nil {
		return err
	}
	account, exists := c.context.GetAccount(address)
	switch {
	case !exists || account.IsEmpty():
		top.Clear()
	case account.CodeHash == (evm.Hash{}):
		top.SetBytes32(evm.EmptyCodeHash[:])
	default:
		top.SetBytes32(account.CodeHash[:])
	}
	return nil
}

func opExtCodeCopy(c *context) error {
	var (
		a          = c.stack.pop()
		memOffset  = c.stack.pop()
		codeOffset = c.stack.pop()
		length     = c.stack.pop()
	)

	address := evm.Address(a.Bytes20())
	if err := c.useGas(getAccessCost(c.substate.AccessAccount(address))); err != nil {
		return err
	}

	offset, size, err := c.expandMemory(memOffset, length)
	if err != nil {
		return err
	}

	// Charge for length of copied code
	if err := c.useGas(CopyGas * evm.Gas(evm.SizeInWords(size))); err != nil {
		return err
	}

	start, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		start = math.MaxUint64
	}
	c.memory.Store(offset, getData(c.context.GetCode(address), start, size))
	return nil
}

// canTransfer reports whether the executing account holds at least the
// given value.
func canTransfer(c *context, value *uint256.Int) bool {
	if value.IsZero() {
		return true
	}
	balance := c.context.GetBalance(c.env.Address)
	return !balance.ToUint256().Lt(value)
}

func genericCreate(c *context, kind evm.CallKind) error {
	// CREATE is a write instruction, it shall not be executed in static mode.
	if !c.env.WriteAccess {
		return evm.ErrWriteProtection
	}

	var (
		value  = c.stack.pop()
		offset = c.stack.pop()
		size   = c.stack.pop()
		salt   = evm.Hash{}
	)
	if kind == evm.Create2 {
		salt = c.stack.pop().Bytes32()
	}

	offset64, size64, err := c.expandMemory(offset, size)
	if err != nil {
		return err
	}

	if kind == evm.Create2 {
		// Charge for hashing the init code to compute the target address.
		if err := c.useGas(Create2WordGas * evm.Gas(evm.SizeInWords(size64))); err != nil {
			return err
		}
	}

	if c.env.Depth >= maxCallDepth || !canTransfer(c, value) {
		c.stack.pushUndefined().Clear()
		c.returnData = nil
		return nil
	}

	// Apply EIP-150
	gas := c.gas - c.gas/64
	if err := c.useGas(gas); err != nil {
		return err
	}

	input, _ := c.memory.Load(offset64, size64)
	res, err := c.context.Call(kind, evm.CallParameters{
		Sender: c.env.Address,
		Value:  evm.Value(value.Bytes32()),
		Input:  input,
		Gas:    gas,
		Salt:   salt,
		Depth:  c.env.Depth + 1,
	})

	success := c.stack.pushUndefined()
	if !res.Success || err != nil {
		success.Clear()
	} else {
		success.SetBytes20(res.CreatedAddress[:])
	}

	if !res.Success && err == nil {
		c.returnData = res.Output
	} else {
		c.returnData = nil
	}
	c.gas += res.GasLeft
	return nil
}

func opCall(c *context) error {
	// Transferring value is a state modification.
	if !c.env.WriteAccess && !c.stack.peekN(2).IsZero() {
		return evm.ErrWriteProtection
	}
	return genericCall(c, evm.Call)
}

func genericCall(c *context, kind evm.CallKind) error {
	stack := c.stack
	value := uint256.NewInt(0)

	// Pop call parameters.
	providedGas, addr := stack.pop(), stack.pop()
	if kind == evm.Call || kind == evm.CallCode {
		value = stack.pop()
	}
	inOffset, inSize, retOffset, retSize := stack.pop(), stack.pop(), stack.pop(), stack.pop()

	toAddr := evm.Address(addr.Bytes20())

	// Both ranges are expanded, the costs are the ones of the larger range.
	inOffset64, inSize64, err := c.expandMemory(inOffset, inSize)
	if err != nil {
		return err
	}
	retOffset64, retSize64, err := c.expandMemory(retOffset, retSize)
	if err != nil {
		return err
	}

	if err := c.useGas(getAccessCost(c.substate.AccessAccount(toAddr))); err != nil {
		return err
	}

	// For static and delegate calls the value is always zero.
	if !value.IsZero() {
		if err := c.useGas(CallValueTransferGas); err != nil {
			return err
		}
	}

	// EIP-158 charges non-zero value calls that create a new account.
	if kind == evm.Call && !value.IsZero() && isEmpty(c.context, toAddr) {
		if err := c.useGas(CallNewAccountGas); err != nil {
			return err
		}
	}

	nestedCallGas := callGas(c.gas, providedGas.Uint64(), providedGas.IsUint64())
	if err := c.useGas(nestedCallGas); err != nil {
		return err
	}
	if !value.IsZero() {
		nestedCallGas += CallStipend
	}

	// Calls that can not be started return the forwarded gas.
	if c.env.Depth >= maxCallDepth || !canTransfer(c, value) {
		stack.pushUndefined().Clear()
		c.returnData = nil
		c.gas += nestedCallGas
		return nil
	}

	// Calls from a static frame stay static.
	if !c.env.WriteAccess && kind == evm.Call {
		kind = evm.StaticCall
	}

	input, _ := c.memory.Load(inOffset64, inSize64)
	params := evm.CallParameters{
		Input:       input,
		Gas:         nestedCallGas,
		Value:       evm.Value(value.Bytes32()),
		CodeAddress: toAddr,
		Depth:       c.env.Depth + 1,
		Static:      !c.env.WriteAccess || kind == evm.StaticCall,
	}

	switch kind {
	case evm.Call, evm.StaticCall:
		params.Sender = c.env.Address
		params.Recipient = toAddr
	case evm.CallCode:
		params.Sender = c.env.Address
		params.Recipient = c.env.Address
	case evm.DelegateCall:
		params.Sender = c.env.Caller
		params.Recipient = c.env.Address
		params.Value = c.env.Value
	}

	ret, err := c.context.Call(kind, params)

	success := stack.pushUndefined()
	if err != nil {
		success.Clear()
		c.returnData = nil
		return nil
	}

	output := ret.Output
	if uint64(len(output)) > retSize64 {
		output = output[:retSize64]
	}
	c.memory.Store(retOffset64, output)

	setBool(success, ret.Success)
	c.gas += ret.GasLeft
	c.returnData = ret.Output
	return nil
}

func opReturnDataSize(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(len(c.returnData)))
}

func opReturnDataCopy(c *context) error {
	var (
		memOffset  = c.stack.pop()
		dataOffset = c.stack.pop()
		length     = c.stack.pop()
	)

	offset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		return evm.ErrReturnDataOutOfBounds
	}
	// we can reuse dataOffset now (aliasing it for clarity)
	var end = dataOffset
	end.Add(dataOffset, length)
	end64, overflow := end.Uint64WithOverflow()
	if overflow || uint64(len(c.returnData)) < end64 {
		return evm.ErrReturnDataOutOfBounds
	}

	memOffset64, size64, err := c.expandMemory(memOffset, length)
	if err != nil {
		return err
	}

	if err := c.useGas(CopyGas * evm.Gas(evm.SizeInWords(size64))); err != nil {
		return err
	}

	c.memory.Store(memOffset64, c.returnData[offset64:end64])
	return nil
}

func opLog(c *context, size int) error {
	// LOGn op codes are write instructions, they shall not be executed in static mode.
	if !c.env.WriteAccess {
		return evm.ErrWriteProtection
	}

	stack := c.stack
	mStart, mSize := stack.pop(), stack.pop()

	topics := make([]evm.Hash, size)
	for i := 0; i < size; i++ {
		topics[i] = stack.pop().Bytes32()
	}

	start, logSize, err := c.expandMemory(mStart, mSize)
	if err != nil {
		return err
	}

	// charge for log size
	if err := c.useGas(LogDataGas * evm.Gas(logSize)); err != nil {
		return err
	}

	data, _ := c.memory.Load(start, logSize)
	c.substate.AddLog(evm.Log{
		Address: c.env.Address,
		Topics:  topics,
		Data:    data,
	})
	return nil
}

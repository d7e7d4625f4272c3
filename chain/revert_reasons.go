package chain

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common/hexutil"
)

// Panic codes Solidity places in `Panic(uint256)` return data.
// Reference: https://docs.soliditylang.org/en/latest/control-structures.html#panic-via-assert-and-error-via-require
const (
	PanicCodeCompilerInserted              = 0x00
	PanicCodeAssertFailed                  = 0x01
	PanicCodeArithmeticUnderOverflow       = 0x11
	PanicCodeDivideByZero                  = 0x12
	PanicCodeEnumTypeConversionOutOfBounds = 0x21
	PanicCodeIncorrectStorageAccess        = 0x22
	PanicCodePopEmptyArray                 = 0x31
	PanicCodeOutOfBoundsArrayAccess        = 0x32
	PanicCodeAllocateTooMuchMemory         = 0x41
	PanicCodeCallUninitializedVariable     = 0x51
)

var (
	errorStringMethod = newRevertMethod("Error", "string")
	panicCodeMethod   = newRevertMethod("Panic", "uint256")
)

func newRevertMethod(name string, argType string) abi.Method {
	typ, _ := abi.NewType(argType, "", nil)
	return abi.NewMethod(name, name, abi.Function, "", false, false, []abi.Argument{{Type: typ}}, abi.Arguments{})
}

// GetSolidityRevertErrorString obtains the message of an `Error(string)` revert, or nil if the revert data is not
// one.
func GetSolidityRevertErrorString(returnData []byte) *string {
	if len(returnData) <= 4 || !bytes.Equal(returnData[:4], errorStringMethod.ID) {
		return nil
	}
	values, err := errorStringMethod.Inputs.Unpack(returnData[4:])
	if err != nil || len(values) == 0 {
		return nil
	}
	message, ok := values[0].(string)
	if !ok {
		return nil
	}
	return &message
}

// GetSolidityPanicCode obtains the code of a `Panic(uint256)` revert, or nil if the revert data is not one.
func GetSolidityPanicCode(returnData []byte) *big.Int {
	if len(returnData) != 4+32 || !bytes.Equal(returnData[:4], panicCodeMethod.ID) {
		return nil
	}
	values, err := panicCodeMethod.Inputs.Unpack(returnData[4:])
	if err != nil || len(values) == 0 {
		return nil
	}
	code, ok := values[0].(*big.Int)
	if !ok {
		return nil
	}
	return code
}

// GetPanicReason describes a Solidity panic code.
func GetPanicReason(panicCode uint64) string {
	switch panicCode {
	case PanicCodeCompilerInserted:
		return "panic: compiler inserted panic"
	case PanicCodeAssertFailed:
		return "panic: assertion failed"
	case PanicCodeArithmeticUnderOverflow:
		return "panic: arithmetic overflow"
	case PanicCodeDivideByZero:
		return "panic: division by zero"
	case PanicCodeEnumTypeConversionOutOfBounds:
		return "panic: enum access out of bounds"
	case PanicCodeIncorrectStorageAccess:
		return "panic: incorrect storage access"
	case PanicCodePopEmptyArray:
		return "panic: pop on empty array"
	case PanicCodeOutOfBoundsArrayAccess:
		return "panic: out of bounds array access"
	case PanicCodeAllocateTooMuchMemory:
		return "panic: overallocation/excessive memory usage"
	case PanicCodeCallUninitializedVariable:
		return "panic: call on uninitialized variable"
	default:
		return fmt.Sprintf("unknown panic code(%v)", panicCode)
	}
}

// DecodeRevertReason returns a readable reason for revert data, falling back to its hex encoding.
func DecodeRevertReason(returnData []byte) string {
	if message := GetSolidityRevertErrorString(returnData); message != nil {
		return *message
	}
	if code := GetSolidityPanicCode(returnData); code != nil {
		if !code.IsUint64() {
			return fmt.Sprintf("unknown panic code(%v)", code)
		}
		return GetPanicReason(code.Uint64())
	}
	if len(returnData) == 0 {
		return "execution reverted"
	}
	return "execution reverted: " + hexutil.Encode(returnData)
}

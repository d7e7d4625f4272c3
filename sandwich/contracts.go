package sandwich

import (
	"math/big"
	"strings"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// routerABIJSON describes the Uniswap V2 router swaps the searcher understands.
const routerABIJSON = `[
	{"type":"function","name":"swapExactETHForTokens","stateMutability":"payable",
	 "inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"swapExactTokensForETH","stateMutability":"nonpayable",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// helperABIJSON describes the sandwich helper contract.
const helperABIJSON = `[
	{"type":"constructor","stateMutability":"nonpayable",
	 "inputs":[{"name":"_router","type":"address"},{"name":"_weth","type":"address"}]},
	{"type":"function","name":"buy","stateMutability":"payable",
	 "inputs":[{"name":"token","type":"address"},{"name":"amountIn","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"sell","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

var (
	// RouterABI is the parsed router interface.
	RouterABI = mustParseABI(routerABIJSON)
	// HelperABI is the parsed helper contract interface.
	HelperABI = mustParseABI(helperABIJSON)
)

// ErrNotSwapExactETHForTokens is returned when calldata is not a swapExactETHForTokens call.
var ErrNotSwapExactETHForTokens = errors.New("calldata is not a swapExactETHForTokens call")

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

// SwapExactETHForTokens holds the decoded arguments of a router swapExactETHForTokens call.
type SwapExactETHForTokens struct {
	AmountOutMin *big.Int
	Path         []common.Address
	To           common.Address
	Deadline     *big.Int
}

// OutputToken returns the token bought by the swap's first hop.
func (s *SwapExactETHForTokens) OutputToken() (common.Address, error) {
	if len(s.Path) < 2 {
		return common.Address{}, errors.Errorf("swap path has %d entries, expected at least 2", len(s.Path))
	}
	return s.Path[1], nil
}

// DecodeSwapExactETHForTokens decodes router calldata as a swapExactETHForTokens call.
func DecodeSwapExactETHForTokens(input []byte) (*SwapExactETHForTokens, error) {
	if len(input) < 4 {
		return nil, ErrNotSwapExactETHForTokens
	}
	method, err := RouterABI.MethodById(input[:4])
	if err != nil || method.Name != "swapExactETHForTokens" {
		return nil, ErrNotSwapExactETHForTokens
	}

	values, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, errors.Wrap(err, "malformed swapExactETHForTokens arguments")
	}
	if len(values) != 4 {
		return nil, errors.Errorf("expected 4 swapExactETHForTokens arguments, got %d", len(values))
	}
	amountOutMin, ok1 := values[0].(*big.Int)
	path, ok2 := values[1].([]common.Address)
	to, ok3 := values[2].(common.Address)
	deadline, ok4 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("unexpected swapExactETHForTokens argument types")
	}
	return &SwapExactETHForTokens{
		AmountOutMin: amountOutMin,
		Path:         path,
		To:           to,
		Deadline:     deadline,
	}, nil
}

// EncodeHelperDeployment returns the creation input for the helper contract: its bytecode followed by the encoded
// constructor arguments.
func EncodeHelperDeployment(bytecode []byte, router common.Address, weth common.Address) ([]byte, error) {
	args, err := HelperABI.Pack("", router, weth)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	data := make([]byte, 0, len(bytecode)+len(args))
	data = append(data, bytecode...)
	return append(data, args...), nil
}

// EncodeBuy returns calldata for helper.buy(token, amountIn).
func EncodeBuy(token common.Address, amountIn *big.Int) ([]byte, error) {
	data, err := HelperABI.Pack("buy", token, amountIn)
	return data, errors.WithStack(err)
}

// EncodeSell returns calldata for helper.sell(token).
func EncodeSell(token common.Address) ([]byte, error) {
	data, err := HelperABI.Pack("sell", token)
	return data, errors.WithStack(err)
}

package devnode

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xivanov/dex-core/internal/dex"
	"github.com/0xivanov/dex-core/internal/ledger"
)

// placeholderCode marks an account as a contract. Contracts run as Go code, so
// there is no real bytecode to report.
var placeholderCode = hexutil.Bytes{0xfe}

type revertError struct {
	reason string
}

func (e *revertError) Error() string {
	if e.reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.reason
}

func (e *revertError) ErrorCode() int { return 3 }

type ethAPI struct {
	world  *ledger.World
	abis   []abi.ABI
	logger *zap.Logger
}

func newEthAPI(world *ledger.World, logger *zap.Logger) (*ethAPI, error) {
	api := &ethAPI{world: world, logger: logger}
	for _, load := range []func() (abi.ABI, error){dex.ERC165ABI, dex.PoolABI, dex.FactoryABI, dex.ERC20ABI} {
		parsed, err := load()
		if err != nil {
			return nil, fmt.Errorf("parse abi: %w", err)
		}
		api.abis = append(api.abis, parsed)
	}
	return api, nil
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetUint64(api.world.ChainID()))
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.world.BlockNumber())
}

// GetBlockByNumber returns the block header; transaction bodies are not
// served.
func (api *ethAPI) GetBlockByNumber(number string, fullTx bool) (*types.Header, error) {
	n, err := api.resolveBlock(number)
	if err != nil {
		return nil, err
	}
	if n > api.world.BlockNumber() {
		return nil, nil
	}
	return api.header(n), nil
}

func (api *ethAPI) GetCode(account common.Address, block string) (hexutil.Bytes, error) {
	if _, err := api.resolveBlock(block); err != nil {
		return nil, err
	}
	if _, ok := api.world.Contract(account); ok {
		return placeholderCode, nil
	}
	return hexutil.Bytes{}, nil
}

type filterArgs struct {
	BlockHash *common.Hash     `json:"blockHash"`
	FromBlock string           `json:"fromBlock"`
	ToBlock   string           `json:"toBlock"`
	Addresses []common.Address `json:"address"`
	Topics    [][]common.Hash  `json:"topics"`
}

func (api *ethAPI) GetLogs(args filterArgs) ([]types.Log, error) {
	var receipts []ledger.Receipt
	if args.BlockHash != nil {
		for _, receipt := range api.world.Receipts() {
			if receipt.BlockHash == *args.BlockHash {
				receipts = append(receipts, receipt)
			}
		}
	} else {
		from, err := api.resolveBlock(args.FromBlock)
		if err != nil {
			return nil, err
		}
		to, err := api.resolveBlock(args.ToBlock)
		if err != nil {
			return nil, err
		}
		if from > to {
			return nil, errors.New("invalid block range")
		}
		if head := api.world.BlockNumber(); to > head {
			to = head
		}
		// block zero holds no transactions
		if from == 0 {
			from = 1
		}
		for n := from; n <= to; n++ {
			if receipt, ok := api.world.ReceiptAt(n); ok {
				receipts = append(receipts, receipt)
			}
		}
	}

	out := []types.Log{}
	for _, receipt := range receipts {
		for _, log := range receipt.Logs {
			if matchLog(log, args.Addresses, args.Topics) {
				out = append(out, log)
			}
		}
	}
	return out, nil
}

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (args callArgs) data() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

// Call answers view functions of deployed contracts. Calls to accounts
// without a contract succeed with empty output.
func (api *ethAPI) Call(args callArgs, block string) (hexutil.Bytes, error) {
	if args.To == nil {
		return nil, errors.New("contract creation is not supported")
	}
	if _, err := api.resolveBlock(block); err != nil {
		return nil, err
	}

	var out []byte
	err := api.world.View(func(call *ledger.Call) error {
		contract, ok := call.Contract(*args.To)
		if !ok {
			return nil
		}
		var err error
		out, err = api.dispatch(contract, args.data())
		return err
	})
	if err != nil {
		api.logger.Debug("eth_call reverted", zap.String("to", args.To.Hex()), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (api *ethAPI) dispatch(contract any, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, &revertError{}
	}
	for _, contractABI := range api.abis {
		method, err := contractABI.MethodById(data[:4])
		if err != nil {
			continue
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, &revertError{reason: err.Error()}
		}
		values, ok := answer(contract, method.Name, args)
		if !ok {
			return nil, &revertError{}
		}
		return method.Outputs.Pack(values...)
	}
	return nil, &revertError{}
}

func (api *ethAPI) resolveBlock(tag string) (uint64, error) {
	head := api.world.BlockNumber()
	switch tag {
	case "", "latest", "pending", "safe", "finalized":
		return head, nil
	case "earliest":
		return 0, nil
	}
	n, err := hexutil.DecodeUint64(tag)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", tag, err)
	}
	return n, nil
}

func (api *ethAPI) header(n uint64) *types.Header {
	header := &types.Header{
		Number:     new(big.Int).SetUint64(n),
		Time:       api.world.GenesisTime(),
		Difficulty: new(big.Int),
		GasLimit:   30_000_000,
		Extra:      []byte{},
	}
	if receipt, ok := api.world.ReceiptAt(n); ok {
		header.Time = receipt.Timestamp
	}
	if parent, ok := api.world.ReceiptAt(n - 1); ok {
		header.ParentHash = parent.BlockHash
	}
	return header
}

func matchLog(log types.Log, addresses []common.Address, topics [][]common.Hash) bool {
	if len(addresses) > 0 {
		found := false
		for _, addr := range addresses {
			if addr == log.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(topics) > len(log.Topics) {
		return false
	}
	for i, alternatives := range topics {
		if len(alternatives) == 0 {
			continue
		}
		found := false
		for _, topic := range alternatives {
			if topic == log.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

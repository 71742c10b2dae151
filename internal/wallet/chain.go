package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/you/zrx-trader/internal/asset"
)

const erc20ABI = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const multicallABI = `[
{
    "constant": false,
    "inputs": [
        {
            "components": [
                {"name": "target", "type": "address"},
                {"name": "callData", "type": "bytes"}
            ],
            "name": "calls",
            "type": "tuple[]"
        }
    ],
    "name": "aggregate",
    "outputs": [
        {"name": "blockNumber", "type": "uint256"},
        {"name": "returnData", "type": "bytes[]"}
    ],
    "payable": false,
    "stateMutability": "nonpayable",
    "type": "function"
}
]`

// ChainReader builds balance snapshots from on-chain state, batching every
// ERC-20 balanceOf for the registry into one multicall.
type ChainReader struct {
	log    *zap.Logger
	ec     *ethclient.Client
	owner  common.Address
	mcAddr common.Address
	mcABI  abi.ABI
	ercABI abi.ABI
}

func NewChainReader(rpcURL string, owner, multicallAddr common.Address, log *zap.Logger) (*ChainReader, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	mcABI, err := abi.JSON(strings.NewReader(multicallABI))
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	ercABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	if multicallAddr == (common.Address{}) {
		return nil, fmt.Errorf("multicall address is not configured")
	}
	return &ChainReader{
		log:    log,
		ec:     ec,
		owner:  owner,
		mcAddr: multicallAddr,
		mcABI:  mcABI,
		ercABI: ercABI,
	}, nil
}

type mcCall struct {
	Target   common.Address
	CallData []byte
}

// Snapshot reads the owner's balance for every registry asset and freezes
// the result. Assets whose balanceOf reverts are recorded as zero.
func (r *ChainReader) Snapshot(ctx context.Context, reg *asset.Registry) (*Snapshot, error) {
	assets := reg.All()
	calls := make([]mcCall, 0, len(assets))
	for _, a := range assets {
		data, err := r.ercABI.Pack("balanceOf", r.owner)
		if err != nil {
			return nil, fmt.Errorf("pack balanceOf: %w", err)
		}
		calls = append(calls, mcCall{Target: a.Address, CallData: data})
	}

	payload, err := r.mcABI.Pack("aggregate", calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate: %w", err)
	}
	res, err := r.ec.CallContract(ctx, ethereum.CallMsg{To: &r.mcAddr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call aggregate: %w", err)
	}

	var agg struct {
		BlockNumber *big.Int
		ReturnData  [][]byte
	}
	if err := r.mcABI.UnpackIntoInterface(&agg, "aggregate", res); err != nil {
		return nil, fmt.Errorf("unpack aggregate: %w", err)
	}
	if len(agg.ReturnData) != len(assets) {
		return nil, fmt.Errorf("aggregate returned %d results for %d calls", len(agg.ReturnData), len(assets))
	}

	snap := NewSnapshot()
	for i, a := range assets {
		raw := agg.ReturnData[i]
		if len(raw) == 0 {
			r.log.Warn("balanceOf returned nothing, recording zero", zap.String("symbol", a.Symbol))
			snap.Set(a, decimal.Zero)
			continue
		}
		bal := new(big.Int).SetBytes(raw)
		snap.Set(a, a.UnitAmount(bal))
	}
	return snap, nil
}

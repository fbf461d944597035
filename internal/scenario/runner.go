package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xivanov/dex-core/internal/amm"
	"github.com/0xivanov/dex-core/internal/factory"
	"github.com/0xivanov/dex-core/internal/indexer"
	"github.com/0xivanov/dex-core/internal/ledger"
	"github.com/0xivanov/dex-core/internal/model"
	"github.com/0xivanov/dex-core/internal/token"
)

// StepResult reports the outcome of one step.
type StepResult struct {
	Name     string            `json:"name"`
	Action   string            `json:"action"`
	From     string            `json:"from"`
	Block    uint64            `json:"block,omitempty"`
	Outputs  map[string]string `json:"outputs,omitempty"`
	Error    string            `json:"error,omitempty"`
	Expected bool              `json:"expected,omitempty"`
}

// Runner executes a scenario against its own world.
type Runner struct {
	scenario *Scenario
	world    *ledger.World
	names    map[string]common.Address
	logger   *zap.Logger
}

func NewRunner(s *Scenario, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		scenario: s,
		world: ledger.NewWorld(ledger.Config{
			ChainID:     s.ChainID,
			GenesisTime: s.GenesisTime,
			BlockTime:   s.BlockTime,
		}, logger.Named("ledger")),
		names:  make(map[string]common.Address),
		logger: logger,
	}
}

// World returns the world the scenario runs in.
func (r *Runner) World() *ledger.World {
	return r.world
}

// Names returns the contract aliases registered so far.
func (r *Runner) Names() map[string]common.Address {
	out := make(map[string]common.Address, len(r.names))
	for name, addr := range r.names {
		out[name] = addr
	}
	return out
}

// Resolve maps a contract alias, hex address or account name to an address.
func (r *Runner) Resolve(name string) (common.Address, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return common.Address{}, errors.New("missing address reference")
	}
	if addr, ok := r.names[name]; ok {
		return addr, nil
	}
	if strings.HasPrefix(name, "0x") {
		if !common.IsHexAddress(name) {
			return common.Address{}, fmt.Errorf("invalid address %q", name)
		}
		return common.HexToAddress(name), nil
	}
	return AccountAddress(name), nil
}

// Run executes every step in order, one transaction per step.
func (r *Runner) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(r.scenario.Steps))
	for i, step := range r.scenario.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := r.runStep(i, step)
		results = append(results, res)
		if err != nil {
			if !r.scenario.ContinueOnError {
				return results, err
			}
			r.logger.Warn("step failed", zap.String("step", res.Name), zap.Error(err))
		}
	}
	return results, nil
}

func (r *Runner) runStep(i int, step Step) (StepResult, error) {
	label := step.label(i)
	from := step.From
	if from == "" {
		from = defaultSender
	}
	res := StepResult{Name: label, Action: step.Action, From: from}

	sender, err := r.Resolve(from)
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("step %s: %w", label, err)
	}

	var outputs map[string]string
	var deployed common.Address
	receipt, err := r.world.Execute(sender, func(call *ledger.Call) error {
		var err error
		outputs, deployed, err = actions[step.Action](r, call, step)
		return err
	})

	if step.ExpectError != "" {
		want, _ := LookupError(step.ExpectError)
		if err == nil {
			res.Block = receipt.BlockNumber
			res.Error = "expected " + step.ExpectError
			return res, fmt.Errorf("step %s: expected %s, transaction succeeded", label, step.ExpectError)
		}
		res.Error = err.Error()
		if !errors.Is(err, want) {
			return res, fmt.Errorf("step %s: expected %s: %w", label, step.ExpectError, err)
		}
		res.Expected = true
		r.logger.Info("step reverted as expected", zap.String("step", label), zap.Error(err))
		return res, nil
	}
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("step %s: %w", label, err)
	}

	res.Block = receipt.BlockNumber
	res.Outputs = outputs
	if step.As != "" && deployed != (common.Address{}) {
		r.names[step.As] = deployed
	}

	fields := []zap.Field{
		zap.String("step", label),
		zap.String("action", step.Action),
		zap.Uint64("block", receipt.BlockNumber),
		zap.Int("logs", len(receipt.Logs)),
	}
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.String(k, outputs[k]))
	}
	r.logger.Info("step committed", fields...)
	return res, nil
}

// Logs converts every committed log into a stored record.
func (r *Runner) Logs(ingestedAt time.Time) []model.LogRecord {
	var out []model.LogRecord
	for _, receipt := range r.world.Receipts() {
		for _, log := range receipt.Logs {
			out = append(out, indexer.NewLogRecord(r.world.ChainID(), log, receipt.Timestamp, ingestedAt))
		}
	}
	return out
}

type actionFunc func(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error)

var actions = map[string]actionFunc{
	ActionDeployToken:        deployToken,
	ActionDeployPoolTemplate: deployPoolTemplate,
	ActionDeployFactory:      deployFactory,
	ActionCreatePool:         createPool,
	ActionMint:               mint,
	ActionApprove:            approve,
	ActionTransfer:           transfer,
	ActionAddLiquidity:       addLiquidity,
	ActionRemoveLiquidity:    removeLiquidity,
	ActionSwap:               swap,
	ActionTransferOwnership:  transferOwnership,
	ActionClaimOwnership:     claimOwnership,
}

func created(addr common.Address, err error) (map[string]string, common.Address, error) {
	if err != nil {
		return nil, common.Address{}, err
	}
	return map[string]string{"address": addr.Hex()}, addr, nil
}

func deployToken(_ *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	decimals := uint8(18)
	if step.Decimals != nil {
		decimals = *step.Decimals
	}
	name := step.TokenName
	if name == "" {
		name = step.Symbol
	}
	return created(call.Create(token.Constructor(name, step.Symbol, decimals)))
}

func deployPoolTemplate(_ *Runner, call *ledger.Call, _ Step) (map[string]string, common.Address, error) {
	return created(factory.DeployTemplate(call))
}

func deployFactory(_ *Runner, call *ledger.Call, _ Step) (map[string]string, common.Address, error) {
	return created(factory.Deploy(call))
}

func createPool(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	registry, err := r.registry(call, step.Factory)
	if err != nil {
		return nil, common.Address{}, err
	}
	addrs, err := r.resolveAll(step.Implementation, step.TokenA, step.TokenB)
	if err != nil {
		return nil, common.Address{}, err
	}
	poolAddr, err := registry.CreatePool(call, addrs[0], addrs[1], addrs[2], step.Fee)
	if err != nil {
		return nil, common.Address{}, err
	}
	pool, err := ledger.Lookup[*amm.Pool](call, poolAddr)
	if err != nil {
		return nil, common.Address{}, err
	}
	return map[string]string{
		"pool":   poolAddr.Hex(),
		"owner":  pool.Owner().Hex(),
		"token0": pool.Token0().Hex(),
		"token1": pool.Token1().Hex(),
	}, poolAddr, nil
}

func mint(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	tok, err := r.token(call, step.Token)
	if err != nil {
		return nil, common.Address{}, err
	}
	amount, err := parseAmount(step.Amount)
	if err != nil {
		return nil, common.Address{}, err
	}
	if err := tok.Mint(call, amount); err != nil {
		return nil, common.Address{}, err
	}
	return map[string]string{"balance": tok.BalanceOf(call.Sender()).Dec()}, common.Address{}, nil
}

func approve(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	tok, err := r.token(call, step.Token)
	if err != nil {
		return nil, common.Address{}, err
	}
	spender, err := r.Resolve(step.Spender)
	if err != nil {
		return nil, common.Address{}, err
	}
	amount, err := parseAmount(step.Amount)
	if err != nil {
		return nil, common.Address{}, err
	}
	return nil, common.Address{}, tok.Approve(call, spender, amount)
}

func transfer(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	tok, err := r.token(call, step.Token)
	if err != nil {
		return nil, common.Address{}, err
	}
	to, err := r.Resolve(step.To)
	if err != nil {
		return nil, common.Address{}, err
	}
	amount, err := parseAmount(step.Amount)
	if err != nil {
		return nil, common.Address{}, err
	}
	return nil, common.Address{}, tok.Transfer(call, to, amount)
}

func addLiquidity(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	pool, err := r.pool(call, step.Pool)
	if err != nil {
		return nil, common.Address{}, err
	}
	amount0, err := parseAmount(step.Amount0)
	if err != nil {
		return nil, common.Address{}, err
	}
	amount1, err := parseAmount(step.Amount1)
	if err != nil {
		return nil, common.Address{}, err
	}
	shares, err := pool.AddLiquidity(call, amount0, amount1)
	if err != nil {
		return nil, common.Address{}, err
	}
	return map[string]string{"shares": shares.Dec()}, common.Address{}, nil
}

// removeLiquidity accepts share "all" for the sender's whole position.
func removeLiquidity(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	pool, err := r.pool(call, step.Pool)
	if err != nil {
		return nil, common.Address{}, err
	}
	share := pool.ShareOf(call.Sender())
	if !strings.EqualFold(strings.TrimSpace(step.Share), "all") {
		if share, err = parseAmount(step.Share); err != nil {
			return nil, common.Address{}, err
		}
	}
	amount0, amount1, err := pool.RemoveLiquidity(call, share)
	if err != nil {
		return nil, common.Address{}, err
	}
	return map[string]string{"amount0": amount0.Dec(), "amount1": amount1.Dec()}, common.Address{}, nil
}

func swap(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	pool, err := r.pool(call, step.Pool)
	if err != nil {
		return nil, common.Address{}, err
	}
	tokenIn, err := r.Resolve(step.TokenIn)
	if err != nil {
		return nil, common.Address{}, err
	}
	amount, err := parseAmount(step.Amount)
	if err != nil {
		return nil, common.Address{}, err
	}
	out, err := pool.Swap(call, tokenIn, amount)
	if err != nil {
		return nil, common.Address{}, err
	}
	return map[string]string{"amount_out": out.Dec()}, common.Address{}, nil
}

func transferOwnership(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	registry, err := r.registry(call, step.Factory)
	if err != nil {
		return nil, common.Address{}, err
	}
	newOwner, err := r.Resolve(step.NewOwner)
	if err != nil {
		return nil, common.Address{}, err
	}
	if err := registry.TransferOwnership(call, newOwner, step.Direct); err != nil {
		return nil, common.Address{}, err
	}
	return map[string]string{
		"owner":         registry.Owner().Hex(),
		"pending_owner": registry.PendingOwner().Hex(),
	}, common.Address{}, nil
}

func claimOwnership(r *Runner, call *ledger.Call, step Step) (map[string]string, common.Address, error) {
	registry, err := r.registry(call, step.Factory)
	if err != nil {
		return nil, common.Address{}, err
	}
	if err := registry.ClaimOwnership(call); err != nil {
		return nil, common.Address{}, err
	}
	return map[string]string{"owner": registry.Owner().Hex()}, common.Address{}, nil
}

func (r *Runner) resolveAll(names ...string) ([]common.Address, error) {
	out := make([]common.Address, len(names))
	for i, name := range names {
		addr, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

func lookup[T any](r *Runner, call *ledger.Call, name string) (T, error) {
	addr, err := r.Resolve(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return ledger.Lookup[T](call, addr)
}

func (r *Runner) token(call *ledger.Call, name string) (*token.Token, error) {
	return lookup[*token.Token](r, call, name)
}

func (r *Runner) pool(call *ledger.Call, name string) (*amm.Pool, error) {
	return lookup[*amm.Pool](r, call, name)
}

func (r *Runner) registry(call *ledger.Call, name string) (*factory.Registry, error) {
	return lookup[*factory.Registry](r, call, name)
}

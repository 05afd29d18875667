// Command fuzzcli runs one property-based fuzz session against a scripted
// demonstration contract and prints the resulting summary. It exists to
// exercise the fuzz/strategy/dictionary/executor/runner stack end-to-end
// without a real forked-chain backend.
//
// Usage:
//
//	fuzzcli run --func withdraw --should-fail=false --dict-weight 60
package main

import (
	"fmt"
	"math/big"
	"os"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/fuzzrig/evmfuzz/abi"
	"github.com/fuzzrig/evmfuzz/dictionary"
	"github.com/fuzzrig/evmfuzz/evmtypes"
	"github.com/fuzzrig/evmfuzz/executor"
	"github.com/fuzzrig/evmfuzz/fuzz"
	"github.com/fuzzrig/evmfuzz/log"
	"github.com/fuzzrig/evmfuzz/runner"
	"github.com/fuzzrig/evmfuzz/strategy"
)

func main() {
	app := &cli.App{
		Name:  "fuzzcli",
		Usage: "run a property-based fuzz session against a demonstration contract",
		Commands: []*cli.Command{
			runCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fuzzcli: %v\n", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "fuzz the built-in demonstration Vault contract",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "func", Value: "withdraw", Usage: "name of the function to fuzz (withdraw, deposit)"},
			&cli.BoolFlag{Name: "should-fail", Value: false, Usage: "invert success: only a reverting call counts as passing"},
			&cli.IntFlag{Name: "dict-weight", Value: 40, Usage: "relative weight (0-100) given to dictionary-biased argument sampling"},
			&cli.IntFlag{Name: "max-rejects", Value: 100, Usage: "consecutive vm.assume rejections before the session aborts"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	logger := log.Default()
	sender := evmtypes.BytesToAddress([]byte{0x0a})
	vault := evmtypes.BytesToAddress([]byte{0x0b})

	exec, registry, fns := newDemoVault(vault)
	fn, ok := fns[c.String("func")]
	if !ok {
		return cli.Exit(fmt.Sprintf("unknown function %q (want withdraw or deposit)", c.String("func")), 2)
	}

	dict := dictionary.New(dictionary.Config{
		MaxValuesPerCategory: 64,
		IncludeStorage:       true,
		DictionaryWeight:     c.Int("dict-weight"),
	})
	dict.SeedFromBackend(exec.MemDB())

	strat := strategy.New(fn, dict, strategy.Config{DictionaryWeight: c.Int("dict-weight")})

	// rapid.Check expects a *testing.T-managed goroutine; this process has
	// no enclosing `go test` binary, so a bare T is driven on its own
	// goroutine and the fuzz session's result is handed back over resultCh.
	t := &testing.T{}
	rnr := runner.NewRapidRunner(t, c.Int("max-rejects"))

	fuzzer := fuzz.New(exec, dict, rnr, sender, vault, c.Bool("should-fail"), nil, registry, logger.Module("fuzz"))

	resultCh := make(chan *fuzz.Result, 1)
	go func() {
		resultCh <- fuzzer.Fuzz(strat, c.String("func"))
	}()
	result := <-resultCh

	printResult(c.String("func"), result)
	if !result.Success {
		return cli.Exit("fuzz session found a counter-example", 1)
	}
	return nil
}

func printResult(funcName string, res *fuzz.Result) {
	fmt.Printf("function: %s\n", funcName)
	if res.Success {
		fmt.Println("result:   PASS")
		cases := res.Cases()
		fmt.Printf("cases:    %d\n", cases.Len())
		fmt.Printf("gas:      median=%d mean=%d highest=%d lowest=%d\n",
			res.MedianGas(true), res.MeanGas(true), cases.HighestGas(true), cases.LowestGas())
	} else {
		fmt.Println("result:   FAIL")
		fmt.Printf("reason:   %s\n", res.Reason)
		if res.CounterExample != nil {
			fmt.Printf("counter-example: %s\n", res.CounterExample.Display())
		}
	}
	for _, line := range res.DecodedLogs {
		fmt.Printf("log:      %s\n", line)
	}
}

// newDemoVault wires a single scripted contract standing in for a simple
// balance vault: withdraw(uint256) reverts if the requested amount exceeds
// the vault's single tracked balance (shared by every sender),
// deposit(uint256) always succeeds. It has no
// real bytecode; MemExecutor drives it through the ScriptedContract hook.
func newDemoVault(addr evmtypes.Address) (*executor.MemExecutor, *abi.Registry, map[string]abi.Function) {
	withdraw := abi.Function{Name: "withdraw", Inputs: []abi.ABIType{{Kind: abi.ABIUint256}}}
	deposit := abi.Function{Name: "deposit", Inputs: []abi.ABIType{{Kind: abi.ABIUint256}}}
	insufficientBalance := abi.Function{Name: "InsufficientBalance", Inputs: []abi.ABIType{{Kind: abi.ABIUint256}, {Kind: abi.ABIUint256}}}

	const trackedBalanceSlot = 0

	exec := executor.NewMemExecutor()
	balance := big.NewInt(1_000_000_000_000_000_000)

	exec.Deploy(addr, "Vault", big.NewInt(0), func(sender evmtypes.Address, calldata []byte, value *big.Int) executor.ScriptedResult {
		if len(calldata) < 4 {
			return executor.ScriptedResult{Revert: true, ExitReason: "calldata too short"}
		}
		var sel [4]byte
		copy(sel[:], calldata[:4])

		switch sel {
		case withdraw.ShortSignature():
			args, err := withdraw.DecodeInput(calldata[4:])
			if err != nil {
				return executor.ScriptedResult{Revert: true, ExitReason: "decode failed"}
			}
			amount := args[0].Uint256
			if amount.Cmp(balance) > 0 {
				revertData := insufficientBalance.EncodeCall([]abi.ABIValue{
					{Type: abi.ABIType{Kind: abi.ABIUint256}, Uint256: amount},
					{Type: abi.ABIType{Kind: abi.ABIUint256}, Uint256: new(big.Int).Set(balance)},
				})
				return executor.ScriptedResult{Revert: true, ExitReason: "insufficient balance", ReturnData: revertData}
			}
			balance = new(big.Int).Sub(balance, amount)
			return executor.ScriptedResult{
				GasUsed: 45000,
				StorageWrites: map[evmtypes.Hash]evmtypes.Hash{
					evmtypes.BytesToHash([]byte{trackedBalanceSlot}): evmtypes.BytesToHash(balance.Bytes()),
				},
			}

		case deposit.ShortSignature():
			args, err := deposit.DecodeInput(calldata[4:])
			if err != nil {
				return executor.ScriptedResult{Revert: true, ExitReason: "decode failed"}
			}
			balance = new(big.Int).Add(balance, args[0].Uint256)
			return executor.ScriptedResult{
				GasUsed: 40000,
				StorageWrites: map[evmtypes.Hash]evmtypes.Hash{
					evmtypes.BytesToHash([]byte{trackedBalanceSlot}): evmtypes.BytesToHash(balance.Bytes()),
				},
			}

		default:
			return executor.ScriptedResult{Revert: true, ExitReason: "unknown selector"}
		}
	})

	registry := abi.NewRegistry()
	registry.Register([20]byte(addr), abi.ContractABI{
		Name:      "Vault",
		Functions: []abi.Function{withdraw, deposit, insufficientBalance},
	})

	fns := map[string]abi.Function{"withdraw": withdraw, "deposit": deposit}
	return exec, registry, fns
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/amount"
	"github.com/speedrun-hq/shield/pkg/broker"
	"github.com/speedrun-hq/shield/pkg/config"
	"github.com/speedrun-hq/shield/pkg/logger"
	"github.com/speedrun-hq/shield/pkg/signer"
	"github.com/speedrun-hq/shield/pkg/trader"
	"github.com/spf13/cobra"
)

type signOptions struct {
	session      sessionFlags
	assetOut     string
	amountIn     string
	minAmountOut string
	quote        string
	slippage     string
	decimalsOut  int32
	dryRunSubmit bool
}

func newSignCommand() *cobra.Command {
	opts := signOptions{}

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Build and sign one swap intent and print it as JSON",
		Long: `Build a swap of the native asset into --asset-out, sign it and print the
signed intent. The output floor is either given with --min-out or derived
from --quote and the slippage tolerance.

Amounts are human readable decimals (e.g. 0.1) converted with the asset's
decimals from the asset registry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			s, err := buildSigner(cfg, log)
			if err != nil {
				return err
			}
			return runSign(cmd.Context(), cfg, opts, s, log, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.session.endpoint, "endpoint", "", "coordination endpoint (default $CLEARNODE_URL)")
	flags.StringVar(&opts.session.sessionID, "session", "", "session id (default $SESSION_ID or a random UUID)")
	flags.StringVar(&opts.assetOut, "asset-out", "", "symbol or token address to receive")
	flags.StringVar(&opts.amountIn, "amount", "", "exact amount of the native asset to spend, e.g. 0.1")
	flags.StringVar(&opts.minAmountOut, "min-out", "", "minimum amount of asset-out to receive")
	flags.StringVar(&opts.quote, "quote", "", "quoted amount of asset-out, the floor is derived with the slippage")
	flags.StringVar(&opts.slippage, "slippage", "", "slippage tolerance in percent (default $DEFAULT_SLIPPAGE)")
	flags.Int32Var(&opts.decimalsOut, "decimals-out", amount.DefaultDecimals, "decimals of asset-out when it is not in the registry")
	flags.BoolVar(&opts.dryRunSubmit, "dry-run-submit", false, "verify the intent with the in-process broker instead of only printing it")
	_ = cmd.MarkFlagRequired("asset-out")
	_ = cmd.MarkFlagRequired("amount")
	cmd.MarkFlagsMutuallyExclusive("min-out", "quote")

	return cmd
}

func runSign(ctx context.Context, cfg *config.Config, opts signOptions, s signer.Signer, log logger.Logger, out io.Writer) error {
	opts.session.apply(cfg)

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	assetOut, err := registry.Resolve(opts.assetOut, opts.decimalsOut)
	if err != nil {
		return err
	}

	amountIn, err := amount.ParseUnits(opts.amountIn, registry.Native().Decimals)
	if err != nil {
		return errors.Wrap(err, "invalid --amount")
	}

	slippageBps := cfg.DefaultSlippageBps
	if opts.slippage != "" {
		if slippageBps, err = amount.ParseSlippage(opts.slippage); err != nil {
			return errors.Wrap(err, "invalid --slippage")
		}
	}

	minAmountOut, err := resolveFloor(opts, assetOut.Decimals, slippageBps)
	if err != nil {
		return err
	}

	traderOpts := []trader.Option{
		trader.WithLogger(log),
		trader.WithNativeAsset(cfg.NativeAsset),
	}
	if opts.dryRunSubmit {
		traderOpts = append(traderOpts, trader.WithBroker(broker.NewGuarded(broker.NewMemory(), newBreaker(cfg, log), log)))
	}

	tr, err := trader.New(s, traderOpts...)
	if err != nil {
		return err
	}
	if err := tr.Initialize(cfg.ClearnodeURL, cfg.SessionID); err != nil {
		return err
	}

	signed, err := tr.BuildAndSignIntent(ctx, trader.TradeRequest{
		AssetOut:     assetOut.Identifier(),
		AmountIn:     amountIn,
		MinAmountOut: minAmountOut,
		SlippageBps:  slippageBps,
	})
	if err != nil {
		return err
	}

	if opts.dryRunSubmit {
		receipt, err := tr.SubmitIntent(ctx, signed)
		if err != nil {
			return err
		}
		log.InfoWithSession(cfg.SessionID, "Dry-run broker accepted intent %s", receipt.IntentDigest.Hex())
	}

	if _, err := tr.EndLocalSession(); err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode signed intent")
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}

// resolveFloor returns the minimum output in base units from --min-out or --quote
func resolveFloor(opts signOptions, decimals int32, slippageBps uint32) (*big.Int, error) {
	switch {
	case opts.minAmountOut != "":
		floor, err := amount.ParseUnits(opts.minAmountOut, decimals)
		if err != nil {
			return nil, errors.Wrap(err, "invalid --min-out")
		}
		return floor, nil
	case opts.quote != "":
		quote, err := amount.ParseUnits(opts.quote, decimals)
		if err != nil {
			return nil, errors.Wrap(err, "invalid --quote")
		}
		return amount.MinAmountOut(quote, slippageBps)
	}
	return nil, errors.New("one of --min-out or --quote is required")
}

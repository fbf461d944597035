package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xivanov/dex-core/internal/capability"
	"github.com/0xivanov/dex-core/internal/chain"
	"github.com/0xivanov/dex-core/internal/config"
	"github.com/0xivanov/dex-core/internal/dex"
	"github.com/0xivanov/dex-core/internal/indexer"
)

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Ask contracts which interfaces they support",
		RunE:  runProbe,
	}
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().StringSlice("address", nil, "contract addresses (comma-separated)")
	cmd.Flags().StringSlice("interface", []string{"erc165", "erc20", "factory"},
		fmt.Sprintf("interface names %v or 0x-prefixed 4-byte ids", capability.Names()))
	return cmd
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadProbe(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	ids := make([]capability.InterfaceID, 0, len(cfg.Interfaces))
	for _, name := range cfg.Interfaces {
		id, err := capability.ParseInterface(name)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	ctx, stop := signalContext()
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	out := cmd.OutOrStdout()
	for _, addr := range addresses {
		for i, id := range ids {
			result, err := dex.ProbeInterface(ctx, chainClient, addr, id)
			if err != nil {
				return fmt.Errorf("probe %s: %w", addr.Hex(), err)
			}
			logger.Debug("probe",
				zap.String("address", addr.Hex()),
				zap.String("interface", id.String()),
				zap.Stringer("result", result),
			)
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", addr.Hex(), cfg.Interfaces[i], id, result)
		}
	}
	return nil
}

// Package main contains the cli implementation of the tool. It uses cobra
// package for cli tool implementation.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"entropymine/internal/config"
	"entropymine/internal/entropy"
	"entropymine/internal/reorder"
	"entropymine/internal/store"
	_ "entropymine/internal/store/memory" // registers the "memory" backend
	"entropymine/internal/store/mysql"
)

type runFlags struct {
	engineOpt string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "entropyctl",
		Short: "Compute the empirical Shannon entropy of every column subset of a relation",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(columnOrderCmd())
	rootCmd.AddCommand(benchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <config.toml>",
		Short: "Compute H(S) for every non-empty column subset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.engineOpt, "engine", "", "Override the config's engine choice: tidcnt, buc, or auto")
	return cmd
}

func runRun(cmd *cobra.Command, configPath string, flags *runFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	engineName := cfg.Engine
	if flags.engineOpt != "" {
		engineName = flags.engineOpt
	}
	eng, err := entropy.ParseEngine(engineName)
	if err != nil {
		return err
	}

	st, closeFn, err := openBackend(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	start := time.Now()
	result, err := entropy.Run(context.Background(), st, cfg.Input, cfg.K, eng)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	materialized := 0
	for _, e := range result.Map.Entries() {
		fmt.Fprintf(out, "Entropy for AttrSet%s: %g\n", e.Set, e.Value)
		materialized++
	}

	totalSubsets := (1 << uint(result.K)) - 1
	fmt.Fprintf(out, "\n%d attributes, %d tuples, engine=%s, elapsed=%s\n", result.K, result.N, result.EngineUsed, elapsed)
	fmt.Fprintf(out, "%d of %d subsets materialized, %d pruned\n", materialized, totalSubsets, totalSubsets-materialized)
	return nil
}

func columnOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "column-order <config.toml>",
		Short: "Print the column reordering the preprocessor would choose",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runColumnOrder(cmd, args[0])
		},
	}
	return cmd
}

func runColumnOrder(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	st, closeFn, err := openBackend(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	rel, err := st.Load(ctx, cfg.Input, cfg.K)
	if err != nil {
		return fmt.Errorf("column-order: load: %w", err)
	}
	mapping, err := reorder.Reorder(ctx, st, rel)
	if err != nil {
		return fmt.Errorf("column-order: reorder: %w", err)
	}

	out := cmd.OutOrStdout()
	for physical, logical := range mapping.PhysicalToLogical {
		fmt.Fprintf(out, "physical col%d <- logical attribute %d\n", physical, logical)
	}
	return nil
}

func benchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench <config.toml>",
		Short: "Run both engines and report agreement and timing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, args[0])
		},
	}
	return cmd
}

func runBench(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	out := cmd.OutOrStdout()

	run := func(eng entropy.Engine) (*entropy.Result, time.Duration, error) {
		st, closeFn, err := openBackend(cmd, cfg)
		if err != nil {
			return nil, 0, err
		}
		defer closeFn()
		start := time.Now()
		result, err := entropy.Run(ctx, st, cfg.Input, cfg.K, eng)
		return result, time.Since(start), err
	}

	tidResult, tidElapsed, err := run(entropy.TIDCNT)
	if err != nil {
		return fmt.Errorf("bench: tidcnt: %w", err)
	}
	bucResult, bucElapsed, err := run(entropy.BUC)
	if err != nil {
		return fmt.Errorf("bench: buc: %w", err)
	}

	fmt.Fprintf(out, "tidcnt: %d subsets, %s\n", tidResult.Map.Len(), tidElapsed)
	fmt.Fprintf(out, "buc:    %d subsets, %s\n", bucResult.Map.Len(), bucElapsed)

	mismatches := 0
	for _, e := range tidResult.Map.Entries() {
		v, ok := bucResult.Map.Get(e.Set)
		tolerance := 1e-9 * math.Max(1, math.Max(math.Abs(v), math.Abs(e.Value)))
		if !ok || math.Abs(v-e.Value) > tolerance {
			mismatches++
		}
	}
	fmt.Fprintf(out, "agreement: %d/%d subsets within tolerance\n", tidResult.Map.Len()-mismatches, tidResult.Map.Len())
	return nil
}

func openBackend(cmd *cobra.Command, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Backend {
	case "mysql":
		st, err := mysql.Open(context.Background(), cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mysql backend: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "connected to mysql backend\n")
		return st, func() { _ = st.Close() }, nil
	case "memory", "":
		st, err := store.New("memory")
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

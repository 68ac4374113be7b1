// Binary tui is a small interactive console for editing the config and
// launching the trading loop.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JirA44/obelisk-dex-sub002/internal/config"
)

const defaultConfigPath = "config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== HFT Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit sizing and risk knobs")
		fmt.Println("3) Edit batch settlement knobs")
		fmt.Println("4) Save config")
		fmt.Println("5) Launch engine")
		fmt.Println("6) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editBatch(reader, cfg)
		case "4":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "5":
			launchEngine(reader)
		case "6":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Strategy: %s | feed: %s\n", cfg.Strategy.Mode, cfg.Feed.Kind)
	fmt.Println("Instruments:", strings.Join(cfg.Feed.Symbols, ", "))
	fmt.Printf("Position size: $%.2f x %d max | stop %.2f%% target %.2f%%\n",
		cfg.Position.SizeQuote, cfg.Position.MaxPositions,
		cfg.Position.StopPct*100, cfg.Position.TargetPct*100)
	fmt.Printf("Per-trade notional cap: $%.2f\n", cfg.Risk.MaxNotionalPerTrade)
	fmt.Printf("Portfolio notional cap: $%.2f\n", cfg.Risk.MaxPortfolioNotional)
	fmt.Printf("Batch: %s every %dms, size %d (min %d, max %d), guard=%v\n",
		cfg.Batch.Mode, cfg.Batch.IntervalMs, cfg.Batch.BatchSize,
		cfg.Batch.MinBatchSize, cfg.Batch.MaxBatchSize, cfg.Batch.ProfitGuard)
	fmt.Printf("Venue: %s | starting cash $%.2f\n", cfg.Venue.Kind, cfg.Venue.StartingCash)
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Sizing / Risk ---")
	cfg.Position.SizeQuote = promptFloat(reader, "Position size (USD)", cfg.Position.SizeQuote)
	cfg.Position.MaxPositions = int(promptFloat(reader, "Max concurrent positions", float64(cfg.Position.MaxPositions)))
	cfg.Position.StopPct = promptPercent(reader, "Stop (%)", cfg.Position.StopPct)
	cfg.Position.TargetPct = promptPercent(reader, "Target (%)", cfg.Position.TargetPct)
	cfg.Risk.MaxNotionalPerTrade = promptFloat(reader, "Max notional per trade (USD)", cfg.Risk.MaxNotionalPerTrade)
	cfg.Risk.MaxPortfolioNotional = promptFloat(reader, "Max portfolio notional (USD)", cfg.Risk.MaxPortfolioNotional)
}

func editBatch(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Batch Settlement ---")
	fmt.Printf("Current mode: %s\n", cfg.Batch.Mode)
	fmt.Print("Mode TIME/COUNT/HYBRID (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Batch.Mode = strings.ToUpper(strings.TrimSpace(line))
	}
	cfg.Batch.IntervalMs = int(promptFloat(reader, "Interval (ms)", float64(cfg.Batch.IntervalMs)))
	cfg.Batch.BatchSize = int(promptFloat(reader, "Batch size", float64(cfg.Batch.BatchSize)))
	cfg.Batch.MinBatchSize = int(promptFloat(reader, "Min batch size", float64(cfg.Batch.MinBatchSize)))
	cfg.Batch.MaxBatchSize = int(promptFloat(reader, "Max batch size", float64(cfg.Batch.MaxBatchSize)))
	cfg.Batch.SettlementGas = promptFloat(reader, "Settlement gas (USD)", cfg.Batch.SettlementGas)
	cfg.Batch.MinNetProfit = promptFloat(reader, "Min net profit (USD)", cfg.Batch.MinNetProfit)
}

func launchEngine(reader *bufio.Reader) {
	fmt.Println("Launching engine (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/hft")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start engine: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the engine and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}

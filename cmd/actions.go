package cmd

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"

	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/types"
)

// -----------------------------------------------------------------------------
// Setup prompts

var promptWallet = &survey.Input{
	Message: "Path to the wallet keypair file:",
	Default: "wallet.json",
}

var promptInterval = &survey.Select{
	Message: "How often should positions be checked?",
	Options: []string{"30 seconds", "1 minute", "5 minutes"},
	Default: "30 seconds",
}

var intervalSeconds = map[string]int{
	"30 seconds": 30,
	"1 minute":   60,
	"5 minutes":  300,
}

var promptWatchlist = &survey.MultiSelect{
	Message: "Which protocols should be monitored?",
	Options: []string{"solend", "marginfi", "kamino"},
	Default: []string{"solend", "marginfi", "kamino"},
}

// -----------------------------------------------------------------------------
// Setup flow

// RunSetup interactively writes the agent configuration and, when the wallet
// file does not exist yet, generates a fresh keypair for it.
func RunSetup(configPath string) error {
	cfg := DefaultConfig()

	if err := survey.AskOne(promptWallet, &cfg.WalletPath); err != nil {
		return err
	}

	var interval string
	if err := survey.AskOne(promptInterval, &interval); err != nil {
		return err
	}
	cfg.CheckIntervalSec = intervalSeconds[interval]

	if err := survey.AskOne(promptWatchlist, &cfg.Watchlist); err != nil {
		return err
	}

	if _, err := os.Stat(cfg.WalletPath); os.IsNotExist(err) {
		wallet, err := ledger.GenerateWallet()
		if err != nil {
			return err
		}
		if err := wallet.Save(cfg.WalletPath); err != nil {
			return err
		}
		fmt.Println("Generated new wallet:", wallet.PublicKey())
	}

	if err := cfg.Save(configPath); err != nil {
		return err
	}
	fmt.Println("Configuration written to", configPath)
	fmt.Println("Start monitoring with: sentinel run --config", configPath)
	return nil
}

// RunRegister derives the position address of every watched protocol and
// prints it. The agent registers positions on-chain lazily during its first
// cycle; this command only answers "which accounts will it own".
func RunRegister(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	wallet, err := ledger.LoadWallet(cfg.WalletPath)
	if err != nil {
		return err
	}

	owner := wallet.PublicKey()
	fmt.Println("Owner:", owner)
	for _, protocol := range cfg.Watchlist {
		id := types.EntityIDForProtocol(protocol)
		addr, bump, err := ledger.PositionAddress(owner, id)
		if err != nil {
			return err
		}
		fmt.Printf("%-10s position %10d  %s (bump %d)\n", protocol, id, addr, bump)
	}
	return nil
}

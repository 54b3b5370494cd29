package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/betbot/kistrade/kis/client"
	"github.com/betbot/kistrade/pkg/config"
	"github.com/betbot/kistrade/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", getenv("KIS_CONFIG", config.DefaultConfigPath), "config file (.ini or .yaml)")
		checkOnly  = flag.Bool("check", false, "only print the loaded settings, no API call")
		logLevel   = flag.String("log-level", "", "log level (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			path, _ := config.ExpandPath(*configPath)
			fmt.Fprint(os.Stderr, config.SetupGuidance(path))
			os.Exit(1)
		}
		fatal(err)
	}
	initLogger(cfg, *logLevel)

	fmt.Println("settings")
	fmt.Printf("  APP_KEY:    %s\n", logger.MaskSecret(cfg.AppKey, 8))
	fmt.Printf("  ACCOUNT:    %s\n", cfg.AccountLabel())
	fmt.Printf("  BASE_URL:   %s\n", cfg.BaseURL)
	fmt.Printf("  MODE:       %s\n", client.ModeLabel(cfg))
	fmt.Printf("  TOKEN SLOT: %s\n", tokenSlotLabel(cfg))
	if cfg.ProductCodeDefaulted {
		fmt.Printf("  WARNING:    account number is shorter than 10 digits, product code defaulted to %s\n", config.DefaultProductCode)
	}

	if *checkOnly {
		fmt.Println("\nsettings ok")
		return
	}

	fmt.Println("\nissuing token...")
	c, err := client.New(cfg)
	if err != nil {
		fatal(err)
	}
	defer c.Close()

	tok, err := c.Tokens().GetToken(context.Background())
	if err != nil {
		_ = c.Close()
		fatal(err)
	}
	fmt.Printf("token ok: %s (expires %s KST)\n", logger.MaskSecret(tok.Value, 20), tok.Expired)
}

func initLogger(cfg *config.Config, level string) {
	if strings.TrimSpace(level) == "" {
		level = cfg.LogLevel
	}
	if err := logger.Init(logger.Config{
		Level:      level,
		OutputFile: cfg.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "warning: log init:", err)
	}
}

func tokenSlotLabel(cfg *config.Config) string {
	if cfg.TokenStore == config.TokenStoreBadger {
		return "badger " + cfg.SecretDBPath
	}
	return cfg.TokenPath
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}

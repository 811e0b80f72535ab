package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"paywall/crypto"
	"paywall/native/paywall"
	"paywall/services/paywalld/index"
	"paywall/services/paywalld/middleware"
	"paywall/storage"
)

const (
	keygenCommand  = "keygen"
	deriveCommand  = "derive"
	fundCommand    = "fund"
	tokenCommand   = "token"
	exportCommand  = "export-receipts"
	profileCommand = "init-profile"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	switch args[0] {
	case keygenCommand:
		return runKeygen(out)
	case deriveCommand:
		return runDerive(args[1:], out)
	case fundCommand:
		return runFund(args[1:], out)
	case tokenCommand:
		return runToken(args[1:], out)
	case exportCommand:
		return runExport(args[1:], out)
	case profileCommand:
		return runInitProfile(args[1:], out)
	default:
		return errUsage
	}
}

func runKeygen(out io.Writer) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	fmt.Fprintf(out, "address: %s\n", key.PubKey().Address().String())
	fmt.Fprintf(out, "private: 0x%s\n", hex.EncodeToString(key.Bytes()))
	return nil
}

func runDerive(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(deriveCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	creator := fs.String("creator", "", "Creator account for article derivation")
	sequence := fs.Uint64("sequence", 0, "Creator chosen article sequence")
	article := fs.String("article", "", "Article id for receipt and credential derivation")
	buyer := fs.String("buyer", "", "Buyer account for receipt and credential derivation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *creator != "":
		addr, err := crypto.ParseAddress(crypto.AccountPrefix, *creator)
		if err != nil {
			return fmt.Errorf("creator: %w", err)
		}
		fmt.Fprintf(out, "article: %s\n", crypto.FormatHash(paywall.ArticleAddress(addr, *sequence)))
	case *article != "" && *buyer != "":
		id, err := crypto.ParseHash(*article)
		if err != nil {
			return fmt.Errorf("article: %w", err)
		}
		addr, err := crypto.ParseAddress(crypto.AccountPrefix, *buyer)
		if err != nil {
			return fmt.Errorf("buyer: %w", err)
		}
		fmt.Fprintf(out, "receipt: %s\n", crypto.FormatHash(paywall.ReceiptAddress(id, addr)))
		fmt.Fprintf(out, "credential: %s\n", crypto.FormatHash(paywall.CredentialAddress(id, addr)))
	default:
		fmt.Fprintf(out, "fee_config: %s\n", crypto.FormatHash(paywall.FeeConfigAddress()))
	}
	return nil
}

// runFund credits an account directly in the record store. paywalld must be
// stopped because bolt holds an exclusive file lock.
func runFund(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(fundCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	profilePath := fs.String("profile", "", "Path to the paywallctl profile")
	dataDir := fs.String("data-dir", "", "Override the profile data directory")
	currency := fs.String("currency", "", "Currency address (defaults to the profile currency)")
	account := fs.String("account", "", "Account to credit")
	amount := fs.String("amount", "0", "Smallest-unit amount to credit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadProfile(*profilePath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *currency == "" {
		*currency = cfg.Currency
	}
	cur, err := crypto.ParseAddress(crypto.CurrencyPrefix, *currency)
	if err != nil {
		return fmt.Errorf("currency: %w", err)
	}
	owner, err := crypto.ParseAddress(crypto.AccountPrefix, *account)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	value, err := strconv.ParseUint(strings.TrimSpace(*amount), 10, 64)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()
	engine := paywall.NewEngine(db)
	if err := engine.Fund(cur, owner, value); err != nil {
		return err
	}
	balance, err := engine.Balance(cur, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s balance: %d\n", crypto.FormatAccount(owner), balance)
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	profilePath := fs.String("profile", "", "Path to the paywallctl profile")
	subject := fs.String("subject", "", "Account the token identifies")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadProfile(*profilePath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("profile JWTSecret or PAYWALL_JWT_SECRET is required")
	}
	if _, err := crypto.ParseAddress(crypto.AccountPrefix, *subject); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	token, err := middleware.IssueToken(cfg.JWTSecret, *subject, cfg.Issuer, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	profilePath := fs.String("profile", "", "Path to the paywallctl profile")
	dsn := fs.String("index", "", "Override the profile index DSN")
	since := fs.String("since", "", "Only export purchases at or after this RFC3339 time")
	format := fs.String("format", "parquet", "Output format (parquet|csv)")
	output := fs.String("out", "", "Output file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*output) == "" {
		return errors.New("--out is required")
	}
	cfg, err := loadProfile(*profilePath)
	if err != nil {
		return err
	}
	if *dsn != "" {
		cfg.IndexDSN = *dsn
	}
	var from time.Time
	if *since != "" {
		from, err = time.Parse(time.RFC3339, *since)
		if err != nil {
			return fmt.Errorf("since: %w", err)
		}
	}

	db, err := index.Open(cfg.IndexDSN)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	count, err := exportReceipts(context.Background(), index.NewIndexer(db, nil), from, *format, *output)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d receipts to %s\n", count, *output)
	return nil
}

func runInitProfile(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(profileCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("out", defaultProfile, "Profile path to write")
	force := fs.Bool("force", false, "Overwrite an existing profile")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("profile %s already exists (use --force to overwrite)", *path)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	if err := writeProfile(*path, defaultProfileValues()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote profile to %s\n", *path)
	return nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "paywallctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintf(w, "  %-16s Generate an account key pair\n", keygenCommand)
	fmt.Fprintf(w, "  %-16s Derive article, receipt, credential or fee config addresses\n", deriveCommand)
	fmt.Fprintf(w, "  %-16s Credit an account in a stopped node's record store\n", fundCommand)
	fmt.Fprintf(w, "  %-16s Issue a bearer token for an account\n", tokenCommand)
	fmt.Fprintf(w, "  %-16s Export indexed receipts to parquet or csv\n", exportCommand)
	fmt.Fprintf(w, "  %-16s Write a default profile\n", profileCommand)
}

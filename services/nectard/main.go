// nectard serves the collateral-backed point issuance API: the point ledger,
// partner vaults and quotas behind HMAC partner auth, and operator endpoints
// behind bearer-token auth.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nectar/crypto"
	gatewayauth "nectar/gateway/auth"
	"nectar/gateway/middleware"
	"nectar/native/params"
	"nectar/native/points"
	"nectar/native/pricefeed"
	"nectar/native/vault"
	"nectar/observability/logging"
	"nectar/services/nectard/config"
	"nectar/services/nectard/server"
	"nectar/services/nectard/storage"
	kv "nectar/storage"
)

func main() {
	var (
		configPath = flag.String("config", "nectard.toml", "path to the daemon configuration file")
		writeInit  = flag.Bool("init", false, "write an example configuration to the config path and exit")
		genPartner = flag.Bool("gen-partner", false, "generate a partner key, credentials and address, then exit")
		partnerKey = flag.String("partner-address", "", "derive the partner address for a hex private key, then exit")
	)
	flag.Parse()

	if *writeInit {
		if err := config.WriteExample(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "write example config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote example configuration to %s\n", *configPath)
		return
	}
	if *genPartner {
		identity, err := generatePartnerIdentity()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate partner identity: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(identity.String())
		return
	}
	if *partnerKey != "" {
		address, err := derivePartnerAddress(*partnerKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "derive partner address: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(address)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("nectard", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("nectard exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	credentials, err := config.LoadPartners(cfg.PartnersFile)
	if err != nil {
		return err
	}
	logger.Info("loaded partner registry", "partners", len(credentials))

	db, err := openStateDB(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	state := kv.NewKVStore(db)

	store, err := storage.Open(ctx, storage.FileDSN(cfg.DatabasePath))
	if err != nil {
		return err
	}
	defer store.Close()

	paramStore := params.NewStore(state)
	if err := seedParams(paramStore, cfg.Params); err != nil {
		return fmt.Errorf("seed protocol params: %w", err)
	}
	protocol, err := paramStore.Load()
	if err != nil {
		return err
	}

	ledger, err := points.NewLedger(state, points.Limits{
		MaxTotalSupply:     protocol.MaxTotalSupply,
		GlobalDailyMintCap: protocol.GlobalDailyMintCap,
		MaxPointsPerMint:   protocol.MaxPointsPerMint,
	})
	if err != nil {
		return fmt.Errorf("open point ledger: %w", err)
	}

	engine, err := vault.NewEngine(state, paramStore, ledger)
	if err != nil {
		return fmt.Errorf("open vault engine: %w", err)
	}

	prices := pricefeed.NewManager(cfg.PriceFeed.MaxAge.Duration, cfg.PriceFeed.MinFeeds)

	partnerAuth := gatewayauth.NewAuthenticator(
		credentials,
		cfg.Auth.TimestampSkew.Duration,
		cfg.Auth.NonceTTL.Duration,
		cfg.Auth.NonceCapacity,
		time.Now,
		store,
	)
	if err := partnerAuth.HydrateNonces(ctx, time.Now().Add(-cfg.Auth.NonceTTL.Duration)); err != nil {
		return err
	}

	srv := server.New(server.Config{
		ListenAddress:  cfg.ListenAddress,
		AllowedOrigins: cfg.AllowedOrigins,
		Admin: middleware.AuthConfig{
			Enabled:    cfg.Admin.Enabled,
			HMACSecret: cfg.Admin.Secret,
			Issuer:     cfg.Admin.Issuer,
			Audience:   cfg.Admin.Audience,
		},
		PartnerRate: middleware.RateLimit{RequestsPerMinute: cfg.Rate.PartnerPerMinute, Burst: cfg.Rate.PartnerBurst},
		AdminRate:   middleware.RateLimit{RequestsPerMinute: cfg.Rate.AdminPerMinute, Burst: cfg.Rate.AdminBurst},
		PriceBase:   cfg.PriceFeed.Base,
		PriceQuote:  cfg.PriceFeed.Quote,
	}, logger, engine, ledger, paramStore, prices, store, partnerAuth)

	return srv.Run(ctx)
}

// partnerIdentity holds everything a partners.yaml entry needs.
type partnerIdentity struct {
	PrivateKey string
	APIKey     string
	Secret     string
	Address    string
}

func (p partnerIdentity) String() string {
	return fmt.Sprintf("private_key: %s\napi_key: %s\nsecret: %s\naddress: %s\n",
		p.PrivateKey, p.APIKey, p.Secret, p.Address)
}

// generatePartnerIdentity creates a fresh partner key pair together with the
// API credentials to register in the partners file.
func generatePartnerIdentity() (partnerIdentity, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return partnerIdentity{}, err
	}
	apiKey := make([]byte, 16)
	if _, err := rand.Read(apiKey); err != nil {
		return partnerIdentity{}, err
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return partnerIdentity{}, err
	}
	return partnerIdentity{
		PrivateKey: hex.EncodeToString(key.Bytes()),
		APIKey:     hex.EncodeToString(apiKey),
		Secret:     hex.EncodeToString(secret),
		Address:    key.PubKey().Address().String(),
	}, nil
}

// derivePartnerAddress recovers the bech32 address for an existing partner
// private key.
func derivePartnerAddress(hexKey string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	return key.PubKey().Address().String(), nil
}

func openStateDB(path string) (kv.Database, error) {
	if path == "" {
		return kv.NewMemDB(), nil
	}
	return kv.NewLevelDB(path)
}

// seedParams writes the configured protocol parameters on first boot. Once a
// parameter set has been persisted the config section is ignored in favour of
// the stored values, which /admin/params manages.
func seedParams(store *params.Store, seed config.ParamsConfig) error {
	current, err := store.Load()
	if err != nil {
		return err
	}
	if current.MaxTotalSupply != 0 && len(current.Treasury) == 20 {
		return nil
	}
	treasury, err := crypto.DecodeAddress(seed.Treasury)
	if err != nil {
		return fmt.Errorf("treasury address: %w", err)
	}
	next := &params.Params{
		PointsPerCollateralUnit: seed.PointsPerCollateralUnit,
		Treasury:                treasury.Bytes(),
		MaxTotalSupply:          seed.MaxTotalSupply,
		GlobalDailyMintCap:      seed.GlobalDailyMintCap,
		MaxPointsPerMint:        seed.MaxPointsPerMint,
		MinimumVaultDeposit:     seed.MinimumVaultDeposit,
		DailyQuotaFractionBps:   seed.DailyQuotaFractionBps,
		SafetyBufferBps:         seed.SafetyBufferBps,
	}
	return store.Save(next)
}

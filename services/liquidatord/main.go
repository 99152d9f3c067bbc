// Package liquidatord runs the liquidation pipeline daemon: it syncs
// on-chain events into the Event Log Store, folds them into the balance,
// liquidity, configuration, and oracle read models, scans for liquidation
// candidates, and serves the results over HTTP.
package liquidatord

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"solvkeep/chain"
	"solvkeep/config"
	"solvkeep/core/balances"
	"solvkeep/core/candidates"
	"solvkeep/core/coordinator"
	"solvkeep/core/errclass"
	"solvkeep/core/events"
	"solvkeep/core/eventstore"
	"solvkeep/core/health"
	"solvkeep/core/liquidity"
	"solvkeep/core/oracle"
	"solvkeep/core/oracle/adapter"
	"solvkeep/core/pipeline"
	"solvkeep/core/protoconfig"
	"solvkeep/observability/logging"
	"solvkeep/observability/metrics"
	telemetry "solvkeep/observability/otel"
	"solvkeep/storage/columnar"
	"solvkeep/storage/snapshot"
	"solvkeep/storage/submissions"
)

// allEventKinds lists every kind the coordinator watches. Order does not
// matter: each becomes its own independently-synced stream.
var allEventKinds = []events.Kind{
	events.ReserveInitialized,
	events.CollateralConfigurationChanged,
	events.EModeAssetCategoryChanged,
	events.EModeCategoryAdded,
	events.AssetSourceUpdated,
	events.Mint,
	events.Burn,
	events.BalanceTransfer,
	events.ReserveUsedAsCollateralEnabled,
	events.ReserveUsedAsCollateralDisabled,
	events.UserEModeSet,
	events.ReserveDataUpdated,
	events.NewTransmission,
	events.AnswerUpdated,
	events.PriceCapUpdated,
	events.CapParametersUpdated,
}

// Main runs the liquidatord daemon using the provided command-line flags.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "liquidatord.toml", "path to liquidatord config")
	var listenAddr string
	flag.StringVar(&listenAddr, "listen", ":8090", "HTTP listen address for the status/candidates API")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SOLVKEEP_ENV"))
	logger := logging.SetupWithFile("liquidatord", env, strings.TrimSpace(os.Getenv("SOLVKEEP_LOG_FILE")))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded",
		"chain_id", cfg.ChainID,
		logging.Endpoint("rpc_http", cfg.RPCURLHTTP),
		logging.Endpoint("rpc_ws", cfg.RPCURLWS),
		logging.Endpoint("mev_share", cfg.MEVShareWS),
		logging.Endpoint("database", cfg.DatabaseURL),
		logging.Endpoint("redis", cfg.RedisURL),
	)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "liquidatord",
		Environment: env,
		ChainID:     cfg.ChainID,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	daemon, err := build(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}
	defer daemon.Close()

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      otelhttp.NewHandler(daemon.router(), "liquidatord"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	go func() {
		if err := daemon.coordinator.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("coordinator stopped", "error", err)
		}
	}()
	if daemon.mevShare != nil {
		go func() {
			if err := daemon.mevShare.Run(runCtx); err != nil && runCtx.Err() == nil {
				logger.Error("mev-share feed stopped", "error", err)
			}
		}()
	}
	go daemon.trackHead(runCtx)
	go daemon.sampleMultipliers(runCtx, logger)

	errs := make(chan error, 1)
	go func() {
		log.Printf("liquidatord listening on %s", listenAddr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		cancelRun()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		cancelRun()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// daemon holds every wired component for the lifetime of the process.
type daemon struct {
	client      *chain.Client
	eventStore  *eventstore.Store
	coordinator *coordinator.Coordinator
	health      *health.Service
	composer    *oracle.Composer
	engine      *candidates.Engine
	cache       *snapshot.Cache
	submissions *submissions.Store
	mevShare    *chain.MEVShareFeed
	redis       *redis.Client
}

func build(ctx context.Context, cfg *config.Config) (*daemon, error) {
	client, err := chain.Dial(ctx, cfg.RPCURLHTTP)
	if err != nil {
		return nil, err
	}
	client.SetTimeout(time.Duration(cfg.RPCTimeoutMS) * time.Millisecond)

	var wsClient *chain.Client
	if cfg.RPCURLWS != "" {
		wsClient, err = chain.Dial(ctx, cfg.RPCURLWS)
		if err != nil {
			return nil, err
		}
		wsClient.SetTimeout(time.Duration(cfg.RPCTimeoutMS) * time.Millisecond)
	}

	backing, err := openColumnarStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := eventstore.New(backing, cfg.ChainID)

	liq := liquidity.New()
	bal := balances.New(liq)
	projection := protoconfig.New()
	for addr, decimals := range cfg.AssetDecimals {
		places := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		projection.SetDecimals(common.HexToAddress(addr), places)
	}

	growth := oracle.NewGrowthTracker(time.Duration(cfg.MultiplierGrowthWindowDays) * 24 * time.Hour)
	var reader adapter.Reader = client
	composer := oracle.New(reader, growth)
	composer.SetMaxSourceDepth(cfg.MaxOracleSourceDepth)
	for _, entry := range cfg.OracleSources {
		srcCfg, err := oracleSourceConfig(entry)
		if err != nil {
			return nil, fmt.Errorf("oracle source %s: %w", entry.Address, err)
		}
		composer.RegisterSource(srcCfg)
	}

	healthSvc := health.New(bal, liq, projection, composer)
	healthSvc.SetAccrualProjectionFactor(cfg.AccrualProjectionFactor)

	weth := common.HexToAddress(cfg.WETHAddress)
	engineCfg := candidates.DefaultConfig(weth)
	engineCfg.CloseFactor = cfg.CloseFactor
	engineCfg.MinUSD = cfg.CandidateMinUSD
	engineCfg.Band = candidates.AdmissionBand{Low: cfg.CandidateHealthBandLow, High: cfg.CandidateHealthBandHigh}
	for _, a := range cfg.PriorityCollateralAssets {
		engineCfg.PriorityCollateral = append(engineCfg.PriorityCollateral, common.HexToAddress(a))
	}
	for _, a := range cfg.PriorityDebtAssets {
		engineCfg.PriorityDebt = append(engineCfg.PriorityDebt, common.HexToAddress(a))
	}

	swaps := candidates.NewSwapPathBook()
	for _, entry := range cfg.SwapPaths {
		hops := make([]common.Address, 0, len(entry.Hops))
		for _, h := range entry.Hops {
			hops = append(hops, common.HexToAddress(h))
		}
		swaps.Register(common.HexToAddress(entry.TokenIn), common.HexToAddress(entry.TokenOut), candidates.SwapPath{
			TokenIn:  common.HexToAddress(entry.TokenIn),
			TokenOut: common.HexToAddress(entry.TokenOut),
			Hops:     hops,
			PoolFees: entry.PoolFees,
		})
	}
	engine := candidates.New(healthSvc, projection, swaps, engineCfg)

	m := metrics.Default()
	dispatch := &pipeline.Dispatcher{
		Balances:          bal,
		Liquidity:         liq,
		Config:            projection,
		Composer:          composer,
		Health:            healthSvc,
		ObserveDispatched: m.ObserveEventDispatched,
	}
	sink := &pipeline.Sink{Store: store, Dispatch: dispatch}

	coordCfg := coordinator.DefaultConfig()
	coordCfg.StreamingThresholdBlocks = cfg.StreamingThresholdBlocks
	coordCfg.ReorgDepth = cfg.ReorgDepth
	coordCfg.ObserveLag = m.ObserveCoordinatorLag
	coord := coordinator.New(client, sink, coordCfg, nil)

	for _, kind := range allEventKinds {
		for _, addr := range cfg.EventContracts[string(kind)] {
			coord.Register(chain.NewLogSource(client, wsClient, cfg.ChainID, kind, common.HexToAddress(addr)))
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	cache := snapshot.New(redisClient, 30*time.Second, fmt.Sprintf("solvkeep:%d", cfg.ChainID))

	subStore, err := submissions.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open submissions store: %w", err)
	}

	var mevShare *chain.MEVShareFeed
	if cfg.MEVShareWS != "" {
		mevShare = chain.NewMEVShareFeed(cfg.MEVShareWS, composer)
	}

	return &daemon{
		client:      client,
		eventStore:  store,
		coordinator: coord,
		health:      healthSvc,
		composer:    composer,
		engine:      engine,
		cache:       cache,
		submissions: subStore,
		mevShare:    mevShare,
		redis:       redisClient,
	}, nil
}

// trackHead keeps the Health-Factor Evaluator's accrual and pricing
// reference point current by polling the chain head once per block interval.
func (d *daemon) trackHead(ctx context.Context) {
	ticker := time.NewTicker(12 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			block, err := d.client.BlockNumber(ctx)
			if err != nil {
				continue
			}
			ts, err := d.client.BlockTime(ctx, block)
			if err != nil {
				continue
			}
			d.health.SetCurrentBlock(block, time.Unix(int64(ts), 0))
		}
	}
}

// sampleMultipliers periodically records every oracle source's live
// multiplier reading, feeding the growth regression behind the
// predicted-transaction price.
func (d *daemon) sampleMultipliers(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.composer.SampleMultipliers(ctx, time.Now()); err != nil && ctx.Err() == nil {
				logger.Warn("multiplier sampling incomplete", "error", err)
			}
		}
	}
}

// cacheCandidates write-throughs the freshly scanned candidates to Redis,
// grouped by user, for low-latency reads between scans. Cache errors are
// logged-and-ignored rather than failing the request: the scan result
// itself is still authoritative.
func (d *daemon) cacheCandidates(ctx context.Context, rows []candidates.LiquidationCandidate) {
	byUser := make(map[common.Address][]candidates.LiquidationCandidate)
	for _, row := range rows {
		byUser[row.User] = append(byUser[row.User], row)
	}
	for user, userRows := range byUser {
		_ = d.cache.PutCandidates(ctx, user, userRows)
	}
}

// oracleSourceConfig translates one TOML entry into the composer's
// SourceConfig, failing on an unrecognized multiplier adapter kind so a
// misconfigured source degrades at startup rather than at first read
// (spec §4.5.3, §7).
func oracleSourceConfig(entry config.OracleSourceEntry) (oracle.SourceConfig, error) {
	kind := adapter.Kind(entry.MultiplierKind)
	params := adapter.Params{
		Contract: common.HexToAddress(entry.MultiplierContract),
		FeedA:    common.HexToAddress(entry.FeedA),
		FeedB:    common.HexToAddress(entry.FeedB),
	}
	if kind == adapter.PendleDiscount {
		rate, ok := new(big.Int).SetString(entry.PendleRatePerSecondRay, 10)
		if !ok {
			return oracle.SourceConfig{}, fmt.Errorf("invalid PendleRatePerSecondRay %q", entry.PendleRatePerSecondRay)
		}
		params.RatePerSecondRay = rate
		params.Maturity = time.Unix(entry.PendleMaturityUnix, 0)
	}
	if _, err := adapter.Resolve(kind, nil, params); err != nil {
		return oracle.SourceConfig{}, err
	}

	decimals := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(entry.Decimals)), nil)
	return oracle.SourceConfig{
		Address:           common.HexToAddress(entry.Address),
		NumeratorSource:   common.HexToAddress(entry.NumeratorSource),
		DenominatorSource: common.HexToAddress(entry.DenominatorSource),
		MultiplierKind:    kind,
		MultiplierParams:  params,
		HasCap:            entry.HasCap,
		DecimalsPlaces:    decimals,
	}, nil
}

func openColumnarStore(ctx context.Context, cfg *config.Config) (columnar.Store, error) {
	if len(cfg.ClickHouseAddr) == 0 {
		return columnar.NewInMemory(), nil
	}
	store, err := columnar.NewClickHouseStore(ctx, columnar.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse store: %w", err)
	}
	return store, nil
}

func (d *daemon) Close() {
	_ = d.eventStore.Close()
	_ = d.redis.Close()
}

func (d *daemon) router() http.Handler {
	m := metrics.Default()
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/candidates", metrics.InstrumentedHandler(m, "/candidates", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rows := d.engine.Scan()
		m.ObserveScan(len(rows), time.Since(start))
		d.cacheCandidates(r.Context(), rows)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rows); err != nil {
			http.Error(w, string(errclass.Classify(err)), http.StatusInternalServerError)
		}
	}))
	mux.HandleFunc("/candidates/latest", metrics.InstrumentedHandler(m, "/candidates/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.engine.Latest())
	}))
	mux.HandleFunc("/swaps/missing", metrics.InstrumentedHandler(m, "/swaps/missing", func(w http.ResponseWriter, r *http.Request) {
		missing := d.engine.MissingPaths()
		rows := make([][2]string, 0, len(missing))
		for _, pair := range missing {
			rows = append(rows, [2]string{pair[0].Hex(), pair[1].Hex()})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
	mux.HandleFunc("/submissions/failed", metrics.InstrumentedHandler(m, "/submissions/failed", func(w http.ResponseWriter, r *http.Request) {
		rows, err := d.submissions.ListFailed(r.Context())
		if err != nil {
			http.Error(w, string(errclass.Classify(err)), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
	return mux
}

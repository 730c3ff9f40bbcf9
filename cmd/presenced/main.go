package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/config"
	"nuha.dev/ravevision/internal/store/impl/logstore"
	"nuha.dev/ravevision/internal/store/impl/memstore"
	"nuha.dev/ravevision/internal/store/impl/pgstore"
	"nuha.dev/ravevision/internal/util"
	"nuha.dev/ravevision/internal/web"
	"nuha.dev/ravevision/internal/web/monitoring"
	"nuha.dev/ravevision/internal/web/webstream"
)

// genToken prints a fresh client token and the hash to put in auth.tokenHash.
func genToken() error {
	tok, err := util.GenRandomString([]byte("rv"), 24)
	if err != nil {
		return err
	}
	hash, err := util.CryptPwd(tok)
	if err != nil {
		return err
	}
	fmt.Printf("token: %s\nauth.tokenHash: %s\n", tok, hash)
	return nil
}

func main() {
	config_dir := flag.String("config", "", "directory containing "+config.DaemonConfigName)
	gen_token := flag.Bool("gen_token", false, "print a new client token with its hash and exit")
	flag.Parse()

	if *gen_token {
		if err := genToken(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := config.LoadDaemon(*config_dir); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	log.DefaultLogger.Level = log.ParseLevel(config.GetString("logLevel"))
	logger := log.DefaultLogger
	logger.Context = log.NewContext(nil).Str("module", "presenced").Value()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal memstore.Journal
	var restored map[string]json.RawMessage
	var pg *pgstore.Store
	var pool *pgxpool.Pool
	if db_url := config.GetString("db.url"); db_url != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, db_url)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connect")
		}
		pg = pgstore.NewStore(pool, config.GetString("db.table"), &pgstore.StoreConfig{
			BufSize:      config.GetInt("journal.bufSize"),
			TickerDur:    config.GetDuration("journal.tickerDur"),
			MaxAgeFlush:  config.GetDuration("journal.maxAgeFlush"),
			WriteTimeout: config.GetDuration("journal.writeTimeout"),
		})
		if err = pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("database migrate")
		}
		if restored, err = pg.Load(ctx); err != nil {
			logger.Fatal().Err(err).Msg("database restore")
		}
		pg.Run()
		journal = pg
	} else {
		logger.Warn().Msg("db.url not set, records are only logged")
		journal = logstore.NewStore(log.DefaultLogger.Level)
	}

	mem := memstore.New(&memstore.Config{Journal: journal})
	if restored != nil {
		if err := mem.Load(restored); err != nil {
			logger.Fatal().Err(err).Msg("restore records")
		}
	}

	ws := webstream.NewWebstream(mem, webstream.WebStreamConfig{
		TokenHash:    config.GetString("auth.tokenHash"),
		AuthTimeout:  config.GetDuration("ws.authTimeout"),
		WriteTimeout: config.GetDuration("ws.writeTimeout"),
	})
	mon := monitoring.NewMonApi(mem, ws)
	api := web.NewApi(ws.GetHandler(), mon.GetHandler(), &web.ApiConfig{
		ListenAddr:     config.GetString("listen"),
		AllowedOrigins: config.GetStringSlice("cors.allowedOrigins"),
		ProxyProtocol:  config.GetBool("proxyProtocol"),
	})

	errc := make(chan error, 1)
	go func() { errc <- api.Run() }()
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("api server stopped")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("api shutdown")
	}
	// fires the triggers of connections still open
	mem.Close()
	if pg != nil {
		if err := pg.Close(sctx); err != nil {
			logger.Error().Err(err).Msg("journal flush")
		}
		pool.Close()
	}
	logger.Info().Msg("stopped")
}

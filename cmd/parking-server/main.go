// Command parking-server runs the ALPR parking ledger: the gate and ledger
// HTTP API, the optional live decision feed and the optional SQS gate-event
// consumer, all sharing one serialized ledger writer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/parking-alpr/internal/billing"
	"github.com/tbourn/parking-alpr/internal/config"
	"github.com/tbourn/parking-alpr/internal/feed"
	httpapi "github.com/tbourn/parking-alpr/internal/http"
	"github.com/tbourn/parking-alpr/internal/http/handlers"
	"github.com/tbourn/parking-alpr/internal/http/middleware"
	"github.com/tbourn/parking-alpr/internal/ingest"
	"github.com/tbourn/parking-alpr/internal/observability"
	"github.com/tbourn/parking-alpr/internal/repo"
	"github.com/tbourn/parking-alpr/internal/services"
	"github.com/tbourn/parking-alpr/internal/sysutil"
	"github.com/tbourn/parking-alpr/internal/vision"

	// OCR engines register themselves with the vision registry.
	_ "github.com/tbourn/parking-alpr/internal/vision/rekognition"
	_ "github.com/tbourn/parking-alpr/internal/vision/tesseract"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")
	sysutil.InitLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, ver)

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(cfg.Auth, os.Args[2:]); err != nil {
			log.Fatal().Err(err).Msg("token")
		}
		return
	}

	if err := run(cfg, ver); err != nil {
		log.Fatal().Err(err).Msg("parking-server failed")
	}
}

func run(cfg config.Config, ver string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if sysutil.IsTruthy(os.Getenv("MIGRATE_ONLY")) {
		log.Info().Msg("schema migrated, exiting (MIGRATE_ONLY)")
		return nil
	}

	writer := repo.NewWriter(db)
	defer writer.Close()

	tariff := billing.Tariff{
		UnitSeconds: cfg.Billing.UnitSeconds,
		UnitPrice:   cfg.Billing.UnitPrice,
	}
	if err := tariff.Validate(); err != nil {
		return err
	}
	ledger := services.NewLedger(db, writer, tariff, cfg.DB.StoreTimeout)
	if cfg.DB.SeedDev {
		seedDev(ctx, ledger)
	}

	recog, err := newRecognition(cfg.Vision, ledger)
	if err != nil {
		return err
	}

	hub := feed.NewHub(feed.Options{})
	defer hub.Close()

	h := handlers.New(ledger, recog, hub, handlers.WithMaxImageBytes(cfg.Vision.MaxImageBytes))

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Handlers: h, Hub: hub}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	if cfg.Ingest.SQSQueueURL != "" {
		consumer, err := newConsumer(ctx, cfg, ledger, recog, hub)
		if err != nil {
			return err
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("sqs consumer stopped")
			}
		}()
	}

	go purgeIdempotency(ctx, db, time.Hour)

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DB.Driver).
			Str("ocr_engine", cfg.Vision.OCREngine).
			Bool("live_feed", cfg.LiveFeed).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	return srv.Shutdown(sctx)
}

// issueToken prints an operator token signed with OPERATOR_JWT_SECRET:
//
//	parking-server token -sub alice -ttl 8h
func issueToken(ac config.AuthConfig, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "", "operator name (token subject)")
	ttl := fs.Duration("ttl", 8*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if ac.JWTSecret == "" {
		return errors.New("OPERATOR_JWT_SECRET is not set")
	}
	if *sub == "" {
		return errors.New("-sub is required")
	}
	tok, err := middleware.IssueOperatorToken([]byte(ac.JWTSecret), ac.JWTIssuer, *sub, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	dsn := cfg.DB.DSN
	if cfg.DB.Driver == repo.DriverSQLite || cfg.DB.Driver == "" {
		dsn = cfg.DB.Path
	}
	db, err := repo.Open(repo.Options{
		Driver:      cfg.DB.Driver,
		DSN:         dsn,
		BusyTimeout: cfg.DB.BusyTimeout,
		MaxOpen:     cfg.DB.MaxOpen,
		Silent:      cfg.GinMode == gin.ReleaseMode,
		Traced:      cfg.OTEL.Enabled,
	})
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	if err := repo.VerifySchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newRecognition(vc config.VisionConfig, ledger *services.Ledger) (*services.Recognition, error) {
	var det vision.Detector = vision.WholeImage{}
	if vc.DetectorURL != "" {
		d := vision.NewHTTPDetector(vc.DetectorURL)
		if vc.EngineTimeout > 0 {
			d.Client.Timeout = vc.EngineTimeout
		}
		det = d
	}
	rec, err := vision.NewRecognizer(vc.OCREngine, vision.EngineConfig{
		URL:       vc.RecognizerURL,
		Timeout:   vc.EngineTimeout,
		Languages: vc.OCRLanguages,
		Region:    vc.AWSRegion,
	})
	if err != nil {
		return nil, err
	}

	s := services.NewRecognition(det, rec, ledger)
	s.Padding = vc.CropPadding
	s.MinDetConf = vc.MinDetConf
	s.Fallback = services.FallbackPolicy{
		Enabled:       vc.Fallback,
		MinLength:     vc.FallbackMinLen,
		MinConfidence: vc.FallbackMinConf,
	}
	return s, nil
}

func newConsumer(ctx context.Context, cfg config.Config, ledger *services.Ledger, recog *services.Recognition, hub *feed.Hub) (*ingest.Consumer, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Vision.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Vision.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	d := &ingest.Dispatcher{
		Ledger:        ledger,
		Recognition:   recog,
		Feed:          hub,
		MaxImageBytes: int(cfg.Vision.MaxImageBytes),
	}
	return &ingest.Consumer{
		Client:      sqs.NewFromConfig(awsCfg),
		QueueURL:    cfg.Ingest.SQSQueueURL,
		Handle:      d.Handle,
		WaitTime:    cfg.Ingest.WaitTime,
		MaxMessages: int32(cfg.Ingest.MaxMessages),
		Visibility:  cfg.Ingest.Visibility,
	}, nil
}

// seedDev writes one TEST row so a fresh development database has history.
func seedDev(ctx context.Context, ledger *services.Ledger) {
	id, err := ledger.SeedTest(ctx, "TEST1", time.Now().UTC())
	if err != nil {
		log.Warn().Err(err).Msg("dev seed failed")
		return
	}
	log.Info().Int64("event_id", id).Msg("dev seed written")
}

func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("idempotency keys expired")
			}
		}
	}
}

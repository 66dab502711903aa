package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enterprise-mfa/backend/internal/audit"
	auditproducer "enterprise-mfa/backend/internal/audit/producer"
	auditrepo "enterprise-mfa/backend/internal/audit/repository"
	"enterprise-mfa/backend/internal/authz"
	"enterprise-mfa/backend/internal/backupcode"
	backupcoderepo "enterprise-mfa/backend/internal/backupcode/repository"
	"enterprise-mfa/backend/internal/config"
	"enterprise-mfa/backend/internal/db"
	"enterprise-mfa/backend/internal/platform/userlock"
	"enterprise-mfa/backend/internal/security"
	"enterprise-mfa/backend/internal/server"
	"enterprise-mfa/backend/internal/sms"
	smsgateway "enterprise-mfa/backend/internal/sms/gateway"
	smsrepo "enterprise-mfa/backend/internal/sms/repository"
	"enterprise-mfa/backend/internal/telemetry"
	"enterprise-mfa/backend/internal/totp"
	totprepo "enterprise-mfa/backend/internal/totp/repository"
	"enterprise-mfa/backend/internal/webauthn"
	"enterprise-mfa/backend/internal/webauthn/challenge"
	webauthnrepo "enterprise-mfa/backend/internal/webauthn/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.EncryptionKey == "" {
		log.Fatal("config: MFA_ENCRYPTION_KEY must be set")
	}

	ctx := context.Background()

	providers, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, "enterprise-mfa", false)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	enc, err := security.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("encryption: %v", err)
	}

	evaluator, err := authz.NewEvaluator("")
	if err != nil {
		log.Fatalf("authz: %v", err)
	}

	metrics, err := telemetry.NewAttemptMetrics(providers.MeterProvider.Meter("enterprise-mfa"))
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	var auditor audit.Recorder = audit.NewLogger(auditrepo.NewPostgresRepository(database), server.ClientIP, metrics)
	kafkaSink := auditproducer.NewKafkaRecorder(cfg.KafkaBrokersList(), cfg.KafkaAuditTopic)
	if kafkaSink != nil {
		defer kafkaSink.Close()
		auditor = audit.Fanout{auditor, kafkaSink}
	}

	var stepUp *security.StepUpProvider
	if cfg.JWTPrivateKey != "" && cfg.JWTPublicKey != "" {
		signer, err := security.ParseSigningKey(cfg.JWTPrivateKey)
		if err != nil {
			log.Fatalf("step-up signing key: %v", err)
		}
		pub, err := security.ParseVerifyKey(cfg.JWTPublicKey)
		if err != nil {
			log.Fatalf("step-up verify key: %v", err)
		}
		stepUp = security.NewStepUpProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.StepUpTokenTTL())
	}

	waService, err := webauthn.NewService(webauthn.Config{
		RPID:          cfg.WebAuthnRPID,
		RPDisplayName: cfg.WebAuthnRPDisplayName,
		RPOrigins:     cfg.WebAuthnOrigins(),
	}, webauthnrepo.NewPostgresRepository(database), challenge.NewMemoryStore(), evaluator, auditor)
	if err != nil {
		log.Fatalf("webauthn: %v", err)
	}

	srv := server.New(server.Deps{
		TOTP: totp.NewService(totprepo.NewPostgresRepository(database), enc, auditor),
		SMS: sms.NewService(
			smsrepo.NewPostgresRepository(database),
			smsgateway.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender),
			enc, auditor),
		WebAuthn: waService,
		BackupCodes: backupcode.NewService(
			backupcoderepo.NewPostgresRepository(database),
			security.NewHasher(cfg.BcryptCost),
			userlock.NewRegistry(0, 0),
			evaluator, auditor),
		StepUp:     stepUp,
		TOTPIssuer: cfg.TOTPIssuer,
		DB:         database,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

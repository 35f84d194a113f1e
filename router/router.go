package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"docuchain/config"
	"docuchain/internal/chain"
	"docuchain/internal/contentstore"
	docHandler "docuchain/internal/document"
	docRepository "docuchain/internal/document/repository"
	docService "docuchain/internal/document/service"
	"docuchain/internal/ratelimit"
	walletHandler "docuchain/internal/wallet"
	walletRepository "docuchain/internal/wallet/repository"
	walletService "docuchain/internal/wallet/service"
	"docuchain/middleware"
	"docuchain/socket"
)

func Setup(cfg config.Config, db *sql.DB, hub *socket.Hub, ledger chain.Ledger, limiter ratelimit.Limiter, content *contentstore.Pinata) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware(cfg.JWTSecret)
	limited := func(h http.HandlerFunc) http.Handler {
		return auth(middleware.RateLimit(limiter, cfg.ClaimRateLimit, cfg.ClaimRateWindow)(h))
	}

	walletSvc := walletService.NewWalletService(walletRepository.NewWalletRepository(db), hub)
	verifier := chain.NewVerifier(ledger, chain.VerifierConfig{
		MinConfirmations: cfg.MinConfirmations,
		Timeout:          cfg.LedgerTimeout,
	})
	docSvc := docService.NewDocumentService(
		docRepository.NewDocumentRepository(db),
		docRepository.NewShareRepository(db),
		walletSvc,
		verifier,
		hub,
		cfg.ContractAddress,
	)
	docs := docHandler.NewDocumentHandler(docSvc, walletSvc, content)
	wallets := walletHandler.NewWalletHandler(walletSvc)

	// WebSocket
	upgrader := socket.NewUpgrader(cfg.AllowedOrigins)
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, upgrader, walletSvc, w, r, middleware.AccountID(r.Context()))
	})
	mux.Handle("/ws", auth(wsHandler))

	// REST API
	mux.Handle("/api/content/upload", limited(docs.UploadContent))
	mux.Handle("/api/documents/claim", limited(docs.ClaimUpload))
	mux.Handle("/api/documents/share", limited(docs.ShareDocument))
	mux.Handle("/api/documents/reassign", limited(docs.ReassignDocument))
	mux.Handle("/api/documents", auth(http.HandlerFunc(docs.GetDocuments)))
	mux.Handle("/api/documents/shared", auth(http.HandlerFunc(docs.GetSharedDocuments)))
	mux.Handle("/api/documents/grants", auth(http.HandlerFunc(docs.GetGrants)))
	mux.Handle("/api/documents/delete", auth(http.HandlerFunc(docs.DeleteDocument)))
	mux.Handle("/api/documents/history", auth(http.HandlerFunc(docs.GetHistory)))

	mux.Handle("/api/wallets", auth(http.HandlerFunc(wallets.GetWallets)))
	mux.Handle("/api/wallets/add", auth(http.HandlerFunc(wallets.AddWallet)))
	mux.Handle("/api/wallets/switch", auth(http.HandlerFunc(wallets.SwitchWallet)))
	mux.Handle("/api/wallets/remove", auth(http.HandlerFunc(wallets.RemoveWallet)))
	mux.Handle("/api/wallets/accounts", auth(http.HandlerFunc(wallets.GetAccounts)))

	mux.HandleFunc("/api/health", health(db))

	return middleware.RequestLogger(middleware.CORSMiddleware(cfg.AllowedOrigins)(mux))
}

func health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

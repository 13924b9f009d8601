package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/zitadel/logging"

	"github.com/zitadel/oidc-rp/pkg/client/rp"
	"github.com/zitadel/oidc-rp/pkg/config"
	httphelper "github.com/zitadel/oidc-rp/pkg/http"
	"github.com/zitadel/oidc-rp/pkg/http/mw"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

func main() {
	configPath := flag.String("config", "", "path of the relying party configuration")
	flag.Parse()

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		}),
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := &http.Client{Timeout: cfg.HTTPTimeout}
	logging.EnableHTTPClient(client, logging.WithClientGroup("client"))

	options := []rp.Option{
		rp.WithLogger(logger),
		rp.WithHTTPClient(client),
	}
	if cfg.Cookie.HashKey == "" {
		options = append(options, rp.WithCookieHandler(
			httphelper.NewCookieHandler(securecookie.GenerateRandomKey(32), nil, httphelper.WithUnsecure()),
		))
	}
	provider, err := rp.NewRelyingPartyFromConfig(ctx, cfg, options...)
	if err != nil {
		logger.Error("create relying party", "error", err)
		os.Exit(1)
	}

	var counter atomic.Int64
	chain := mw.New()
	chain.Use(logging.Middleware(
		logging.WithLogger(logger),
		logging.WithGroup("app"),
		logging.WithIDFunc(func() slog.Attr {
			return slog.Int64("id", counter.Add(1))
		}),
	))

	chain.Handle("/login", rp.AuthURLHandler(uuid.NewString, provider))
	chain.Handle(cfg.Host.CallbackPath, rp.ResponseHandler(userinfo, provider))
	if host := provider.Host(); host != nil {
		chain.Handle("/jwks", host)
		chain.Handle("/requests/", host)
	}

	logger.InfoContext(ctx, "server listening, press ctrl+c to stop", "addr", cfg.Host.Address)
	if err := <-httphelper.StartServer(ctx, cfg.Host.Address, chain); err != nil {
		logger.Error("server terminated", "error", err)
		os.Exit(1)
	}
}

// userinfo completes the authentication and shows the claims of the End-User.
func userinfo(w http.ResponseWriter, r *http.Request, req *oidc.AuthRequest, resp oidc.AuthorizationResponse, provider rp.RelyingParty) {
	info, err := rp.GetUserInfo(r.Context(), provider, req, resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("content-type", "application/json")
	w.Write(data)
}

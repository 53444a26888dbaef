package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"

	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/items"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/loans"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/lending/returns"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/notify"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/platform/auth"
	"github.com/Rafiafrzl/SiPinjam-backend/internal/platform/db"
)

func main() {
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if mode != "dev" && mode != "release" {
		fmt.Println("Usage: set mode to dev or release in config/config.yaml")
		return
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	secret := []byte(cfg.Server.JWTSecret)
	if len(secret) == 0 {
		log.Fatal("[ERROR] server.jwt_secret is not set")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS is only needed while the frontend runs on its own dev server
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	notifySvc := notify.NewService(conn)
	authSvc := auth.NewService(conn, secret)
	itemSvc := items.NewService(conn)
	loanSvc := loans.NewService(conn, notifySvc)
	returnSvc := returns.NewService(conn, notifySvc)

	// /api/v1: public login, then an authenticated group with an admin-only
	// subgroup layered on top
	api := r.Group("/api/v1")
	authed := api.Group("", auth.RequireAuth(secret))
	admin := authed.Group("", auth.RequireRole(auth.RoleAdmin))

	auth.RegisterRoutes(api, admin, authSvc)
	items.RegisterRoutes(authed, admin, itemSvc)
	loans.RegisterRoutes(authed, admin, loanSvc)
	returns.RegisterRoutes(authed, admin, returnSvc)
	notify.RegisterRoutes(authed, notifySvc)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	notify.NewReminder(notifySvc).Start(workerCtx)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		var err error
		if cfg.Certificate.Cert != "" && cfg.Certificate.Key != "" {
			certFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Key)
			log.Printf("[INFO] listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Printf("[INFO] listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}

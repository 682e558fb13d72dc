// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cbemstar/image-converter-app/internal/config"
	"github.com/cbemstar/image-converter-app/internal/engine"
	"github.com/cbemstar/image-converter-app/internal/ghostscript"
	"github.com/cbemstar/image-converter-app/internal/jobs"
	"github.com/cbemstar/image-converter-app/internal/pdf"
	"github.com/cbemstar/image-converter-app/internal/raster"
	"github.com/cbemstar/image-converter-app/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	store, err := storage.NewLocal(cfg.WorkDir)
	if err != nil {
		log.Fatalf("Failed to prepare work dir: %v", err)
	}

	// Ghostscript はページの画像化と高圧縮の両方に使う
	gs := ghostscript.New(cfg.GhostscriptPath)
	eng := engine.New(engine.Config{
		Rasterizer:  raster.New(gs),
		Distiller:   gs,
		Concurrency: cfg.ConvertConcurrency,
	})

	pdfService, err := pdf.NewService(cfg, store, eng)
	if err != nil {
		log.Fatalf("Failed to create pdf service: %v", err)
	}

	var manager *jobs.Manager
	if cfg.QueueRedisURL != "" {
		manager, err = setupJobs(cfg, pdfService)
		if err != nil {
			log.Fatalf("Failed to set up job queue: %v", err)
		}
		manager.StartWorkers()
	} else {
		log.Printf("QUEUE_REDIS_URL is empty; all jobs run synchronously")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepWorkDir(ctx, store, time.Duration(cfg.JobExpireMinutes)*time.Minute)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg)))

	// ルーティングの設定
	setupRoutes(router, cfg, pdfService, manager)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if manager != nil {
		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.Printf("Job manager shutdown error: %v", err)
		}
	}
}

// corsConfig は許可オリジンの設定から CORS 設定を作成します。"*" を含む場合は全オリジンを許可します。
func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	origins := cfg.AllowedOrigins()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	corsCfg.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	// ダウンロード時のファイル名とジョブIDをフロントエンドから読めるようにする
	corsCfg.ExposeHeaders = []string{"Content-Disposition", "X-Job-Id"}
	return corsCfg
}

// sweepWorkDir は再起動などで削除タイマーが失われた作業ディレクトリを定期的に掃除します。
func sweepWorkDir(ctx context.Context, store *storage.Local, maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	sweep := func() {
		removed, err := store.Sweep(maxAge, time.Now())
		if err != nil {
			log.Printf("work dir sweep failed: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("work dir sweep removed %d stale jobs", removed)
		}
	}

	sweep()
	ticker := time.NewTicker(maxAge)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "image-converter-api",
		"version": "0.1.0",
	})
}

// setupRoutes は変換APIとジョブAPIを登録します。manager が nil の場合は常に同期処理になります。
func setupRoutes(router *gin.Engine, cfg *config.Config, pdfService *pdf.Service, manager *jobs.Manager) {
	router.GET("/health", handleHealth)

	opts := pdf.HandlerOptions{
		AsyncThresholdBytes: cfg.AsyncThresholdBytes,
		AsyncThresholdPages: cfg.AsyncThresholdPages,
	}
	if manager != nil {
		opts.Scheduler = manager
	}

	api := router.Group("/api")
	{
		pdfRoutes := api.Group("/pdf")
		{
			pdfRoutes.POST("/assemble", pdf.AssembleHandler(pdfService, opts))
			pdfRoutes.POST("/split", pdf.SplitHandler(pdfService, opts))
			pdfRoutes.POST("/to-images", pdf.ToImagesHandler(pdfService, opts))
			pdfRoutes.POST("/from-images", pdf.FromImagesHandler(pdfService, opts))
			pdfRoutes.POST("/compress", pdf.CompressHandler(pdfService, opts))
			pdfRoutes.POST("/secure", pdf.SecureHandler(pdfService))
			pdfRoutes.POST("/inspect", pdf.InspectHandler(pdfService))
		}

		api.POST("/images/rasterize", pdf.RasterizeHandler(pdfService, opts))

		jobRoutes := api.Group("/jobs")
		{
			if manager != nil {
				jobRoutes.GET("/:id", jobStatusHandler(manager))
			}
			jobRoutes.GET("/:id/download", jobDownloadHandler(pdfService))
		}
	}
}

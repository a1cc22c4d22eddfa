// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"silo-go/internal/config"
	"silo-go/internal/handler"
	"silo-go/internal/middleware"
	"silo-go/internal/pipeline"
	"silo-go/internal/repository"
	"silo-go/internal/service"
	"silo-go/pkg/ai"
	"silo-go/pkg/database"
	"silo-go/pkg/es"
	"silo-go/pkg/kafka"
	"silo-go/pkg/log"
	"silo-go/pkg/scanner"
	"silo-go/pkg/storage"
	"silo-go/pkg/thumbnail"
	"silo-go/pkg/tika"
	"silo-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库与外部客户端
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	store, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	search, err := es.NewClient(cfg.Elasticsearch)
	if err != nil {
		log.Fatalf("Elasticsearch 初始化失败: %v", err)
	}
	kafka.InitProducer(cfg.Kafka)

	scanClient := scanner.NewClient(cfg.Scanner)
	tikaClient := tika.NewClient(cfg.Tika)
	aiFactory := ai.NewFactory(cfg.AI)
	thumbnailer := thumbnail.NewGenerator(0)

	// 4. 初始化 Repository
	fileRepo := repository.NewFileRecordRepository(database.DB)
	versionRepo := repository.NewVersionRepository(database.DB)
	hashIndexRepo := repository.NewHashIndexRepository(database.RDB)

	// 5. 初始化文件处理管道
	orchestrator := pipeline.NewOrchestrator(cfg.Pipeline,
		pipeline.NewHashingStage(),
		pipeline.NewHashIndexStage(hashIndexRepo),
		pipeline.NewScanStage(scanClient),
		pipeline.NewStoreStage(store),
		pipeline.NewThumbnailStage(thumbnailer, store),
		pipeline.NewAIStage(aiFactory, tikaClient, cfg.AI.MinConfidence, cfg.Tika.MaxChars),
		pipeline.NewIndexStage(search),
		pipeline.NewVersionStage(versionRepo),
	)

	hub := service.NewProgressHub()
	orchestrator.SetObserver(hub.Publish)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	ingestService := service.NewIngestService(orchestrator, fileRepo)
	fileService := service.NewFileService(fileRepo, versionRepo, hashIndexRepo, store, search)
	enrichService := service.NewEnrichService(fileRepo, store, tikaClient, aiFactory, search, cfg.AI, cfg.Tika)

	// 7. 启动后台 Kafka 消费者处理 AI 补充提取任务
	go kafka.StartConsumer(cfg.Kafka, enrichService)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	fileHandler := handler.NewFileHandler(ingestService, fileService)
	pipelineHandler := handler.NewPipelineHandler(orchestrator, cfg.Pipeline)
	eventsHandler := handler.NewEventsHandler(hub)

	apiV1 := r.Group("/api/v1")
	{
		files := apiV1.Group("/files")
		files.Use(middleware.AuthMiddleware(jwtManager))
		{
			files.POST("/upload", fileHandler.Upload)
			files.GET("", fileHandler.ListFiles)
			files.GET("/duplicates/:hash", fileHandler.FindDuplicates)
			files.GET("/:id", fileHandler.GetFile)
			files.GET("/:id/download", fileHandler.Download)
			files.DELETE("/:id", fileHandler.DeleteFile)
			files.POST("/:id/archive", fileHandler.ArchiveFile)
			files.GET("/:id/versions", fileHandler.ListVersions)
			files.GET("/:id/events", eventsHandler.Stream)

			// 同步客户端探测的管道管理端点，挂在 /files 之下
			files.GET("/pipeline/status", pipelineHandler.Status)
			files.PUT("/pipeline/stages/:name/enable", pipelineHandler.EnableStage)
			files.PUT("/pipeline/stages/:name/disable", pipelineHandler.DisableStage)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

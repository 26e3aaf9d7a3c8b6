package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/docscan/docscan/internal/conf"
	"github.com/docscan/docscan/internal/data"
	"github.com/docscan/docscan/internal/detect"
	"github.com/docscan/docscan/internal/handler"
	"github.com/docscan/docscan/internal/repository"
	"github.com/docscan/docscan/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := conf.LoadConfig()

	db, cleanup, err := data.Open(cfg.App.DBPath)
	if err != nil {
		slog.Error("Failed to open metadata store.", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	store, err := storage.NewService(cfg.Storage.Root, cfg.Storage.ThumbMaxEdge)
	if err != nil {
		slog.Error("Failed to initialize storage.", "error", err)
		os.Exit(1)
	}

	detector := detect.NewDefaultDetector(cfg.Detect.MinAreaFrac)
	repo := repository.NewDocumentsRepository(db, store)
	docH := handler.NewDocumentHandler(repo, detector, store)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api/v1")
	{
		api.POST("/detect", docH.Detect)

		docs := api.Group("/documents")
		{
			docs.POST("", docH.Create)
			docs.GET("", docH.List)
			docs.DELETE("", docH.DeleteAll)

			docs.GET("/:id", docH.Get)
			docs.PATCH("/:id", docH.Rename)
			docs.DELETE("/:id", docH.Delete)

			docs.POST("/:id/pages", docH.AppendPage)
			docs.GET("/:id/pdf", docH.GetPDF)
		}

		api.GET("/files/*path", docH.ServeFile)
	}

	slog.Info("Server starting.", "port", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		slog.Error("Server stopped.", "error", err)
		os.Exit(1)
	}
}

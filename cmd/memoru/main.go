package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"memoru/internal/anki"
	"memoru/internal/api"
	"memoru/internal/backup"
	"memoru/internal/config"
	"memoru/internal/db"
	"memoru/internal/scheduler"
	"memoru/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	engine := scheduler.NewDefault()
	studySetService := services.NewStudySetService(conn)
	folderService := services.NewFolderService(conn)
	flashcardService := services.NewFlashcardService(conn, engine)
	importer := anki.NewImporter(folderService, flashcardService, cfg.MediaDir, cfg.DesiredRetention)
	exporter := anki.NewExporter(folderService, flashcardService, cfg.MediaDir)
	backupService := backup.NewService(conn)

	server := api.NewServer(studySetService, folderService, flashcardService, importer, exporter, backupService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("listening on :%s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

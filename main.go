package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bulkmailer/config"
	"bulkmailer/database"
	"bulkmailer/handlers"
	"bulkmailer/services"
)

func main() {
	// Load configuration from .env / environment
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Error loading configuration: %v", err)
	}

	// Initialize database connection
	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("Error connecting to database: %v", err)
	}
	defer db.Close()

	// Create the schema if it is absent
	if err := database.ApplyMigrations(cfg.DatabasePath); err != nil {
		logrus.Fatalf("Error applying database migrations: %v", err)
	}

	uploads := services.NewUploadStore()
	logs := database.NewLogStore(db)
	generator := services.NewGroqGenerator(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel)
	mailService := services.NewMailService(cfg)
	dispatcher := services.NewDispatcher(mailService, generator, logs, cfg.MaxEmailsPerMinute)
	scheduler := services.NewScheduler(dispatcher)

	// Set up router
	r := mux.NewRouter()
	r.HandleFunc("/upload", handlers.UploadHandler(uploads)).Methods("POST")
	r.HandleFunc("/send_emails", handlers.SendEmailsHandler(uploads, dispatcher)).Methods("POST")
	r.HandleFunc("/jobs/{id}", handlers.JobStatusHandler(dispatcher)).Methods("GET")
	r.HandleFunc("/schedule_emails", handlers.ScheduleEmailsHandler(uploads, scheduler)).Methods("POST")
	r.HandleFunc("/schedule_emails/{id}", handlers.CancelScheduleHandler(scheduler)).Methods("DELETE")
	r.HandleFunc("/email_logs", handlers.GetLogsHandler(logs)).Methods("GET")
	r.HandleFunc("/email_stats", handlers.GetStatsHandler(db)).Methods("GET")

	logrus.Infof("Server starting on port %s...", cfg.Port)
	logrus.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}

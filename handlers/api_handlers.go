package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bulkmailer/database"
	"bulkmailer/services"
	"bulkmailer/utils"
)

// ScheduleRequest is the payload for scheduling a deferred dispatch.
type ScheduleRequest struct {
	ScheduleTime string `json:"schedule_time"`
	services.DispatchParams
}

// UploadHandler accepts a multipart CSV upload and stores the parsed table.
func UploadHandler(store *services.UploadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			errorResponse(w, "No file part", http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Filename == "" {
			errorResponse(w, "No selected file", http.StatusBadRequest)
			return
		}
		if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
			errorResponse(w, "Only CSV files are allowed", http.StatusBadRequest)
			return
		}

		recipients, err := services.ParseRecipients(file)
		if err != nil {
			errorResponse(w, "Error during upload: "+err.Error(), http.StatusInternalServerError)
			return
		}

		upload := store.Put(recipients)
		logrus.WithFields(logrus.Fields{"upload": upload.ID, "rows": len(recipients)}).Info("File uploaded")
		successResponse(w, "File uploaded successfully", map[string]interface{}{
			"upload_id": upload.ID,
			"rows":      recipients,
		})
	}
}

// SendEmailsHandler starts a dispatch job over the named (or most recent)
// upload and returns its job id without waiting for the batch to finish.
func SendEmailsHandler(store *services.UploadStore, dispatcher *services.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params services.DispatchParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			errorResponse(w, "Invalid request payload", http.StatusBadRequest)
			return
		}
		if err := params.Validate(); err != nil {
			errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}

		upload, ok := store.Get(params.UploadID)
		if !ok {
			errorResponse(w, services.ErrNoUpload.Error(), http.StatusBadRequest)
			return
		}

		jobID := dispatcher.StartJob(upload.Recipients, params)
		successResponse(w, "Email dispatch started", map[string]interface{}{
			"job_id": jobID,
			"total":  len(upload.Recipients),
		})
	}
}

// JobStatusHandler reports the progress of one dispatch job.
func JobStatusHandler(dispatcher *services.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		status, ok := dispatcher.Status(id)
		if !ok {
			errorResponse(w, "Unknown job", http.StatusNotFound)
			return
		}
		successResponse(w, "Job status retrieved", status)
	}
}

// ScheduleEmailsHandler arms a one-shot deferred dispatch. The recipient
// table is snapshotted now, not at fire time.
func ScheduleEmailsHandler(store *services.UploadStore, scheduler *services.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorResponse(w, "Invalid request payload", http.StatusBadRequest)
			return
		}

		at, err := services.ParseScheduleTime(req.ScheduleTime)
		if err != nil {
			errorResponse(w, "Failed to schedule emails: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if err := req.Validate(); err != nil {
			errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}

		upload, ok := store.Get(req.UploadID)
		if !ok {
			errorResponse(w, services.ErrNoUpload.Error(), http.StatusBadRequest)
			return
		}

		id := scheduler.Schedule(at, upload.Recipients, req.DispatchParams)
		successResponse(w, "Emails scheduled successfully", map[string]interface{}{
			"schedule_id": id,
			"fire_at":     at,
		})
	}
}

// CancelScheduleHandler disarms a schedule that has not fired yet.
func CancelScheduleHandler(scheduler *services.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := scheduler.Cancel(id); err != nil {
			if errors.Is(err, services.ErrUnknownSchedule) {
				errorResponse(w, err.Error(), http.StatusNotFound)
				return
			}
			errorResponse(w, "Failed to cancel schedule", http.StatusInternalServerError)
			return
		}
		successResponse(w, "Schedule cancelled", nil)
	}
}

// GetLogsHandler returns every email log row in insertion order.
func GetLogsHandler(logs *database.LogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := logs.List()
		if err != nil {
			logrus.WithError(err).Error("Error querying email logs")
			errorResponse(w, "Internal server error fetching logs", http.StatusInternalServerError)
			return
		}
		successResponse(w, "Email logs retrieved successfully", entries)
	}
}

// GetStatsHandler returns the status distribution and sends per day.
func GetStatsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 7
		if daysStr := r.URL.Query().Get("days"); daysStr != "" {
			if parsed, err := strconv.Atoi(daysStr); err == nil && parsed > 0 {
				days = parsed
			}
		}

		statusCounts, err := utils.GetStatusDistribution(db)
		if err != nil {
			logrus.WithError(err).Error("Error fetching email stats")
			errorResponse(w, "Internal server error fetching email stats", http.StatusInternalServerError)
			return
		}
		dailySends, err := utils.GetDailySends(db, days)
		if err != nil {
			logrus.WithError(err).Error("Error fetching daily sends")
			errorResponse(w, "Internal server error fetching email stats", http.StatusInternalServerError)
			return
		}

		successResponse(w, "Email stats retrieved", map[string]interface{}{
			"status_distribution": statusCounts,
			"daily_sends":         dailySends,
		})
	}
}

package models

import (
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/repository"
)

type CrawlerLogResponse struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	EventType string      `json:"event_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details"`
	CreatedAt time.Time   `json:"created_at"`
}

type RunDetailResponse struct {
	Run repository.CrawlRun `json:"run"`
	// IsRunning is true while the run still holds its lock in Redis.
	IsRunning bool                 `json:"is_running"`
	Logs      []CrawlerLogResponse `json:"logs"`
}

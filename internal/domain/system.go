package domain

import "time"

type SystemMetrics struct {
	CPUPercent    float64       `json:"cpu_percent"`
	MemoryTotal   uint64        `json:"memory_total"`
	MemoryUsed    uint64        `json:"memory_used"`
	MemoryPercent float64       `json:"memory_percent"`
	DiskTotal     uint64        `json:"disk_total"`
	DiskUsed      uint64        `json:"disk_used"`
	DiskPercent   float64       `json:"disk_percent"`
	Goroutines    int           `json:"goroutines"`
	Uptime        time.Duration `json:"uptime"`
	Timestamp     time.Time     `json:"timestamp"`
}

type QueueStats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Completed int    `json:"completed"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Paused    bool   `json:"paused"`
}

// QueueMetrics totals the per-queue counters. Processed and Failed cover the
// current day only.
type QueueMetrics struct {
	Queues    []QueueStats `json:"queues"`
	Pending   int64        `json:"pending"`
	Active    int64        `json:"active"`
	Scheduled int64        `json:"scheduled"`
	Retry     int64        `json:"retry"`
	Archived  int64        `json:"archived"`
	Processed int64        `json:"processed"`
	Failed    int64        `json:"failed"`
	Timestamp time.Time    `json:"timestamp"`
}

type WorkerInfo struct {
	ServerID    string         `json:"server_id"`
	Host        string         `json:"host"`
	PID         int            `json:"pid"`
	Concurrency int            `json:"concurrency"`
	Queues      map[string]int `json:"queues"`
	Started     time.Time      `json:"started"`
	ActiveTasks int            `json:"active_tasks"`
}

type HealthReport struct {
	Healthy   bool            `json:"healthy"`
	Checks    map[string]bool `json:"checks"`
	Timestamp time.Time       `json:"timestamp"`
}

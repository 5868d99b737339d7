package service

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/orchids/video-gallery/internal/domain"
)

// QueueInspector is the subset of *asynq.Inspector the monitor reads.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Servers() ([]*asynq.ServerInfo, error)
}

type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type MonitoringService struct {
	inspector QueueInspector
	checks    []HealthCheck
	startTime time.Time
}

func NewMonitoringService(inspector QueueInspector, checks ...HealthCheck) *MonitoringService {
	return &MonitoringService{
		inspector: inspector,
		checks:    checks,
		startTime: time.Now(),
	}
}

// CheckHealth runs every dependency check. The report is unhealthy when any
// check fails.
func (s *MonitoringService) CheckHealth(ctx context.Context) *domain.HealthReport {
	report := &domain.HealthReport{
		Healthy:   true,
		Checks:    make(map[string]bool, len(s.checks)),
		Timestamp: time.Now().UTC(),
	}
	for _, check := range s.checks {
		ok := check.Check(ctx) == nil
		report.Checks[check.Name] = ok
		if !ok {
			report.Healthy = false
		}
	}
	return report
}

func (s *MonitoringService) GetSystemMetrics(ctx context.Context) (*domain.SystemMetrics, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU usage: %w", err)
	}

	memStats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory stats: %w", err)
	}

	diskStats, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	metrics := &domain.SystemMetrics{
		MemoryTotal:   memStats.Total,
		MemoryUsed:    memStats.Used,
		MemoryPercent: memStats.UsedPercent,
		DiskTotal:     diskStats.Total,
		DiskUsed:      diskStats.Used,
		DiskPercent:   diskStats.UsedPercent,
		Goroutines:    runtime.NumGoroutine(),
		Uptime:        time.Since(s.startTime),
		Timestamp:     time.Now().UTC(),
	}
	if len(cpuPercent) > 0 {
		metrics.CPUPercent = cpuPercent[0]
	}
	return metrics, nil
}

func (s *MonitoringService) GetQueueMetrics(ctx context.Context) (*domain.QueueMetrics, error) {
	queues, err := s.inspector.Queues()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue list: %w", err)
	}
	sort.Strings(queues)

	metrics := &domain.QueueMetrics{
		Queues:    make([]domain.QueueStats, 0, len(queues)),
		Timestamp: time.Now().UTC(),
	}

	for _, name := range queues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := s.inspector.GetQueueInfo(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get queue %s: %w", name, err)
		}

		metrics.Queues = append(metrics.Queues, domain.QueueStats{
			Queue:     info.Queue,
			Size:      info.Size,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Completed: info.Completed,
			Processed: info.Processed,
			Failed:    info.Failed,
			Paused:    info.Paused,
		})
		metrics.Pending += int64(info.Pending)
		metrics.Active += int64(info.Active)
		metrics.Scheduled += int64(info.Scheduled)
		metrics.Retry += int64(info.Retry)
		metrics.Archived += int64(info.Archived)
		metrics.Processed += int64(info.Processed)
		metrics.Failed += int64(info.Failed)
	}

	return metrics, nil
}

func (s *MonitoringService) ListWorkers(ctx context.Context) ([]domain.WorkerInfo, error) {
	servers, err := s.inspector.Servers()
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}

	workers := make([]domain.WorkerInfo, 0, len(servers))
	for _, server := range servers {
		workers = append(workers, domain.WorkerInfo{
			ServerID:    server.ID,
			Host:        server.Host,
			PID:         server.PID,
			Concurrency: server.Concurrency,
			Queues:      server.Queues,
			Started:     server.Started,
			ActiveTasks: len(server.ActiveWorkers),
		})
	}
	return workers, nil
}

package json

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/khanhnv2901/secheckup/internal/domain/checkup"
	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
	"github.com/khanhnv2901/secheckup/internal/shared/security"
)

// TelemetryRecord is one line of telemetry.jsonl.
type TelemetryRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	CheckupID       string    `json:"checkup_id"`
	Mode            string    `json:"mode"`
	Target          string    `json:"target,omitempty"`
	Status          string    `json:"status"`
	ProbeCount      int       `json:"probe_count"`
	SecureCount     int       `json:"secure_count"`
	WarningCount    int       `json:"warning_count"`
	DangerCount     int       `json:"danger_count"`
	UnknownCount    int       `json:"unknown_count"`
	Score           float64   `json:"score"`
	DurationSeconds float64   `json:"duration_seconds"`
	AvgProbeMS      float64   `json:"avg_probe_ms"`
}

// TelemetryLog appends one record per finished checkup.
type TelemetryLog struct {
	path string
	mu   sync.Mutex
}

// NewTelemetryLog writes to <resultsDir>/telemetry.jsonl.
func NewTelemetryLog(resultsDir string) (*TelemetryLog, error) {
	path, err := security.ResolveWithin(resultsDir, consts.TelemetryFile)
	if err != nil {
		return nil, fmt.Errorf("resolve telemetry path: %w", err)
	}
	return &TelemetryLog{path: path}, nil
}

// Record appends a telemetry line for c.
func (l *TelemetryLog) Record(c *checkup.Checkup) error {
	s := c.Summary()
	verdicts := c.Verdicts()

	totalMS := 0.0
	for _, v := range verdicts {
		totalMS += v.DurationMS
	}
	avg := 0.0
	if len(verdicts) > 0 {
		avg = totalMS / float64(len(verdicts))
	}
	duration := 0.0
	if !c.StartedAt().IsZero() && c.CompletedAt().After(c.StartedAt()) {
		duration = c.CompletedAt().Sub(c.StartedAt()).Seconds()
	}

	record := TelemetryRecord{
		Timestamp:       time.Now().UTC(),
		CheckupID:       c.ID(),
		Mode:            string(c.Mode()),
		Target:          c.Target(),
		Status:          string(c.Status()),
		ProbeCount:      s.Total,
		SecureCount:     s.Secure,
		WarningCount:    s.Warning,
		DangerCount:     s.Danger,
		UnknownCount:    s.Unknown,
		Score:           s.Score,
		DurationSeconds: duration,
		AvgProbeMS:      avg,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, consts.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}

// Recent returns up to limit of the most recent records, oldest first.
// Malformed lines are skipped. limit <= 0 returns everything.
func (l *TelemetryLog) Recent(limit int) ([]TelemetryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	var records []TelemetryRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec TelemetryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read telemetry: %w", err)
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

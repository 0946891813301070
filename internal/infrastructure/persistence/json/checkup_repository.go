package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/domain/checkup"
	"github.com/khanhnv2901/secheckup/internal/report"
	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
	"github.com/khanhnv2901/secheckup/internal/shared/security"
)

const checkupFileExt = ".json"

// checkupDTO is the data transfer object for JSON serialization
type checkupDTO struct {
	ID          string       `json:"id"`
	Target      string       `json:"target,omitempty"`
	Mode        string       `json:"mode"`
	Status      string       `json:"status"`
	CreatedAt   string       `json:"created_at"`
	StartedAt   string       `json:"started_at,omitempty"`
	CompletedAt string       `json:"completed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	Verdicts    []verdictDTO `json:"verdicts"`
	Summary     summaryDTO   `json:"summary"`
}

type verdictDTO struct {
	ProbeID     string                 `json:"probe_id"`
	Title       string                 `json:"title"`
	Category    string                 `json:"category"`
	Status      string                 `json:"status"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Remediation *remediationDTO        `json:"remediation,omitempty"`
	CheckedAt   string                 `json:"checked_at,omitempty"`
	DurationMS  float64                `json:"duration_ms"`
}

type remediationDTO struct {
	Summary string    `json:"summary"`
	Risk    string    `json:"risk,omitempty"`
	Impact  string    `json:"impact,omitempty"`
	Steps   []string  `json:"steps,omitempty"`
	Links   []linkDTO `json:"links,omitempty"`
}

type linkDTO struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type summaryDTO struct {
	Total   int     `json:"total"`
	Secure  int     `json:"secure"`
	Warning int     `json:"warning"`
	Danger  int     `json:"danger"`
	Unknown int     `json:"unknown"`
	Skipped int     `json:"skipped"`
	Score   float64 `json:"score"`
	Grade   string  `json:"grade"`
	Overall string  `json:"overall"`
}

// CheckupRepository implements the checkup.Repository interface using one
// JSON file per checkup under <results_dir>/checkups/.
type CheckupRepository struct {
	dir string
	mu  sync.RWMutex
}

var _ checkup.Repository = (*CheckupRepository)(nil)

// NewCheckupRepository creates a new JSON-based checkup repository
func NewCheckupRepository(resultsDir string) (*CheckupRepository, error) {
	if resultsDir == "" {
		return nil, fmt.Errorf("results directory cannot be empty")
	}

	dir, err := security.ResolveWithin(resultsDir, consts.ResultsSubdir)
	if err != nil {
		return nil, fmt.Errorf("resolve checkups directory: %w", err)
	}
	if err := os.MkdirAll(dir, consts.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create checkups directory: %w", err)
	}

	return &CheckupRepository{dir: dir}, nil
}

// Dir returns the directory holding checkup files.
func (r *CheckupRepository) Dir() string {
	return r.dir
}

// Save persists a checkup with all its verdicts
func (r *CheckupRepository) Save(ctx context.Context, c *checkup.Checkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath, err := r.pathFor(c.ID())
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(toDTO(c), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Write then rename so readers never see a partial file.
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, consts.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to save checkup: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return multierr.Append(fmt.Errorf("failed to save checkup: %w", err), os.Remove(tmp))
	}
	return nil
}

// FindByID retrieves a checkup by its ID
func (r *CheckupRepository) FindByID(ctx context.Context, id string) (*checkup.Checkup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := r.pathFor(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := loadFromFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, sharedErrors.ErrCheckupNotFound
	}
	return c, err
}

// FindAll retrieves all checkups, newest first. Unreadable files are
// skipped.
func (r *CheckupRepository) FindAll(ctx context.Context) ([]*checkup.Checkup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkups directory: %w", err)
	}

	checkups := make([]*checkup.Checkup, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), checkupFileExt) {
			continue
		}
		c, err := loadFromFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			continue
		}
		checkups = append(checkups, c)
	}

	sort.SliceStable(checkups, func(i, j int) bool {
		return checkups[i].CreatedAt().After(checkups[j].CreatedAt())
	})
	return checkups, nil
}

// Delete removes a checkup by its ID
func (r *CheckupRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath, err := r.pathFor(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sharedErrors.ErrCheckupNotFound
		}
		return fmt.Errorf("failed to delete checkup: %w", err)
	}
	return nil
}

// Purge removes every checkup created before cutoff. Failures on individual
// files do not stop the sweep; they are combined into the returned error.
func (r *CheckupRepository) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	removed := 0
	for _, c := range all {
		if !c.CreatedAt().Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, multierr.Append(errs, err)
		}
		filePath, err := r.pathFor(c.ID())
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, fmt.Errorf("delete checkup %s: %w", c.ID(), err))
			continue
		}
		removed++
	}
	return removed, errs
}

// Helper methods

func (r *CheckupRepository) pathFor(id string) (string, error) {
	if !security.IsCheckupID(id) {
		return "", fmt.Errorf("%w: %q", sharedErrors.ErrInvalidCheckupID, id)
	}
	return security.ResolveWithin(r.dir, id+checkupFileExt)
}

func loadFromFile(filePath string) (*checkup.Checkup, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var dto checkupDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrDeserializationFailed, err)
	}

	return fromDTO(dto)
}

func toDTO(c *checkup.Checkup) checkupDTO {
	s := c.Summary()
	dto := checkupDTO{
		ID:        c.ID(),
		Target:    c.Target(),
		Mode:      string(c.Mode()),
		Status:    string(c.Status()),
		CreatedAt: formatTime(c.CreatedAt()),
		StartedAt: formatTime(c.StartedAt()),
		Error:     c.ErrorMessage(),
		Verdicts:  make([]verdictDTO, 0, len(c.Verdicts())),
		Summary: summaryDTO{
			Total:   s.Total,
			Secure:  s.Secure,
			Warning: s.Warning,
			Danger:  s.Danger,
			Unknown: s.Unknown,
			Skipped: s.Skipped,
			Score:   s.Score,
			Grade:   s.Grade,
			Overall: string(s.Overall),
		},
	}
	dto.CompletedAt = formatTime(c.CompletedAt())

	for _, v := range c.Verdicts() {
		dto.Verdicts = append(dto.Verdicts, verdictToDTO(v))
	}
	return dto
}

func verdictToDTO(v checker.Verdict) verdictDTO {
	dto := verdictDTO{
		ProbeID:    v.ProbeID,
		Title:      v.Title,
		Category:   v.Category,
		Status:     string(v.Status),
		Message:    v.Message,
		Details:    v.Details,
		CheckedAt:  formatTime(v.CheckedAt),
		DurationMS: v.DurationMS,
	}
	if v.Remediation != nil {
		rem := &remediationDTO{
			Summary: v.Remediation.Summary,
			Risk:    v.Remediation.Risk,
			Impact:  v.Remediation.Impact,
			Steps:   v.Remediation.Steps,
		}
		for _, l := range v.Remediation.Links {
			rem.Links = append(rem.Links, linkDTO{Title: l.Title, URL: l.URL})
		}
		dto.Remediation = rem
	}
	return dto
}

func fromDTO(dto checkupDTO) (*checkup.Checkup, error) {
	if !security.IsCheckupID(dto.ID) {
		return nil, fmt.Errorf("%w: %q", sharedErrors.ErrInvalidCheckupID, dto.ID)
	}
	mode, err := checkup.ParseMode(dto.Mode)
	if err != nil {
		return nil, err
	}

	createdAt, err := parseTime(dto.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created at time: %w", err)
	}
	startedAt, err := parseTime(dto.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started at time: %w", err)
	}
	completedAt, err := parseTime(dto.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse completed at time: %w", err)
	}

	verdicts := make([]checker.Verdict, 0, len(dto.Verdicts))
	for _, vd := range dto.Verdicts {
		v, err := verdictFromDTO(vd)
		if err != nil {
			return nil, fmt.Errorf("failed to convert verdict %s: %w", vd.ProbeID, err)
		}
		verdicts = append(verdicts, v)
	}

	summary := report.Summary{
		Total:   dto.Summary.Total,
		Secure:  dto.Summary.Secure,
		Warning: dto.Summary.Warning,
		Danger:  dto.Summary.Danger,
		Unknown: dto.Summary.Unknown,
		Skipped: dto.Summary.Skipped,
		Score:   dto.Summary.Score,
		Grade:   dto.Summary.Grade,
		Overall: checker.Status(dto.Summary.Overall),
	}

	return checkup.Reconstruct(
		dto.ID,
		dto.Target,
		mode,
		checkup.Status(dto.Status),
		createdAt,
		startedAt,
		completedAt,
		verdicts,
		summary,
		dto.Error,
	), nil
}

func verdictFromDTO(dto verdictDTO) (checker.Verdict, error) {
	status := checker.Status(dto.Status)
	if !status.Valid() {
		return checker.Verdict{}, fmt.Errorf("%w: invalid status %q", sharedErrors.ErrDeserializationFailed, dto.Status)
	}
	checkedAt, err := parseTime(dto.CheckedAt)
	if err != nil {
		return checker.Verdict{}, err
	}

	v := checker.Verdict{
		ProbeID:    dto.ProbeID,
		Title:      dto.Title,
		Category:   dto.Category,
		Status:     status,
		Message:    dto.Message,
		Details:    dto.Details,
		CheckedAt:  checkedAt,
		DurationMS: dto.DurationMS,
	}
	if dto.Remediation != nil {
		rem := &checker.Remediation{
			Summary: dto.Remediation.Summary,
			Risk:    dto.Remediation.Risk,
			Impact:  dto.Remediation.Impact,
			Steps:   dto.Remediation.Steps,
		}
		for _, l := range dto.Remediation.Links {
			rem.Links = append(rem.Links, checker.Link{Title: l.Title, URL: l.URL})
		}
		v.Remediation = rem
	}
	return v, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

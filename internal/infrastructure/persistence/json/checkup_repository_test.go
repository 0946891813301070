package json

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/domain/checkup"
	"github.com/khanhnv2901/secheckup/internal/report"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

func completedCheckup(t *testing.T) *checkup.Checkup {
	t.Helper()
	c, err := checkup.New("https://example.com", checkup.ModeLive)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	verdicts := []checker.Verdict{
		{
			ProbeID: checker.ProbeHTTPS, Title: "HTTPS", Category: "Transport", Status: checker.StatusSecure,
			Message: "ok", CheckedAt: time.Now().UTC(), DurationMS: 12.5,
			Details: map[string]interface{}{"tls_version": "TLS 1.3"},
		},
		{
			ProbeID: checker.ProbeHeaders, Title: "Security headers", Category: "Web", Status: checker.StatusWarning,
			Message: "grade C", CheckedAt: time.Now().UTC(),
			Remediation: &checker.Remediation{
				Summary: "Add headers",
				Risk:    "Browser protections are off",
				Impact:  "Clickjacking",
				Steps:   []string{"Set HSTS"},
				Links:   []checker.Link{{Title: "MDN", URL: "https://developer.mozilla.org/"}},
			},
		},
	}
	for _, v := range verdicts {
		if err := c.Record(v); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := c.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return c
}

func TestCheckupRepository_SaveAndFind(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewCheckupRepository(dir)
	if err != nil {
		t.Fatalf("NewCheckupRepository: %v", err)
	}
	ctx := context.Background()
	c := completedCheckup(t)

	if err := repo.Save(ctx, c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "checkups", c.ID()+".json")); err != nil {
		t.Fatalf("Expected checkup file on disk: %v", err)
	}

	got, err := repo.FindByID(ctx, c.ID())
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status() != checkup.StatusComplete || got.Target() != c.Target() || got.Mode() != checkup.ModeLive {
		t.Errorf("unexpected loaded checkup status=%s target=%s", got.Status(), got.Target())
	}
	if !got.CreatedAt().Equal(c.CreatedAt()) || !got.CompletedAt().Equal(c.CompletedAt()) {
		t.Errorf("Expected timestamps to round-trip")
	}
	verdicts := got.Verdicts()
	if len(verdicts) != 2 {
		t.Fatalf("Expected 2 verdicts, got %d", len(verdicts))
	}
	if verdicts[0].Details["tls_version"] != "TLS 1.3" || verdicts[0].Remediation != nil {
		t.Errorf("unexpected first verdict %+v", verdicts[0])
	}
	if rem := verdicts[1].Remediation; rem == nil || rem.Links[0].URL != "https://developer.mozilla.org/" {
		t.Errorf("Expected remediation to round-trip, got %+v", rem)
	} else if rem.Risk != "Browser protections are off" || rem.Impact != "Clickjacking" {
		t.Errorf("Expected risk and impact to round-trip, got %+v", rem)
	}
	if s := got.Summary(); s != c.Summary() {
		t.Errorf("Expected summary %+v, got %+v", c.Summary(), s)
	}
}

func TestCheckupRepository_NotFoundAndInvalidID(t *testing.T) {
	repo, _ := NewCheckupRepository(t.TempDir())
	ctx := context.Background()

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, sharedErrors.ErrCheckupNotFound) {
		t.Errorf("Expected ErrCheckupNotFound, got %v", err)
	}
	if _, err := repo.FindByID(ctx, "../../etc/passwd"); !errors.Is(err, sharedErrors.ErrInvalidCheckupID) {
		t.Errorf("Expected ErrInvalidCheckupID, got %v", err)
	}
	if err := repo.Delete(ctx, uuid.NewString()); !errors.Is(err, sharedErrors.ErrCheckupNotFound) {
		t.Errorf("Expected ErrCheckupNotFound on delete, got %v", err)
	}
}

func TestCheckupRepository_FindAllNewestFirst(t *testing.T) {
	repo, _ := NewCheckupRepository(t.TempDir())
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		c := checkup.Reconstruct(uuid.NewString(), "", checkup.ModeSimulated, checkup.StatusComplete,
			now.Add(time.Duration(i)*time.Hour), time.Time{}, time.Time{}, nil, report.Summary{}, "")
		if err := repo.Save(ctx, c); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	// Unreadable files are skipped.
	if err := os.WriteFile(filepath.Join(repo.Dir(), uuid.NewString()+".json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 checkups, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt().After(all[i-1].CreatedAt()) {
			t.Errorf("Expected newest first at index %d", i)
		}
	}
}

func TestCheckupRepository_DeleteAndPurge(t *testing.T) {
	repo, _ := NewCheckupRepository(t.TempDir())
	ctx := context.Background()
	now := time.Now().UTC()

	old := checkup.Reconstruct(uuid.NewString(), "", checkup.ModeLive, checkup.StatusComplete,
		now.AddDate(0, 0, -40), time.Time{}, time.Time{}, nil, report.Summary{}, "")
	recent := checkup.Reconstruct(uuid.NewString(), "", checkup.ModeLive, checkup.StatusComplete,
		now.AddDate(0, 0, -1), time.Time{}, time.Time{}, nil, report.Summary{}, "")
	doomed := completedCheckup(t)
	for _, c := range []*checkup.Checkup{old, recent, doomed} {
		if err := repo.Save(ctx, c); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if err := repo.Delete(ctx, doomed.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, doomed.ID()); !errors.Is(err, sharedErrors.ErrCheckupNotFound) {
		t.Errorf("Expected deleted checkup to be gone, got %v", err)
	}

	removed, err := repo.Purge(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 purged checkup, got %d", removed)
	}
	if _, err := repo.FindByID(ctx, recent.ID()); err != nil {
		t.Errorf("Expected recent checkup to survive purge: %v", err)
	}
}

func TestCheckupRepository_CancelledContext(t *testing.T) {
	repo, _ := NewCheckupRepository(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := repo.Save(ctx, completedCheckup(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestTelemetryLog(t *testing.T) {
	dir := t.TempDir()
	log, err := NewTelemetryLog(dir)
	if err != nil {
		t.Fatalf("NewTelemetryLog: %v", err)
	}

	if recs, err := log.Recent(5); err != nil || len(recs) != 0 {
		t.Fatalf("Expected no records before first write, got %v, %v", recs, err)
	}

	for i := 0; i < 3; i++ {
		if err := log.Record(completedCheckup(t)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recs, err := log.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	rec := recs[1]
	if rec.ProbeCount != 2 || rec.SecureCount != 1 || rec.WarningCount != 1 || rec.Score != 75 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.AvgProbeMS != 6.25 {
		t.Errorf("Expected average probe duration 6.25ms, got %v", rec.AvgProbeMS)
	}
}

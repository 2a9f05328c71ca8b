package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/askgate/pkg/models"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "history.db")
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenAndMigrate(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "history.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 3 {
		t.Errorf("schema version = %d, want 3", version)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &Run{ID: "run-1", Kind: KindProbe, Label: "fiis_suite", BaseURL: "http://ask", StartedAt: started}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	rows := []models.ProbeRow{
		{Idx: 0, Question: "q0", HTTPStatus: intp(200), ChosenIntent: strp("cadastro"), ChosenEntity: strp("fiis_cadastro"), LatencyMS: 12.5, SuiteStatus: models.StatusPass},
		{Idx: 1, Question: "q1", RequestError: strp("read_timeout"), LatencyMS: 30000, SuiteStatus: models.StatusError},
		{Idx: 2, Question: "q2", HTTPStatus: intp(200), ChosenIntent: strp("precos"), SuiteStatus: models.StatusFail},
	}
	if err := db.InsertRows(run.ID, rows); err != nil {
		t.Fatalf("InsertRows failed: %v", err)
	}
	finished := started.Add(time.Minute)
	if err := db.FinishRun(run.ID, finished, 3, 1, 1, 0, 1); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := &Run{
		ID: "run-1", Kind: KindProbe, Label: "fiis_suite", BaseURL: "http://ask",
		StartedAt: started, FinishedAt: &finished,
		Total: 3, Pass: 1, Fail: 1, Error: 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
	if rate := got.PassRate(); rate < 0.333 || rate > 0.334 {
		t.Errorf("PassRate = %v", rate)
	}

	all, err := db.ListRows(run.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Idx != 0 || *all[0].ChosenEntity != "fiis_cadastro" || all[1].HTTPStatus != nil {
		t.Errorf("rows = %+v", all)
	}
	status := models.StatusError
	errs, err := db.ListRows(run.ID, &status)
	if err != nil {
		t.Fatal(err)
	}
	wantErr := []Row{{RunID: "run-1", Idx: 1, Question: "q1", SuiteStatus: models.StatusError, LatencyMS: 30000, RequestError: strp("read_timeout")}}
	if diff := cmp.Diff(wantErr, errs); diff != "" {
		t.Errorf("error rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAbortRun(t *testing.T) {
	db := setupTestDB(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"broken", "interrupted"} {
		if err := db.CreateRun(&Run{ID: id, Kind: KindProbe, StartedAt: started}); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.AbortRun("broken", started.Add(time.Second), "insert rows: disk full"); err != nil {
		t.Fatalf("AbortRun failed: %v", err)
	}
	got, err := db.GetRun("broken")
	if err != nil {
		t.Fatal(err)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(started.Add(time.Second)) {
		t.Errorf("FinishedAt = %v", got.FinishedAt)
	}
	if got.Failure == nil || *got.Failure != "insert rows: disk full" {
		t.Errorf("Failure = %v", got.Failure)
	}

	finished := started.Add(time.Minute)
	if err := db.FinishRun("interrupted", finished, 2, 1, 0, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := db.AbortRun("interrupted", started.Add(time.Hour), "context canceled"); err != nil {
		t.Fatal(err)
	}
	got, err = db.GetRun("interrupted")
	if err != nil {
		t.Fatal(err)
	}
	if !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
	if got.Failure == nil || *got.Failure != "context canceled" || got.Total != 2 {
		t.Errorf("run = %+v", got)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.GetRun("missing")
	if err != nil || got != nil {
		t.Errorf("GetRun = %v, %v; want nil, nil", got, err)
	}
	if err := db.FinishRun("missing", time.Now(), 0, 0, 0, 0, 0); err == nil {
		t.Error("expected error finishing unknown run")
	}
}

func TestInsertRows_DuplicateRollsBack(t *testing.T) {
	db := setupTestDB(t)
	if err := db.CreateRun(&Run{ID: "r", Kind: KindProbe, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	rows := []models.ProbeRow{{Idx: 0, Question: "a", SuiteStatus: models.StatusSkip}, {Idx: 0, Question: "b", SuiteStatus: models.StatusSkip}}
	if err := db.InsertRows("r", rows); err == nil {
		t.Fatal("expected primary key violation")
	}
	got, err := db.ListRows("r", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected rollback, got %d rows", len(got))
	}
}

func TestListRuns_OrderAndLimit(t *testing.T) {
	db := setupTestDB(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		if err := db.CreateRun(&Run{ID: id, Kind: KindShadow, StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("runs = %+v", runs)
	}
	all, err := db.ListRuns(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("got %d runs, want 3", len(all))
	}
}

func TestPurgeOlderThan(t *testing.T) {
	db := setupTestDB(t)
	old := &Run{ID: "old", Kind: KindProbe, StartedAt: time.Now().Add(-48 * time.Hour)}
	recent := &Run{ID: "recent", Kind: KindProbe, StartedAt: time.Now()}
	for _, r := range []*Run{old, recent} {
		if err := db.CreateRun(r); err != nil {
			t.Fatal(err)
		}
		if err := db.InsertRows(r.ID, []models.ProbeRow{{Question: "q", SuiteStatus: models.StatusPass}}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.PurgeOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d runs, want 1", n)
	}
	if r, _ := db.GetRun("old"); r != nil {
		t.Error("old run still present")
	}
	rows, err := db.ListRows("old", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("old rows still present: %d", len(rows))
	}
	if r, _ := db.GetRun("recent"); r == nil {
		t.Error("recent run was purged")
	}
}

package agentctx

import (
	"os"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore("demo", t.TempDir())
}

func TestReadMissingYieldsDefault(t *testing.T) {
	s := newTestStore(t)

	ctx := s.Read()
	if ctx.Frontmatter.SchemaVersion != SchemaVersion {
		t.Errorf("schema version = %q", ctx.Frontmatter.SchemaVersion)
	}
	if ctx.Frontmatter.School != "demo" {
		t.Errorf("school = %q", ctx.Frontmatter.School)
	}
	if !strings.Contains(ctx.Body, "Session Notes") {
		t.Errorf("default body missing notes section: %q", ctx.Body)
	}
	if ctx.Frontmatter.Preferences == nil || ctx.Frontmatter.CachedData == nil {
		t.Error("default maps should be non-nil")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	ctx := s.defaultContext()
	ctx.Frontmatter.Preferences["default_days_ahead"] = 7
	ctx.Body = "## Session Notes\n\nAnna prefers morning reminders."
	if err := s.Write(ctx); err != nil {
		t.Fatal(err)
	}

	got := s.Read()
	if got.Frontmatter.SchemaVersion != SchemaVersion {
		t.Errorf("schema version = %q", got.Frontmatter.SchemaVersion)
	}
	if got.Frontmatter.LastUpdated == "" {
		t.Error("last_updated not stamped")
	}
	if v, ok := got.Frontmatter.Preferences["default_days_ahead"]; !ok || v != 7 {
		t.Errorf("preference lost: %v", got.Frontmatter.Preferences)
	}
	if !strings.Contains(got.Body, "morning reminders") {
		t.Errorf("body lost: %q", got.Body)
	}
}

func TestFileFormat(t *testing.T) {
	s := newTestStore(t)
	if err := s.Write(s.defaultContext()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "---\n") {
		t.Errorf("file should start with a frontmatter fence: %q", content[:20])
	}
	if !strings.Contains(content, "schema_version:") {
		t.Error("frontmatter missing schema_version")
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("context file permissions = %o, want 0600", perm)
	}
}

func TestMalformedReadsAsDefault(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("no frontmatter here"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := s.Read()
	if ctx.Frontmatter.School != "demo" {
		t.Errorf("malformed file should read as default, got %+v", ctx.Frontmatter)
	}

	if err := os.WriteFile(s.Path(), []byte("---\n{broken yaml\n---\n\nbody"), 0o600); err != nil {
		t.Fatal(err)
	}
	ctx = s.Read()
	if len(ctx.Frontmatter.Preferences) != 0 {
		t.Errorf("broken yaml should read as default, got %+v", ctx.Frontmatter)
	}
}

func TestUpdatePreferencesMerges(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpdatePreferences(map[string]any{"default_days_ahead": 7, "language": "nl"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdatePreferences(map[string]any{"default_days_ahead": 14}); err != nil {
		t.Fatal(err)
	}

	prefs := s.Preferences()
	if prefs["default_days_ahead"] != 14 {
		t.Errorf("updated key = %v", prefs["default_days_ahead"])
	}
	if prefs["language"] != "nl" {
		t.Errorf("untouched key lost: %v", prefs)
	}
}

func TestUpdateCachedDataMerges(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpdateCachedData(map[string]any{"student_name": "Anna Jansen"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateCachedData(map[string]any{"average_grade": 7.2}); err != nil {
		t.Fatal(err)
	}

	cached := s.CachedData()
	if cached["student_name"] != "Anna Jansen" {
		t.Errorf("cached data lost: %v", cached)
	}
	if _, ok := cached["average_grade"]; !ok {
		t.Errorf("merge missing key: %v", cached)
	}
}

func TestUpdateNotesKeepsFrontmatter(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdatePreferences(map[string]any{"language": "nl"}); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateNotes("## Session Notes\n\nNew notes."); err != nil {
		t.Fatal(err)
	}

	ctx := s.Read()
	if ctx.Frontmatter.Preferences["language"] != "nl" {
		t.Error("notes update dropped preferences")
	}
	if !strings.Contains(ctx.Body, "New notes.") {
		t.Errorf("body = %q", ctx.Body)
	}
}

func TestLogActivityCounts(t *testing.T) {
	s := newTestStore(t)

	if err := s.LogActivity("huiswerk deze week"); err != nil {
		t.Fatal(err)
	}
	if err := s.LogActivity("cijfers wiskunde"); err != nil {
		t.Fatal(err)
	}

	activity := s.Read().Frontmatter.RecentActivity
	if activity.LastQuery != "cijfers wiskunde" {
		t.Errorf("last query = %q", activity.LastQuery)
	}
	if activity.QueriesToday != 2 {
		t.Errorf("queries today = %d, want 2", activity.QueriesToday)
	}
	if activity.LastQueryTime == "" {
		t.Error("last query time not stamped")
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdatePreferences(map[string]any{"language": "nl"}); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if len(s.Preferences()) != 0 {
		t.Error("clear should reset preferences")
	}

	// Clearing a missing file is fine.
	if err := s.Clear(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

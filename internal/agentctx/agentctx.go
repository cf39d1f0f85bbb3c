// Package agentctx persists agent memory per school as a context.md file:
// YAML frontmatter for structured data (preferences, activity, cached data)
// and a markdown body for free-form notes. Agents read the whole file;
// tools update it through merge operations.
package agentctx

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is stamped into the frontmatter on every write.
const SchemaVersion = "1.0"

const (
	contextFilename = "context.md"
	lockFilename    = ".context.lock"
)

var frontmatterPattern = regexp.MustCompile(`(?s)^---\s*\n(.*?\n)---\s*\n(.*)$`)

const defaultBody = `## Session Notes

Agent-maintained notes about this student.

## Recent Changes

Recent updates tracked here.
`

// Frontmatter is the structured half of a context file. Preferences and
// CachedData are free-form maps so agents can store what they need without
// a schema migration.
type Frontmatter struct {
	SchemaVersion  string         `yaml:"schema_version"`
	School         string         `yaml:"school"`
	LastUpdated    string         `yaml:"last_updated,omitempty"`
	Preferences    map[string]any `yaml:"preferences"`
	RecentActivity Activity       `yaml:"recent_activity"`
	CachedData     map[string]any `yaml:"cached_data"`
}

// Activity tracks what the agent has been asking about.
type Activity struct {
	LastQuery     string `yaml:"last_query,omitempty"`
	LastQueryTime string `yaml:"last_query_time,omitempty"`
	QueriesToday  int    `yaml:"queries_today,omitempty"`
}

// Context is a parsed context file.
type Context struct {
	Frontmatter Frontmatter
	Body        string
}

// Store reads and writes one school's context.md.
type Store struct {
	school string
	dir    string
}

// NewStore creates a store rooted at dir (contexts/{school} under the
// cache directory).
func NewStore(school, dir string) *Store {
	return &Store{school: school, dir: dir}
}

// Path returns the location of the context file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, contextFilename)
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dir, lockFilename)
}

func (s *Store) defaultContext() *Context {
	return &Context{
		Frontmatter: Frontmatter{
			SchemaVersion: SchemaVersion,
			School:        s.school,
			Preferences:   map[string]any{},
			CachedData:    map[string]any{},
		},
		Body: defaultBody,
	}
}

// Read parses the context file. A missing or malformed file reads as the
// default context rather than an error, so a broken file never locks an
// agent out of its memory.
func (s *Store) Read() *Context {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return s.defaultContext()
	}

	match := frontmatterPattern.FindSubmatch(data)
	if match == nil {
		return s.defaultContext()
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(match[1], &fm); err != nil {
		return s.defaultContext()
	}
	if fm.Preferences == nil {
		fm.Preferences = map[string]any{}
	}
	if fm.CachedData == nil {
		fm.CachedData = map[string]any{}
	}

	return &Context{
		Frontmatter: fm,
		Body:        strings.TrimSpace(string(match[2])),
	}
}

// Write persists the context under an exclusive lock with an atomic
// rename. Schema version, school, and timestamp are stamped on every write.
func (s *Store) Write(ctx *Context) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	fm := ctx.Frontmatter
	fm.SchemaVersion = SchemaVersion
	fm.School = s.school
	fm.LastUpdated = time.Now().Format(time.RFC3339)

	encoded, err := yaml.Marshal(&fm)
	if err != nil {
		return fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	content := fmt.Sprintf("---\n%s---\n\n%s\n", encoded, strings.TrimSpace(ctx.Body))

	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock context file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write context: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace context file: %w", err)
	}
	return nil
}

// UpdatePreferences merges updates into the preferences map. Existing keys
// not named in updates are kept.
func (s *Store) UpdatePreferences(updates map[string]any) error {
	ctx := s.Read()
	for k, v := range updates {
		ctx.Frontmatter.Preferences[k] = v
	}
	return s.Write(ctx)
}

// UpdateCachedData merges updates into the cached data map.
func (s *Store) UpdateCachedData(updates map[string]any) error {
	ctx := s.Read()
	for k, v := range updates {
		ctx.Frontmatter.CachedData[k] = v
	}
	return s.Write(ctx)
}

// UpdateNotes replaces the markdown body, leaving the frontmatter intact.
func (s *Store) UpdateNotes(notes string) error {
	ctx := s.Read()
	ctx.Body = notes
	return s.Write(ctx)
}

// LogActivity records the latest query and bumps the daily counter.
func (s *Store) LogActivity(query string) error {
	ctx := s.Read()
	ctx.Frontmatter.RecentActivity.LastQuery = query
	ctx.Frontmatter.RecentActivity.LastQueryTime = time.Now().Format(time.RFC3339)
	ctx.Frontmatter.RecentActivity.QueriesToday++
	return s.Write(ctx)
}

// Preferences returns the current preferences map.
func (s *Store) Preferences() map[string]any {
	return s.Read().Frontmatter.Preferences
}

// CachedData returns the current cached data map.
func (s *Store) CachedData() map[string]any {
	return s.Read().Frontmatter.CachedData
}

// Clear deletes the context file. The next read yields the default.
func (s *Store) Clear() error {
	err := os.Remove(s.Path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}

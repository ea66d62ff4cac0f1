// Package toolbox implements the ToolBox port (spec §4.5): pure
// filesystem queries against an indexed data directory, independent of
// the vector index. Hidden files and dotfiles are skipped throughout,
// grounded on the teacher's index.Watcher.shouldSkipDir convention.
package toolbox

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/manole-ai/neurofind/internal/fileutil"
)

// TimeFilter names the mtime windows ToolBox understands.
type TimeFilter string

const (
	TimeAny       TimeFilter = ""
	TimeToday     TimeFilter = "today"
	TimeThisWeek  TimeFilter = "this_week"
	TimeThisMonth TimeFilter = "this_month"
)

// SortBy names the recent-file and folder-stat sort keys.
type SortBy string

const (
	SortByDate  SortBy = "date"
	SortBySize  SortBy = "size"
	SortByName  SortBy = "name"
	SortByCount SortBy = "count"
)

// ToolBox answers pure filesystem queries rooted at dataDir.
type ToolBox struct {
	dataDir string
}

// New creates a ToolBox rooted at dataDir.
func New(dataDir string) *ToolBox {
	return &ToolBox{dataDir: dataDir}
}

type fileEntry struct {
	relPath string
	absPath string
	info    os.FileInfo
}

// walk enumerates regular, non-hidden files under dataDir.
func (t *ToolBox) walk() ([]fileEntry, error) {
	var entries []fileEntry
	err := filepath.WalkDir(t.dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort; skip unreadable entries
		}
		if path == t.dataDir {
			return nil
		}
		name := d.Name()
		if fileutil.IsHidden(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(t.dataDir, path)
		if err != nil {
			return nil
		}
		entries = append(entries, fileEntry{relPath: rel, absPath: path, info: info})
		return nil
	})
	return entries, err
}

func matchesExt(relPath, ext string) bool {
	if ext == "" {
		return true
	}
	want := strings.ToLower(strings.TrimPrefix(ext, "."))
	got := strings.ToLower(strings.TrimPrefix(filepath.Ext(relPath), "."))
	return got == want
}

func matchesTime(mtime time.Time, filter TimeFilter, now time.Time) bool {
	switch filter {
	case TimeToday:
		return now.Sub(mtime) <= 24*time.Hour
	case TimeThisWeek:
		return now.Sub(mtime) <= 7*24*time.Hour
	case TimeThisMonth:
		return now.Sub(mtime) <= 30*24*time.Hour
	default:
		return true
	}
}

// CountFiles returns "Found N .ext files." for files matching ext and
// time, evaluated against each file's mtime at call time.
func (t *ToolBox) CountFiles(ext string, timeFilter TimeFilter) (string, error) {
	entries, err := t.walk()
	if err != nil {
		return "", err
	}
	now := time.Now()
	count := 0
	for _, e := range entries {
		if matchesExt(e.relPath, ext) && matchesTime(e.info.ModTime(), timeFilter, now) {
			count++
		}
	}
	label := ""
	if ext != "" {
		label = "." + strings.TrimPrefix(ext, ".")
	}
	return fmt.Sprintf("Found %d %s files.", count, label), nil
}

func formatSize(bytes int64) string {
	const kb = 1024
	const mb = kb * 1024
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// ListRecentFiles lists up to limit files, most recently modified first
// unless sortBy overrides it.
func (t *ToolBox) ListRecentFiles(ext string, timeFilter TimeFilter, limit int, sortBy SortBy) (string, error) {
	if limit <= 0 {
		limit = 10
	}
	entries, err := t.walk()
	if err != nil {
		return "", err
	}
	now := time.Now()
	var matched []fileEntry
	for _, e := range entries {
		if matchesExt(e.relPath, ext) && matchesTime(e.info.ModTime(), timeFilter, now) {
			matched = append(matched, e)
		}
	}

	switch sortBy {
	case SortBySize:
		sort.Slice(matched, func(i, j int) bool { return matched[i].info.Size() > matched[j].info.Size() })
	case SortByName:
		sort.Slice(matched, func(i, j int) bool { return matched[i].relPath < matched[j].relPath })
	default:
		sort.Slice(matched, func(i, j int) bool { return matched[i].info.ModTime().After(matched[j].info.ModTime()) })
	}

	if len(matched) > limit {
		matched = matched[:limit]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d recent files:\n", len(matched))
	for _, e := range matched {
		var annotation string
		switch sortBy {
		case SortBySize:
			annotation = formatSize(e.info.Size())
		case SortByName:
			annotation = e.info.ModTime().Format("2006-01-02")
		default:
			annotation = e.info.ModTime().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&sb, "  - %s (%s)\n", e.relPath, annotation)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// GetFileMetadata substring-matches nameHint against relpaths and
// reports size and modified time for up to 10 matches.
func (t *ToolBox) GetFileMetadata(nameHint string) (string, error) {
	entries, err := t.walk()
	if err != nil {
		return "", err
	}

	hint := strings.ToLower(nameHint)
	var matched []fileEntry
	for _, e := range entries {
		if hint == "" || strings.Contains(strings.ToLower(e.relPath), hint) {
			matched = append(matched, e)
		}
		if len(matched) >= 10 {
			break
		}
	}

	if len(matched) == 0 {
		return fmt.Sprintf("No files found matching %q.", nameHint), nil
	}

	var sb strings.Builder
	for _, e := range matched {
		fmt.Fprintf(&sb, "%s: %s, modified %s\n", e.relPath, formatSize(e.info.Size()), e.info.ModTime().Format("2006-01-02 15:04:05"))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// Tree renders an ASCII directory tree rooted at dataDir, limited to
// maxDepth levels (0 means unlimited).
func (t *ToolBox) Tree(maxDepth int) (string, error) {
	var sb strings.Builder
	sb.WriteString(filepath.Base(t.dataDir) + "/\n")

	var walk func(dir string, prefix string, depth int) error
	walk = func(dir string, prefix string, depth int) error {
		if maxDepth > 0 && depth > maxDepth {
			return nil
		}
		dirEntries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		var visible []os.DirEntry
		for _, de := range dirEntries {
			if !fileutil.IsHidden(de.Name()) {
				visible = append(visible, de)
			}
		}
		sort.Slice(visible, func(i, j int) bool { return visible[i].Name() < visible[j].Name() })

		for i, de := range visible {
			last := i == len(visible)-1
			connector := "├── "
			childPrefix := prefix + "│   "
			if last {
				connector = "└── "
				childPrefix = prefix + "    "
			}
			name := de.Name()
			if de.IsDir() {
				name += "/"
			}
			sb.WriteString(prefix + connector + name + "\n")
			if de.IsDir() {
				walk(filepath.Join(dir, de.Name()), childPrefix, depth+1)
			}
		}
		return nil
	}

	if err := walk(t.dataDir, "", 1); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// Grep returns up to 20 relative paths of files whose content matches
// pattern (a case-insensitive substring).
func (t *ToolBox) Grep(pattern string) (string, error) {
	paths, err := t.grepMatches(pattern)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return fmt.Sprintf("No files matched %q.", pattern), nil
	}
	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString(p + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// GrepPaths is Grep's sibling returning absolute paths instead.
func (t *ToolBox) GrepPaths(pattern string) ([]string, error) {
	rels, err := t.grepMatches(pattern)
	if err != nil {
		return nil, err
	}
	abs := make([]string, len(rels))
	for i, r := range rels {
		abs[i] = filepath.Join(t.dataDir, r)
	}
	return abs, nil
}

func (t *ToolBox) grepMatches(pattern string) ([]string, error) {
	entries, err := t.walk()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(pattern)

	var matches []string
	for _, e := range entries {
		if len(matches) >= 20 {
			break
		}
		if containsPattern(e.absPath, needle) {
			matches = append(matches, e.relPath)
		}
	}
	return matches, nil
}

func containsPattern(path, lowerNeedle string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.Contains(strings.ToLower(scanner.Text()), lowerNeedle) {
			return true
		}
	}
	return false
}

type folderAgg struct {
	name  string
	size  int64
	count int
}

// FolderStats aggregates size and file count per top-level folder.
func (t *ToolBox) FolderStats(sortBy SortBy, limit int) (string, error) {
	if limit <= 0 {
		limit = 10
	}
	entries, err := t.walk()
	if err != nil {
		return "", err
	}

	agg := map[string]*folderAgg{}
	var totalSize int64
	for _, e := range entries {
		totalSize += e.info.Size()
		folder := strings.SplitN(e.relPath, string(filepath.Separator), 2)[0]
		if folder == e.relPath {
			folder = "." // top-level file
		}
		a, ok := agg[folder]
		if !ok {
			a = &folderAgg{name: folder}
			agg[folder] = a
		}
		a.size += e.info.Size()
		a.count++
	}

	list := make([]*folderAgg, 0, len(agg))
	for _, a := range agg {
		list = append(list, a)
	}
	if sortBy == SortByCount {
		sort.Slice(list, func(i, j int) bool { return list[i].count > list[j].count })
	} else {
		sort.Slice(list, func(i, j int) bool { return list[i].size > list[j].size })
	}
	if len(list) > limit {
		list = list[:limit]
	}

	var sb strings.Builder
	for _, a := range list {
		fmt.Fprintf(&sb, "%s: %s, %d files\n", a.name, formatSize(a.size), a.count)
	}
	fmt.Fprintf(&sb, "Total: %s, %d files", formatSize(totalSize), len(entries))
	return sb.String(), nil
}

type extAgg struct {
	ext   string
	size  int64
	count int
}

// DiskUsage reports total and average file size, plus the top-10
// extensions by total size.
func (t *ToolBox) DiskUsage() (string, error) {
	entries, err := t.walk()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No files found.", nil
	}

	var total int64
	agg := map[string]*extAgg{}
	for _, e := range entries {
		total += e.info.Size()
		ext := strings.ToLower(filepath.Ext(e.relPath))
		if ext == "" {
			ext = "(none)"
		}
		a, ok := agg[ext]
		if !ok {
			a = &extAgg{ext: ext}
			agg[ext] = a
		}
		a.size += e.info.Size()
		a.count++
	}

	list := make([]*extAgg, 0, len(agg))
	for _, a := range agg {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].size > list[j].size })
	if len(list) > 10 {
		list = list[:10]
	}

	avg := total / int64(len(entries))

	var sb strings.Builder
	fmt.Fprintf(&sb, "Total: %s across %d files (avg %s).\n", formatSize(total), len(entries), formatSize(avg))
	sb.WriteString("Top extensions by size:\n")
	for _, a := range list {
		fmt.Fprintf(&sb, "  %s: %s (%d files)\n", a.ext, formatSize(a.size), a.count)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// canonicalExtensions maps common keyword spellings to canonical
// extensions, used by pkg/toolrouter's extension detection (spec §4.6).
var canonicalExtensions = map[string]string{
	"pdf": "pdf", "pdfs": "pdf",
	"markdown": "md", "md": "md",
	"text": "txt", "txt": "txt",
	"word": "docx", "docx": "docx", "doc": "doc",
	"excel": "xlsx", "xlsx": "xlsx", "spreadsheet": "xlsx",
	"image": "jpg", "images": "jpg", "photo": "jpg", "photos": "jpg",
	"csv": "csv", "json": "json",
}

// CanonicalExtension resolves a free-text keyword to a canonical
// extension, or "" if unrecognized.
func CanonicalExtension(keyword string) string {
	return canonicalExtensions[strings.ToLower(keyword)]
}


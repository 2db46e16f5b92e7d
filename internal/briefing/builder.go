package briefing

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/datascout/internal/logger"
	"github.com/deusflow/datascout/internal/metrics"
	"github.com/deusflow/datascout/internal/news"
)

//go:embed templates/briefing.html
var templateFS embed.FS

var pageTemplate = template.Must(
	template.New("briefing.html").Funcs(template.FuncMap{
		"lower": strings.ToLower,
	}).ParseFS(templateFS, "templates/briefing.html"),
)

const (
	dateLayout    = "Monday, January 2, 2006"
	timeLayout    = "3:04 PM"
	archiveLayout = "2006-01-02"
)

type Options struct {
	DocsDir      string
	ArchiveDir   string
	ArchiveLinks int
	SourceCount  int
}

// Builder renders the briefing page and its dated archive copy.
type Builder struct {
	opts Options
	now  func() time.Time
}

type pageData struct {
	DateFormatted string
	ScanTime      string
	SourceCount   int
	TopStories    []news.Item
	CanadianData  []news.Item
	WorthALook    []news.Item
	ArchiveDates  []string
	// ArchivePrefix is prepended to archive links; empty inside the archive
	// dir itself.
	ArchivePrefix string
}

func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts, now: time.Now}
}

// Build partitions items, renders the page and writes index.html plus the
// archive copy for today's UTC date.
func (b *Builder) Build(items []news.Item) (Sections, error) {
	now := b.now()
	today := now.UTC().Format(archiveLayout)
	sections := Partition(items)

	dates, err := ArchiveDates(b.opts.ArchiveDir, today, b.opts.ArchiveLinks)
	if err != nil {
		return sections, err
	}

	local := now.Local()
	data := pageData{
		DateFormatted: local.Format(dateLayout),
		ScanTime:      local.Format(timeLayout),
		SourceCount:   b.opts.SourceCount,
		TopStories:    sections.TopStories,
		CanadianData:  sections.CanadianData,
		WorthALook:    sections.WorthALook,
		ArchiveDates:  dates,
	}

	if err := os.MkdirAll(b.opts.ArchiveDir, 0o755); err != nil {
		return sections, fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.MkdirAll(b.opts.DocsDir, 0o755); err != nil {
		return sections, fmt.Errorf("create docs dir: %w", err)
	}

	indexPath := filepath.Join(b.opts.DocsDir, "index.html")
	archivePath := filepath.Join(b.opts.ArchiveDir, today+".html")

	data.ArchivePrefix = archiveLinkPrefix(b.opts.DocsDir, b.opts.ArchiveDir)
	if err := writePage(indexPath, data); err != nil {
		return sections, err
	}
	data.ArchivePrefix = ""
	if err := writePage(archivePath, data); err != nil {
		return sections, err
	}

	metrics.Global.SectionSize("top_stories", len(sections.TopStories))
	metrics.Global.SectionSize("canadian_data", len(sections.CanadianData))
	metrics.Global.SectionSize("worth_a_look", len(sections.WorthALook))

	logger.Info("Briefing written",
		"index", indexPath,
		"archive", archivePath,
		"items", sections.Total(),
		"top_stories", len(sections.TopStories),
		"canadian_data", len(sections.CanadianData),
		"worth_a_look", len(sections.WorthALook),
	)
	return sections, nil
}

func writePage(path string, data pageData) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("render briefing: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// archiveLinkPrefix is the archive dir as seen from the docs dir, with a
// trailing slash.
func archiveLinkPrefix(docsDir, archiveDir string) string {
	rel, err := filepath.Rel(docsDir, archiveDir)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel) + "/"
}

// ArchiveDates lists the stems of *.html files in dir, newest first, without
// exclude, capped at limit. A missing dir yields no dates.
func ArchiveDates(dir, exclude string, limit int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".html" {
			continue
		}
		stem := strings.TrimSuffix(name, ".html")
		if stem == exclude {
			continue
		}
		dates = append(dates, stem)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}
	return dates, nil
}

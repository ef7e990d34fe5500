package banlist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"netban/internal/config"
)

// A BanList is a named, ordered list of domains. It is immutable once built
// for a run; ban/unban operate on the snapshot taken here.
type BanList struct {
	ID      string
	Domains []string
	Source  string // remote URL, empty for inline lists
}

// Catalog resolves list ids against the configured sources and caches
// remote fetches so unban and status keep working offline.
type Catalog struct {
	lists    map[string]config.ListSource
	cacheDir string
	client   *http.Client
}

func NewCatalog(cfg *config.Config) *Catalog {
	return &Catalog{
		lists:    cfg.Lists,
		cacheDir: filepath.Join(cfg.StateDir, "lists"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// IDs returns the known list ids, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.lists))
	for id := range c.lists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get builds the BanList for id. Remote lists are fetched and the result
// cached; on fetch failure the last cached copy is used if one exists.
func (c *Catalog) Get(ctx context.Context, id string) (*BanList, error) {
	src, ok := c.lists[id]
	if !ok {
		return nil, fmt.Errorf("unknown list %q (known: %s)", id, strings.Join(c.IDs(), ", "))
	}

	if src.URL == "" {
		return &BanList{ID: id, Domains: append([]string(nil), src.Domains...)}, nil
	}

	domains, err := c.fetch(ctx, src.URL)
	if err != nil {
		if cached, cerr := c.readCache(id); cerr == nil {
			return &BanList{ID: id, Domains: cached, Source: src.URL}, nil
		}
		return nil, fmt.Errorf("fetching list %q: %w", id, err)
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("list %q: source %s contained no domains", id, src.URL)
	}

	_ = c.writeCache(id, domains)
	return &BanList{ID: id, Domains: domains, Source: src.URL}, nil
}

func (c *Catalog) fetch(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return ParseDomains(resp.Body), nil
}

// ParseDomains reads a newline-delimited domain list. Blank lines and
// #-comments (whole-line or inline) are skipped; duplicates are dropped
// keeping first-seen order.
func ParseDomains(r io.Reader) []string {
	var out []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		d := strings.ToLower(strings.TrimSpace(line))
		d = strings.TrimSuffix(d, ".")
		if d == "" || strings.ContainsAny(d, " \t/") {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func (c *Catalog) cachePath(id string) string {
	return filepath.Join(c.cacheDir, id+".txt")
}

func (c *Catalog) writeCache(id string, domains []string) error {
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return err
	}
	body := strings.Join(domains, "\n") + "\n"
	return os.WriteFile(c.cachePath(id), []byte(body), 0o644)
}

func (c *Catalog) readCache(id string) ([]string, error) {
	f, err := os.Open(c.cachePath(id))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	domains := ParseDomains(f)
	if len(domains) == 0 {
		return nil, fmt.Errorf("empty cache for %q", id)
	}
	return domains, nil
}

// Package enrich annotates blocked addresses with GeoIP country data when a
// GeoLite2 database is available locally. Without one every lookup returns
// empty and status output stays plain.
package enrich

import (
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

const dbFile = "GeoLite2-Country.mmdb"

// Annotator resolves IP -> country name from a local GeoLite2 database.
// Lookups are cached for the lifetime of the process.
type Annotator struct {
	mu    sync.RWMutex
	cache map[string]string
	db    *geoip2.Reader
}

// New looks for GeoLite2-Country.mmdb in dirs, first hit wins. A missing
// database is not an error; the annotator just stays disabled.
func New(dirs ...string) *Annotator {
	a := &Annotator{cache: make(map[string]string)}
	for _, d := range dirs {
		p := filepath.Join(d, dbFile)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if db, err := geoip2.Open(p); err == nil {
			a.db = db
			break
		}
	}
	return a
}

func (a *Annotator) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// Enabled reports whether a GeoIP database is open.
func (a *Annotator) Enabled() bool {
	return a != nil && a.db != nil
}

// Country returns the English country name for ipStr, or "" when the
// annotator is disabled or the address is unknown.
func (a *Annotator) Country(ipStr string) string {
	if !a.Enabled() {
		return ""
	}

	a.mu.RLock()
	if c, ok := a.cache[ipStr]; ok {
		a.mu.RUnlock()
		return c
	}
	a.mu.RUnlock()

	country := ""
	if ip := net.ParseIP(ipStr); ip != nil {
		if rec, err := a.db.Country(ip); err == nil && rec != nil {
			if name, ok := rec.Country.Names["en"]; ok && name != "" {
				country = name
			} else {
				country = rec.Country.IsoCode
			}
		}
	}

	a.mu.Lock()
	a.cache[ipStr] = country
	a.mu.Unlock()
	return country
}

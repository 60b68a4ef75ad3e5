// Package geoip resolves client addresses to ISO country codes for request
// logs. A Resolver without a database answers every lookup with "".
package geoip

import (
	"log/slog"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

type Resolver struct {
	db *maxminddb.Reader
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"registered_country"`
}

// New opens dbPath. A missing or unreadable database disables lookups
// instead of failing startup.
func New(dbPath string) *Resolver {
	if dbPath == "" {
		return &Resolver{}
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		slog.Warn("geoip: failed to open database, geolocation disabled", "path", dbPath, "error", err)
		return &Resolver{}
	}
	slog.Info("geoip: loaded database", "path", dbPath, "type", db.Metadata.DatabaseType)
	return &Resolver{db: db}
}

func (r *Resolver) Enabled() bool {
	return r != nil && r.db != nil
}

// Country returns the ISO code for ip, preferring the location country over
// the registered one.
func (r *Resolver) Country(ip string) string {
	if !r.Enabled() || ip == "" {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	var record countryRecord
	if err := r.db.Lookup(parsed, &record); err != nil {
		slog.Debug("geoip: lookup failed", "ip", ip, "error", err)
		return ""
	}
	if record.Country.ISOCode != "" {
		return record.Country.ISOCode
	}
	return record.RegisteredCountry.ISOCode
}

func (r *Resolver) Close() error {
	if r.Enabled() {
		return r.db.Close()
	}
	return nil
}

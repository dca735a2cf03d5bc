package focusflow

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoIPReader resolves coarse member locations from a MaxMind GeoLite2-City database.
type GeoIPReader struct {
	db *geoip2.Reader
}

// NewGeoIPReader opens a MaxMind GeoLite2-City database.
func NewGeoIPReader(dbPath string) (*GeoIPReader, error) {
	if dbPath == "" {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}

	return &GeoIPReader{db: db}, nil
}

// Lookup returns location information for an IP address.
func (r *GeoIPReader) Lookup(ip string) (*LocationInfo, error) {
	if r == nil || r.db == nil {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIP, ip)
	}

	record, err := r.db.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoIPLookupFailed, err)
	}

	return &LocationInfo{
		IP:        ip,
		City:      englishName(record.City.Names),
		Country:   englishName(record.Country.Names),
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}, nil
}

// englishName prefers the English name, falling back to any available one.
func englishName(names map[string]string) string {
	if name, ok := names["en"]; ok {
		return name
	}
	for _, name := range names {
		return name
	}
	return ""
}

// LookupWithFallback returns just the IP if the lookup fails.
func (r *GeoIPReader) LookupWithFallback(ip string) LocationInfo {
	loc, err := r.Lookup(ip)
	if err != nil {
		return LocationInfo{IP: ip}
	}
	return *loc
}

// Close closes the GeoIP database.
func (r *GeoIPReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

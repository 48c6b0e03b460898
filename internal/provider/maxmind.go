package provider

import (
	"context"
	"fmt"
	"net"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/oschwald/geoip2-golang"
)

// MaxMindGeo resolves locations from a local GeoLite2/GeoIP2 City database.
type MaxMindGeo struct {
	reader *geoip2.Reader
}

// OpenMaxMind opens the mmdb file at path.
func OpenMaxMind(path string) (*MaxMindGeo, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &MaxMindGeo{reader: reader}, nil
}

// Locate returns English names for country, first subdivision and city.
func (m *MaxMindGeo) Locate(_ context.Context, ip string) (domain.GeoLocation, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return domain.GeoLocation{}, fmt.Errorf("invalid ip %q", ip)
	}

	record, err := m.reader.City(parsed)
	if err != nil {
		return domain.GeoLocation{}, fmt.Errorf("geoip city lookup: %w", err)
	}

	loc := domain.GeoLocation{
		Country: record.Country.Names["en"],
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	return loc, nil
}

// Close releases the database.
func (m *MaxMindGeo) Close() error {
	return m.reader.Close()
}

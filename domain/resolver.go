package domain

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
)

// AddressUnavailable is the sentinel display address used when reverse
// geocoding fails. Addresses are cosmetic; resolution failure must never
// block the operation that wanted one.
const AddressUnavailable = "address unavailable"

// maxAddressComponents bounds the resolved address to its most significant
// parts for display brevity.
const maxAddressComponents = 3

// Resolver turns coordinates into display addresses via an injected
// reverse-geocoding collaborator.
type Resolver struct {
	geocoder ReverseGeocoder
}

func NewResolver(g ReverseGeocoder) *Resolver {
	return &Resolver{geocoder: g}
}

// ResolveAddress resolves coords to a short display address. It degrades to
// AddressUnavailable on any collaborator failure or empty response. Callers
// persist the result alongside the record and only re-resolve when the
// coordinates change.
func (r *Resolver) ResolveAddress(ctx context.Context, c Coordinates) string {
	if r == nil || r.geocoder == nil {
		return AddressUnavailable
	}
	raw, err := r.geocoder.ReverseGeocode(ctx, c.Lat, c.Lng)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"lat": c.Lat, "lng": c.Lng}).Debug("reverse geocode failed")
		return AddressUnavailable
	}
	addr := truncateAddress(raw)
	if addr == "" {
		return AddressUnavailable
	}
	return addr
}

// truncateAddress keeps the first (most specific) components of a
// comma-separated geocoder response.
func truncateAddress(raw string) string {
	parts := strings.Split(raw, ",")
	kept := make([]string, 0, maxAddressComponents)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, p)
		if len(kept) == maxAddressComponents {
			break
		}
	}
	return strings.Join(kept, ", ")
}

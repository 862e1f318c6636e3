package domain

import (
	"context"
	"errors"
	"testing"
)

type geocoderFunc func(ctx context.Context, lat, lng float64) (string, error)

func (f geocoderFunc) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	return f(ctx, lat, lng)
}

func staticGeocoder(addr string, err error) ReverseGeocoder {
	return geocoderFunc(func(context.Context, float64, float64) (string, error) {
		return addr, err
	})
}

func TestResolveAddress(t *testing.T) {
	testCases := map[string]struct {
		raw  string
		err  error
		want string
	}{
		"truncates_to_most_specific": {
			raw:  "Alexanderplatz 1, Mitte, Berlin, 10178, Deutschland",
			want: "Alexanderplatz 1, Mitte, Berlin",
		},
		"short_address_kept": {
			raw:  "Hauptstrasse 5, Potsdam",
			want: "Hauptstrasse 5, Potsdam",
		},
		"blank_components_skipped": {
			raw:  " , Mitte, , Berlin, 10178",
			want: "Mitte, Berlin, 10178",
		},
		"geocoder_failure": {
			err:  errors.New("upstream down"),
			want: AddressUnavailable,
		},
		"empty_response": {
			raw:  "",
			want: AddressUnavailable,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			r := NewResolver(staticGeocoder(tc.raw, tc.err))
			got := r.ResolveAddress(context.Background(), Coordinates{Lat: 52.52, Lng: 13.405})
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestResolveAddressNilResolver(t *testing.T) {
	var r *Resolver
	if got := r.ResolveAddress(context.Background(), Coordinates{}); got != AddressUnavailable {
		t.Fatalf("expected sentinel, got %q", got)
	}
}

package domain

import (
	"context"
	"errors"
	"time"
)

// LocateReason classifies why a device position could not be obtained.
type LocateReason string

const (
	LocatePermissionDenied    LocateReason = "permission_denied"
	LocatePositionUnavailable LocateReason = "position_unavailable"
	LocateTimeout             LocateReason = "timeout"
)

// LocateError is the terminal, retry-free failure of a device position
// fetch.
type LocateError struct {
	Reason LocateReason
}

func (e *LocateError) Error() string {
	return "device position unavailable: " + string(e.Reason)
}

// DefaultLocateTimeout bounds how long a device position fetch may block.
const DefaultLocateTimeout = 10 * time.Second

// Locations reconciles a user's ephemeral device-reported location with the
// persisted profile location. Instances are request-scoped: the device
// locator is whatever collaborator the current request carries, never a
// process-wide singleton.
type Locations struct {
	profiles ProfileLocationStore
	device   DeviceLocator
	resolver *Resolver
	timeout  time.Duration
	staleKm  float64
	now      func() time.Time
}

func NewLocations(profiles ProfileLocationStore, device DeviceLocator, resolver *Resolver) *Locations {
	return &Locations{
		profiles: profiles,
		device:   device,
		resolver: resolver,
		timeout:  DefaultLocateTimeout,
		staleKm:  DefaultStaleThresholdKm,
		now:      time.Now,
	}
}

// WithTimeout overrides the device fetch timeout.
func (s *Locations) WithTimeout(d time.Duration) *Locations {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Current fetches a fresh device reading. It returns a *LocateError with a
// typed reason on permission denial, unavailability, or timeout; there is no
// retry.
func (s *Locations) Current(ctx context.Context) (*Location, error) {
	if s.device == nil {
		return nil, &LocateError{Reason: LocatePositionUnavailable}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	coords, err := s.device.CurrentPosition(ctx, true)
	if err != nil {
		var le *LocateError
		if errors.As(err, &le) {
			return nil, le
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &LocateError{Reason: LocateTimeout}
		}
		return nil, &LocateError{Reason: LocatePositionUnavailable}
	}
	if err := coords.Validate(); err != nil {
		return nil, &LocateError{Reason: LocatePositionUnavailable}
	}
	return &Location{Coords: coords, CapturedAt: s.now().UTC()}, nil
}

// Saved reads the persisted profile location. Nil means none saved.
func (s *Locations) Saved(ctx context.Context, userID string) (*Location, error) {
	return s.profiles.GetLocation(ctx, userID)
}

// Save upserts the profile location, stamping captured_at. A missing display
// address is resolved best-effort; valid coordinates are the only hard
// requirement. Saving the same location twice changes nothing but the
// timestamp.
func (s *Locations) Save(ctx context.Context, userID string, loc Location) (Location, error) {
	if err := loc.Coords.Validate(); err != nil {
		return Location{}, err
	}
	if loc.Address == "" {
		loc.Address = s.resolver.ResolveAddress(ctx, loc.Coords)
	}
	loc.CapturedAt = s.now().UTC()
	if err := s.profiles.UpsertLocation(ctx, userID, loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// ReconcileResult pairs the two known locations with the refresh decision.
type ReconcileResult struct {
	Current     *Location     `json:"current,omitempty"`
	Saved       *Location     `json:"saved,omitempty"`
	CurrentErr  LocateReason  `json:"currentError,omitempty"`
	NeedsUpdate bool          `json:"needsUpdate"`
}

// Reconcile combines the current device reading with the saved location and
// decides whether the UI should prompt for a refresh. Device failures are
// recorded as a typed reason, not surfaced as errors: an absent reading just
// means nothing is stale.
func (s *Locations) Reconcile(ctx context.Context, userID string) (ReconcileResult, error) {
	var res ReconcileResult
	cur, err := s.Current(ctx)
	if err != nil {
		var le *LocateError
		if !errors.As(err, &le) {
			return ReconcileResult{}, err
		}
		res.CurrentErr = le.Reason
	}
	res.Current = cur

	saved, err := s.profiles.GetLocation(ctx, userID)
	if err != nil {
		return ReconcileResult{}, err
	}
	res.Saved = saved
	res.NeedsUpdate = IsStale(cur, saved, s.staleKm)
	return res, nil
}

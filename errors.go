package focusflow

import "errors"

var (
	// ErrStoreUnavailable is returned by write operations when the ephemeral
	// store kept failing after all retry attempts. Callers should treat the
	// ephemeral layer as unavailable without failing the larger request.
	ErrStoreUnavailable = errors.New("focusflow: ephemeral store unavailable")

	// ErrInvalidDate is returned when a date is not formatted YYYY-MM-DD.
	ErrInvalidDate = errors.New("focusflow: invalid date, expected YYYY-MM-DD")

	// ErrInvalidTimeframe is returned for a leaderboard timeframe other than daily or weekly.
	ErrInvalidTimeframe = errors.New("focusflow: invalid leaderboard timeframe")

	// ErrGeoIPDatabaseNotConfigured is returned when GeoIP lookup is attempted
	// without configuring the GeoIP database path.
	ErrGeoIPDatabaseNotConfigured = errors.New("focusflow: GeoIP database path not configured")

	// ErrGeoIPLookupFailed is returned when IP geolocation lookup fails.
	ErrGeoIPLookupFailed = errors.New("focusflow: GeoIP lookup failed")

	// ErrInvalidIP is returned when an invalid IP address is provided.
	ErrInvalidIP = errors.New("focusflow: invalid IP address")
)

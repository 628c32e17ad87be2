package dispatch

import "fmt"

// Config defines the planning intervals and allocation radius consumed by
// the coordination core. All values are externally supplied and read-only
// here.
type Config struct {
	// RepositionIntervalTicks is the spacing between reposition waves.
	RepositionIntervalTicks int64 `json:"reposition_interval_ticks"`
	// ReservationBufferTicks is the spacing between batched-reservation
	// waves.
	ReservationBufferTicks int64 `json:"reservation_buffer_ticks"`
	// SearchRadiusM bounds the nearest-idle-vehicle search in meters.
	SearchRadiusM float64 `json:"search_radius_m"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.RepositionIntervalTicks == 0 {
		c.RepositionIntervalTicks = 300
	}
	if c.ReservationBufferTicks == 0 {
		c.ReservationBufferTicks = 60
	}
	if c.SearchRadiusM == 0 {
		c.SearchRadiusM = 5000
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.RepositionIntervalTicks <= 0 {
		return fmt.Errorf("reposition_interval_ticks must be positive")
	}
	if c.ReservationBufferTicks <= 0 {
		return fmt.Errorf("reservation_buffer_ticks must be positive")
	}
	if c.SearchRadiusM <= 0 {
		return fmt.Errorf("search_radius_m must be positive")
	}
	return nil
}

package model

// Restaurant is a candidate supplied by the provider, ranked by the
// group's aggregate preferences. IDs are provider-scoped strings and
// may be empty for candidates without one.
type Restaurant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Cuisines []string  `json:"cuisines"`
	AvgPrice float64   `json:"avg_price"`
	Rating   float64   `json:"rating"`
	Location *GeoPoint `json:"location,omitempty"`
}

package ports

import "time"

// Clock supplies the current time. The tracking store derives entry dates,
// exit dates, and trade ids from it, so tests inject a fixed clock and
// production wiring leaves it nil to get time.Now in UTC.
type Clock func() time.Time

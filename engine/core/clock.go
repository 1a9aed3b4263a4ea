package core

import "time"

// Clock measures elapsed seconds since Start and the delta between two
// consecutive Update calls.
type Clock struct {
	startTime  time.Time
	lastUpdate time.Time
	elapsed    float64
	delta      float64
	running    bool
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if !c.running {
		return
	}
	now := time.Now()
	c.elapsed = now.Sub(c.startTime).Seconds()
	c.delta = now.Sub(c.lastUpdate).Seconds()
	c.lastUpdate = now
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.lastUpdate = c.startTime
	c.elapsed = 0
	c.delta = 0
	c.running = true
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

// Elapsed returns the seconds between Start and the last Update.
func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

// Delta returns the seconds between the last two Update calls.
func (c *Clock) Delta() float64 {
	return c.delta
}

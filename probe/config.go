package probe

import "time"

// Config holds configuration for a Probe.
type Config struct {
	// Table is the DynamoDB table holding probe records.
	// Default: "readprobe_records"
	Table string

	// Children is the number of child entities, and therefore the number
	// of concurrent workers contending on the parent.
	// Default: 30
	Children int

	// ConsistentRead selects strongly consistent latest-version queries.
	// A zero-value Config uses eventually consistent reads; DefaultConfig
	// enables consistent reads.
	ConsistentRead bool

	// RetryLimit bounds conflict retries per worker. 0 means unbounded,
	// which is the intended production behavior; tests set a ceiling so a
	// misbehaving store cannot hang them.
	RetryLimit int

	// JoinTimeout bounds how long the harness waits for all workers to
	// finish after release.
	// Default: 1 minute
	JoinTimeout time.Duration
}

// DefaultConfig returns the configuration the original anomaly report
// was produced with: 30 children, consistent reads, unbounded retries.
func DefaultConfig() Config {
	return Config{
		Table:          "readprobe_records",
		Children:       30,
		ConsistentRead: true,
		JoinTimeout:    time.Minute,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "readprobe_records"
	}
	if c.Children < 1 {
		c.Children = 30
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = time.Minute
	}
}

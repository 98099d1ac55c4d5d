package config

import "fmt"

var validProfiles = map[string]bool{
	"baseline": true,
	"main":     true,
	"high":     true,
}

var validRateControlModes = map[string]bool{
	"disabled": true,
	"cbr":      true,
	"vbr":      true,
	"cq":       true,
	"constant_quality": true,
	"":         true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates config problems that must block startup
// (Fatals) from ones worth logging but tolerating (Warnings), the same
// split a misconfigured QP bound or resolution deserves: a bad log_level
// degrades observability, but a zero-sized frame can't be encoded at all.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal validation error was found.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals and warnings concatenated, fatals first.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values, clamping
// dangerous zero-values that would otherwise panic deeper in the driver and
// reporting them as warnings, and rejecting values a Driver can never be
// constructed from as fatals.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if c.Width == 0 || c.Height == 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("width/height must both be nonzero, got %dx%d", c.Width, c.Height))
	}

	if !validProfiles[c.Profile] {
		r.Fatals = append(r.Fatals, fmt.Errorf("profile %q is not valid (use baseline, main, or high)", c.Profile))
	}

	if c.IPPeriod < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("ip_period %d is below minimum 1, clamping", c.IPPeriod))
		c.IPPeriod = 1
	}
	if c.IntraPeriod == 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("intra_period is 0, defaulting to ip_period %d", c.IPPeriod))
		c.IntraPeriod = c.IPPeriod
	}
	if c.IntraPeriod%c.IPPeriod != 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("intra_period %d must be a multiple of ip_period %d", c.IntraPeriod, c.IPPeriod))
	}
	if c.IntraIDRPeriod == 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("intra_idr_period is 0, defaulting to intra_period %d", c.IntraPeriod))
		c.IntraIDRPeriod = c.IntraPeriod
	}
	if c.IntraIDRPeriod%c.IntraPeriod != 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("intra_idr_period %d must be a multiple of intra_period %d", c.IntraIDRPeriod, c.IntraPeriod))
	}

	if !validRateControlModes[c.RateControl] {
		r.Warnings = append(r.Warnings, fmt.Errorf("rate_control %q is not recognized, falling back to cbr", c.RateControl))
		c.RateControl = "cbr"
	}

	if c.MinQP > c.MaxQP {
		r.Warnings = append(r.Warnings, fmt.Errorf("min_qp %d exceeds max_qp %d, swapping", c.MinQP, c.MaxQP))
		c.MinQP, c.MaxQP = c.MaxQP, c.MinQP
	}
	if c.MaxQP > 51 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_qp %d exceeds 51, clamping", c.MaxQP))
		c.MaxQP = 51
	}

	if c.FrameRate == 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("frame_rate is 0, defaulting to 30"))
		c.FrameRate = 30
	}

	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return r
}

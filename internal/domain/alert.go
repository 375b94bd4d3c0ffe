package domain

// Severity is the closed set of alert severities.
type Severity string

const (
	SeverityExtreme  Severity = "Extreme"
	SeveritySevere   Severity = "Severe"
	SeverityModerate Severity = "Moderate"
	SeverityMinor    Severity = "Minor"
	SeverityUnknown  Severity = "Unknown"
)

// ParseSeverity maps a wire value onto a Severity. Anything unrecognized is Unknown.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityExtreme, SeveritySevere, SeverityModerate, SeverityMinor:
		return Severity(s)
	default:
		return SeverityUnknown
	}
}

// UnmarshalText lets JSON decoding fold unknown severities into SeverityUnknown.
func (s *Severity) UnmarshalText(text []byte) error {
	*s = ParseSeverity(string(text))
	return nil
}

// Alert is an active weather alert. Two alerts are the same entity iff their
// IDs match.
type Alert struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Headline string   `json:"headline,omitempty"`
	Location string   `json:"location,omitempty"`
}

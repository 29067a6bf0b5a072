package transcript

// SpeakerCount bounds the number of speakers the diarization engine may
// report. Zero means unset. The values are only checked here and handed to
// the engine as they are.
type SpeakerCount struct {
	Min uint32
	Max uint32
}

// Validate rejects Min > Max. With requirePositive set, both bounds must also
// be non-zero.
func (c SpeakerCount) Validate(requirePositive bool) error {
	if requirePositive && (c.Min == 0 || c.Max == 0) {
		return invalidf("speaker bounds must be positive, got min=%d max=%d", c.Min, c.Max)
	}
	if c.Min != 0 && c.Max != 0 && c.Min > c.Max {
		return invalidf("min speakers %d exceeds max speakers %d", c.Min, c.Max)
	}
	return nil
}

// IsSet reports whether any bound was given.
func (c SpeakerCount) IsSet() bool { return c.Min != 0 || c.Max != 0 }

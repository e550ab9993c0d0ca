package session

// Item is one unit of speakable text plus voice parameters. Immutable once
// enqueued.
type Item struct {
	Text          string
	ModelUUID     string
	SpeakingRate  float64 // [0.5, 2.0]
	SpeakerVolume float64 // [0.0, 2.0], personal multiplier
	Speaker       string  // display label for queue previews
}

// EffectiveVolume combines the tenant and speaker multipliers, clamped to
// the [0, 2] range the playback contract allows. The transport may clamp
// further to its own supported range.
func EffectiveVolume(tenantVolume, speakerVolume float64) float64 {
	v := tenantVolume * speakerVolume
	if v < 0 {
		return 0
	}
	if v > 2 {
		return 2
	}
	return v
}

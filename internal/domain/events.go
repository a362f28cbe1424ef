package domain

// Event names used on surface elements and components.
const (
	// EventCanPlay is the media readiness-to-play signal. Distinct from
	// widget initialization readiness: a widget can be initialized long
	// before its media is playable.
	EventCanPlay = "canplay"
)

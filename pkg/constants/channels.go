package constants

// Internal channels never reach a transport; replies for them are returned
// to the caller instead of being published.
var internalChannels = map[string]bool{
	"cli":     true,
	"console": true,
	"system":  true,
}

func IsInternalChannel(channel string) bool {
	return internalChannels[channel]
}

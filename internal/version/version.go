package version

// Value is overridden at build time with -ldflags "-X vidgen/internal/version.Value=v1.2.3".
var Value = "dev"

func UserAgent() string {
	return "vidgen/" + Value
}

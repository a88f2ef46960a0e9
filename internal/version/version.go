package version

import "runtime"

// Set at build time via -ldflags "-X github.com/youjaegwon/coinwatch/internal/version.Version=..."
var (
	Version = "0.0.0"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

type Info struct {
	App     string `json:"app"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	BuiltAt string `json:"built_at"`
	Go      string `json:"go"`
}

func Get() Info {
	return Info{
		App:     "coinwatch",
		Version: Version,
		Commit:  Commit,
		BuiltAt: BuiltAt,
		Go:      runtime.Version(),
	}
}

// Package version holds build metadata injected via ldflags:
//
//	go build -ldflags "-X github.com/NicolasHaas/goplace/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/goplace/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/goplace/pkg/version.date=2026-01-01"
package version

import "log/slog"

var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// String returns the tag, the commit, or "dev" for local builds.
func String() string {
	switch {
	case tag != "":
		return tag
	case commit != "unknown":
		return commit
	default:
		return "dev"
	}
}

// Full returns "goplace <version> (<commit>, built <date>)".
func Full() string {
	if String() == "dev" {
		return "goplace dev"
	}
	return "goplace " + String() + " (" + commit + ", built " + date + ")"
}

// LogAttr returns the build metadata as a log attribute group.
func LogAttr() slog.Attr {
	return slog.Group("build",
		slog.String("version", String()),
		slog.String("commit", commit),
		slog.String("date", date),
	)
}

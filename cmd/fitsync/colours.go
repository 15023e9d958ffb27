package main

const (
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m"

	ResetColor = "\033[0m"
)

var phaseColors = map[string]string{
	"authenticated":   Green,
	"unauthenticated": Yellow,
	"hydrating":       Cyan,
	"uninitialized":   Gray,
}

func colour(c, s string) string {
	return c + s + ResetColor
}

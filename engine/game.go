// Package engine implements the rules and spatial model of the susbot
// social-deduction game.
//
// Everything in this package is pure: the map is static, the pathfinder and
// vision queries read only their arguments, and the rule validators have no
// side effects. Mutable game state lives in the session layer, which calls
// into this package on every action and every tick.
package engine

const (
	MinPlayers = 5
	MaxPlayers = 10
)

// Palette is the fixed set of player colours. Each session hands them out in
// this order, so a roster never holds more players than colours.
var Palette = [...]Color{
	ColorRed, ColorBlue, ColorGreen, ColorPink, ColorOrange, ColorYellow,
	ColorBlack, ColorWhite, ColorPurple, ColorBrown, ColorCyan, ColorLime,
}

// ImpostorCount returns how many impostors a roster of n players receives.
// The result is a step function of n and never decreases as n grows.
func ImpostorCount(n int) int {
	switch {
	case n <= 6:
		return 1
	case n <= 9:
		return 2
	default:
		return 3
	}
}

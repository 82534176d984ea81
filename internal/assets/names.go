// ABOUTME: Resolves place_type tags into music and sound-effect asset names
// ABOUTME: Maps the closed set of server-sent location tags to mp3 file names
package assets

import "fmt"

// placeTypeBase maps a server place_type tag to the asset family base
// name. Any tag outside this closed set resolves to "main".
var placeTypeBase = map[string]string{
	"projection_mapping": "main",
	"buddhas_bowl":       "hotoke",
	"jeweled_branch":     "eda",
	"fire_rat_robe":      "nezumi",
	"dragons_jewel":      "ryu",
	"swallows_cowry":     "kai",
}

// Interactive place types trigger proximity sound effects (spec.md §4.4).
var interactiveSE = map[string]string{
	"fire_rat_robe": "se-nezumi.mp3",
	"buddhas_bowl":  "se-hotoke.mp3",
}

const (
	DefaultBase = "main"

	SEPoint      = "se-point.mp3"
	SEActivation = "se-activation.mp3"
)

// Base returns the asset family base name for a place_type, defaulting
// to "main" for anything outside the closed set.
func Base(placeType string) string {
	if b, ok := placeTypeBase[placeType]; ok {
		return b
	}
	return DefaultBase
}

// TrackName resolves the asset name for a location at a given point
// total. points_effective is max(points, 1) per spec.md §6.4.
func TrackName(placeType string, points int32) string {
	return fmt.Sprintf("tsukimi-%s_%d.mp3", Base(placeType), effectivePoints(points))
}

// DefaultTrackName resolves the fallback/default track (spec.md §4.4).
func DefaultTrackName(points int32) string {
	return fmt.Sprintf("tsukimi-%s_%d.mp3", DefaultBase, effectivePoints(points))
}

func effectivePoints(points int32) int32 {
	if points < 1 {
		return 1
	}
	return points
}

// InteractionSE returns the proximity sound effect for a place_type and
// whether that place_type is interactive at all.
func InteractionSE(placeType string) (string, bool) {
	se, ok := interactiveSE[placeType]
	return se, ok
}

// IsInteractive reports whether placeType participates in proximity SE
// crossing detection.
func IsInteractive(placeType string) bool {
	_, ok := interactiveSE[placeType]
	return ok
}

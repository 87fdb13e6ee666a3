package deterrent

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/alert"
)

// Predator sound categories keyed by the family of the detected species.
// The corpus of deployable sounds is small and fixed by the hardware.
var predatorMappings = map[string][]string{
	"corvids":    {"hawk_screech", "eagle_cry", "falcon_call"},
	"passerines": {"cat_meow", "snake_hiss", "hawk_screech"},
	"raptors":    {"owl_hoot", "hawk_screech"},
	"waterfowl":  {"fox_bark", "coyote_howl", "hawk_screech"},
	"default":    {"hawk_screech", "eagle_cry", "owl_hoot"},
}

var familyKeywords = map[string][]string{
	"corvids":    {"crow", "raven", "magpie", "jay"},
	"passerines": {"sparrow", "finch", "warbler", "robin"},
	"raptors":    {"hawk", "eagle", "falcon", "kestrel"},
	"waterfowl":  {"duck", "goose", "swan", "gull"},
}

// aggressiveSounds are preferred when the bird shows territorial or
// aggressive behavior; softer mimics are unlikely to displace it.
var aggressiveSounds = map[string]struct{}{
	"hawk_screech": {},
	"eagle_cry":    {},
	"falcon_call":  {},
}

// SoundLibrary recommends deterrent sounds for a detected species. The
// species vocabulary at a given site is small and hot, so lookups are
// cached.
type SoundLibrary struct {
	cache *cache.Cache
}

// NewSoundLibrary creates a library with the given lookup cache TTL.
// No janitor goroutine runs; expired entries are replaced on access,
// which is enough for a vocabulary this small.
func NewSoundLibrary(ttl time.Duration) *SoundLibrary {
	return &SoundLibrary{
		cache: cache.New(ttl, 0),
	}
}

// Recommend returns deterrent sound identifiers ordered by expected
// effectiveness for the species and its observed behavior. The result
// is never empty.
func (l *SoundLibrary) Recommend(species alert.Species, behavior alert.Behavior) []string {
	aggressive := behaviorIsAggressive(behavior)
	key := strings.ToLower(species.CommonName) + "|" + strings.ToLower(species.ScientificName)
	if aggressive {
		key += "|aggressive"
	}

	if cached, found := l.cache.Get(key); found {
		return copySounds(cached.([]string))
	}

	sounds := predatorMappings[classifyFamily(species)]

	if aggressive {
		filtered := make([]string, 0, len(sounds))
		for _, s := range sounds {
			if _, ok := aggressiveSounds[s]; ok {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) > 0 {
			sounds = filtered
		}
	}

	out := copySounds(sounds)
	l.cache.Set(key, out, cache.DefaultExpiration)
	return copySounds(out)
}

func copySounds(sounds []string) []string {
	out := make([]string, len(sounds))
	copy(out, sounds)
	return out
}

// Primary returns the first recommendation, the sound the dispatcher
// deploys when no operator picked a variant.
func (l *SoundLibrary) Primary(species alert.Species, behavior alert.Behavior) string {
	return l.Recommend(species, behavior)[0]
}

func classifyFamily(species alert.Species) string {
	name := strings.ToLower(species.CommonName + " " + species.ScientificName)
	for _, family := range []string{"corvids", "passerines", "raptors", "waterfowl"} {
		for _, keyword := range familyKeywords[family] {
			if strings.Contains(name, keyword) {
				return family
			}
		}
	}
	return "default"
}

func behaviorIsAggressive(behavior alert.Behavior) bool {
	combined := strings.ToLower(behavior.EmotionalState + " " + behavior.PrimaryIntent)
	return strings.Contains(combined, "territorial") || strings.Contains(combined, "aggressive")
}

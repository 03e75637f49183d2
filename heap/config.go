package heap

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Tuning constants. The defaults are conservative; a Config can override
// the trigger sizes and the adjustment behavior within the documented
// constraints.

// There are three levels of collections. Level 0 collects only the youngest
// generation, level 1 the two youngest, and level 2 all generations. After
// every level0Freq level zero collections a level 1 collection is done, and
// after every level1Freq of those a level 2 collection.
const (
	level0Freq = 20
	level1Freq = 5
)

var collectCountsMax = [numOldGenerations]int{level0Freq, level1Freq}

const (
	// defaultNSize and defaultVSize are the initial collection triggers:
	// nodes for the cons heap, bytes for the vector heap.
	defaultNSize = 250000
	defaultVSize = 6291456

	// defaultProtectStackSize bounds the protect stack.
	defaultProtectStackSize = 10000
)

// Config carries the heap trigger sizes and tuning knobs. The zero value of
// any field means "use the default".
type Config struct {
	// NSize is the initial node trigger in nodes; VSize the initial vector
	// trigger in bytes. Both also act as permanent minima.
	NSize int `yaml:"nsize"`
	VSize int `yaml:"vsize"`

	// MaxNSize and MaxVSize cap heap growth. Zero means unlimited.
	MaxNSize int `yaml:"max-nsize"`
	MaxVSize int `yaml:"max-vsize"`

	ProtectStackSize int `yaml:"protect-stack-size"`

	// MinFreeFrac: a collection that frees less than this fraction of the
	// trigger escalates to the next level, and heap sizing keeps at least
	// this fraction of the original triggers available.
	MinFreeFrac float64 `yaml:"min-free-frac"`

	// MaxKeepFrac and PageReleaseFreq drive page release: free nodes up to
	// MaxKeepFrac times the in-use count are retained per class, and a
	// release attempt happens every PageReleaseFreq level>=1 collections.
	MaxKeepFrac     float64 `yaml:"max-keep-frac"`
	PageReleaseFreq int     `yaml:"page-release-freq"`

	// Occupancy bands and adjustment increments for the sizing controller.
	NGrowFrac      float64 `yaml:"ngrow-frac"`
	NShrinkFrac    float64 `yaml:"nshrink-frac"`
	VGrowFrac      float64 `yaml:"vgrow-frac"`
	VShrinkFrac    float64 `yaml:"vshrink-frac"`
	NGrowIncrFrac  float64 `yaml:"ngrow-incr-frac"`
	NShrinkIncrFrac float64 `yaml:"nshrink-incr-frac"`
	NGrowIncrMin   int     `yaml:"ngrow-incr-min"`
	NShrinkIncrMin int     `yaml:"nshrink-incr-min"`
	VGrowIncrFrac  float64 `yaml:"vgrow-incr-frac"`
	VShrinkIncrFrac float64 `yaml:"vshrink-incr-frac"`
	VGrowIncrMin   int     `yaml:"vgrow-incr-min"`
	VShrinkIncrMin int     `yaml:"vshrink-incr-min"`

	// Torture forces a collection before every allocation; Reporting prints
	// a summary after every collection.
	Torture   bool `yaml:"torture"`
	Reporting bool `yaml:"reporting"`
}

// withDefaults fills zero fields with the default tuning.
func (c Config) withDefaults() Config {
	if c.NSize == 0 {
		c.NSize = defaultNSize
	}
	if c.VSize == 0 {
		c.VSize = defaultVSize
	}
	if c.ProtectStackSize == 0 {
		c.ProtectStackSize = defaultProtectStackSize
	}
	if c.MinFreeFrac == 0 {
		c.MinFreeFrac = 0.2
	}
	if c.MaxKeepFrac == 0 {
		c.MaxKeepFrac = 0.5
	}
	if c.PageReleaseFreq == 0 {
		c.PageReleaseFreq = 1
	}
	if c.NGrowFrac == 0 {
		c.NGrowFrac = 0.70
	}
	if c.NShrinkFrac == 0 {
		c.NShrinkFrac = 0.30
	}
	if c.VGrowFrac == 0 {
		c.VGrowFrac = 0.70
	}
	if c.VShrinkFrac == 0 {
		c.VShrinkFrac = 0.30
	}
	if c.NGrowIncrFrac == 0 {
		c.NGrowIncrFrac = 0.05
	}
	if c.NShrinkIncrFrac == 0 {
		c.NShrinkIncrFrac = 0.2
	}
	if c.NGrowIncrMin == 0 {
		c.NGrowIncrMin = 40000
	}
	if c.VGrowIncrFrac == 0 {
		c.VGrowIncrFrac = 0.05
	}
	if c.VGrowIncrMin == 0 {
		c.VGrowIncrMin = 80000
	}
	if c.VShrinkIncrFrac == 0 {
		c.VShrinkIncrFrac = 0.2
	}
	return c
}

// LoadConfig reads a YAML tuning file. Missing fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "reading heap config")
	}
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, errors.Wrapf(err, "parsing heap config %s", path)
	}
	return c, nil
}

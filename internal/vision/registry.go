package vision

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EngineConfig carries the settings an engine factory may use.
type EngineConfig struct {
	URL       string        // sidecar endpoint
	Timeout   time.Duration // per call
	Languages []string      // OCR languages
	Region    string        // cloud region
}

// RecognizerFactory builds a Recognizer from cfg.
type RecognizerFactory func(cfg EngineConfig) (Recognizer, error)

var (
	registryMu  sync.RWMutex
	recognizers = map[string]RecognizerFactory{}
)

func init() {
	RegisterRecognizer("http", func(cfg EngineConfig) (Recognizer, error) {
		r := NewHTTPRecognizer(cfg.URL)
		if cfg.Timeout > 0 {
			r.Client.Timeout = cfg.Timeout
		}
		return r, nil
	})
}

// RegisterRecognizer makes a recognizer engine available by name. Engines
// register themselves from init; registering a name twice panics.
func RegisterRecognizer(name string, f RecognizerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name = strings.ToLower(name)
	if f == nil {
		panic("vision: RegisterRecognizer factory is nil")
	}
	if _, dup := recognizers[name]; dup {
		panic("vision: RegisterRecognizer called twice for " + name)
	}
	recognizers[name] = f
}

// NewRecognizer builds the engine registered under name.
func NewRecognizer(name string, cfg EngineConfig) (Recognizer, error) {
	registryMu.RLock()
	f, ok := recognizers[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown OCR engine %q (have %s)",
			ErrEngineUnavailable, name, strings.Join(Recognizers(), ", "))
	}
	return f(cfg)
}

// Recognizers lists registered engine names, sorted.
func Recognizers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(recognizers))
	for k := range recognizers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

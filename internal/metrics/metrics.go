// Package metrics provides the metric surfaces a scan can evaluate: a
// registry of named built-in analytic functions and an adapter for remote
// evaluation services. The scan core treats all of them as opaque
// callables.
package metrics

import (
	"math"
	"sort"
	"sync"

	"github.com/banshee-data/gridscan/internal/scan"
)

// Definition describes a registered metric.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Fn evaluates the metric at one grid point.
	Fn scan.Metric `json:"-"`
}

// Registry holds named metric definitions.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]*Definition)}
}

// Register adds a metric definition. An existing definition with the same
// name is replaced.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[def.Name] = def
}

// Get retrieves a metric definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.metrics[name]
	return def, ok
}

// List returns summaries of all registered metrics, sorted by name for
// deterministic output.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Definition, 0, len(r.metrics))
	for _, def := range r.metrics {
		infos = append(infos, Definition{Name: def.Name, Description: def.Description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// DefaultRegistry returns a registry pre-loaded with the built-in analytic
// surfaces. They accept any number of axes; axis values are ordered by
// name before evaluation so results do not depend on map iteration order.
func DefaultRegistry() *Registry {
	reg := NewRegistry()

	reg.Register(&Definition{
		Name:        "sphere",
		Description: "Sum of squared axis values; honours a float64 \"offset\" extra argument.",
		Fn:          Sphere,
	})
	reg.Register(&Definition{
		Name:        "rosenbrock",
		Description: "Rosenbrock valley over axis values ordered by name; minimum 0 at all-ones.",
		Fn:          Rosenbrock,
	})
	reg.Register(&Definition{
		Name:        "rastrigin",
		Description: "Rastrigin surface; highly multimodal with minimum 0 at the origin.",
		Fn:          Rastrigin,
	})
	reg.Register(&Definition{
		Name:        "ackley",
		Description: "Ackley surface; nearly flat outer region with minimum 0 at the origin.",
		Fn:          Ackley,
	})

	return reg
}

// vector returns the point's values ordered by axis name.
func vector(pt scan.Point) []float64 {
	names := make([]string, 0, len(pt))
	for name := range pt {
		names = append(names, name)
	}
	sort.Strings(names)
	xs := make([]float64, len(names))
	for i, name := range names {
		xs[i] = pt[name]
	}
	return xs
}

// Sphere is the sum of squared axis values. If extra carries a float64
// "offset" it is added to the result, which gives fixed arguments an
// observable effect in tests and demos.
func Sphere(pt scan.Point, extra scan.Args) (float64, error) {
	var sum float64
	for _, v := range pt {
		sum += v * v
	}
	if off, ok := extra["offset"].(float64); ok {
		sum += off
	}
	return sum, nil
}

// Rosenbrock evaluates the classic banana valley over the point's values
// ordered by axis name. For a single axis it degenerates to (1-x)^2.
func Rosenbrock(pt scan.Point, _ scan.Args) (float64, error) {
	xs := vector(pt)
	if len(xs) == 1 {
		d := 1 - xs[0]
		return d * d, nil
	}
	var sum float64
	for i := 0; i < len(xs)-1; i++ {
		a := xs[i+1] - xs[i]*xs[i]
		b := 1 - xs[i]
		sum += 100*a*a + b*b
	}
	return sum, nil
}

// Rastrigin evaluates the Rastrigin surface: 10n + sum(x^2 - 10cos(2*pi*x)).
func Rastrigin(pt scan.Point, _ scan.Args) (float64, error) {
	sum := 10 * float64(len(pt))
	for _, v := range pt {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum, nil
}

// Ackley evaluates the Ackley surface.
func Ackley(pt scan.Point, _ scan.Args) (float64, error) {
	xs := vector(pt)
	n := float64(len(xs))
	var sumSq, sumCos float64
	for _, v := range xs {
		sumSq += v * v
		sumCos += math.Cos(2 * math.Pi * v)
	}
	return -20*math.Exp(-0.2*math.Sqrt(sumSq/n)) -
		math.Exp(sumCos/n) + 20 + math.E, nil
}

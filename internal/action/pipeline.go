package action

import "fmt"

// Pipeline executes a route's ordered action list with short-circuit
// semantics.
type Pipeline struct {
	registry *Registry
}

// NewPipeline builds an executor over the given registry.
func NewPipeline(registry *Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

// Execute runs the actions of the matched route in order. It stops at the
// first action that terminates the response and reports whether that
// happened. A returned error is a configuration problem with the route; the
// boundary surfaces it loudly instead of retrying.
func (p *Pipeline) Execute(ctx *Context) (bool, error) {
	for _, spec := range ctx.Route.Actions {
		handler, ok := p.registry.Lookup(spec.Name)
		if !ok {
			return false, fmt.Errorf("route %q names unknown action %q", ctx.Route.Key, spec.Name)
		}
		result, err := handler.Run(ctx)
		if err != nil {
			return false, fmt.Errorf("action %q on route %q: %w", spec.Name, ctx.Route.Key, err)
		}
		if result == Terminated {
			return true, nil
		}
	}
	return false, nil
}

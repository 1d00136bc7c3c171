package pipeline

import (
	"fmt"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

// SinkRoute describes one sink binding of a resolved read route.
type SinkRoute struct {
	// Sink is the concrete element's Go type name.
	Sink string
	// Type is the key the sink will be handed.
	Type domain.Key
	// Cost is the conversion cost paid per delivered item.
	Cost int
	// AfterConversion is true when the sink receives the converted value
	// rather than the source-resident one.
	AfterConversion bool
}

// Route describes one resolved read route for a requested type.
type Route struct {
	// Source is the concrete element's Go type name.
	Source string
	// Resident is the type fetched from the source before conversion.
	Resident domain.Key
	// Cost is the conversion cost from Resident to the requested type.
	Cost int
	// Sinks are the fan-out bindings, in registration order per set.
	Sinks []SinkRoute
}

// StoreRoute describes one resolved write route for a type.
type StoreRoute struct {
	Sink string
	Type domain.Key
	Cost int
}

// Routes resolves (and caches) the read handlers for the type and reports
// them in try order. It shares the handler cache with Get, so a no-route
// result here is permanent for the pipeline's lifetime too.
func (p *Pipeline) Routes(key domain.Key) ([]Route, error) {
	handlers, err := p.sourceHandlers(key)
	if err != nil {
		return nil, err
	}

	routes := make([]Route, 0, len(handlers))
	for _, h := range handlers {
		route := Route{
			Source:   fmt.Sprintf("%T", h.source),
			Resident: h.bound,
			Cost:     h.chain.Cost,
		}
		for _, sh := range h.before {
			route.Sinks = append(route.Sinks, SinkRoute{
				Sink: fmt.Sprintf("%T", sh.sink),
				Type: sh.bound,
				Cost: sh.chain.Cost,
			})
		}
		for _, sh := range h.after {
			route.Sinks = append(route.Sinks, SinkRoute{
				Sink:            fmt.Sprintf("%T", sh.sink),
				Type:            sh.bound,
				Cost:            sh.chain.Cost,
				AfterConversion: true,
			})
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// StoreRoutes resolves (and caches) the write handlers for the type. An
// empty result means writes of this type are no-ops.
func (p *Pipeline) StoreRoutes(key domain.Key) []StoreRoute {
	handlers := p.sinkHandlers(key)
	routes := make([]StoreRoute, 0, len(handlers))
	for _, h := range handlers {
		routes = append(routes, StoreRoute{
			Sink: fmt.Sprintf("%T", h.sink),
			Type: h.bound,
			Cost: h.chain.Cost,
		})
	}
	return routes
}

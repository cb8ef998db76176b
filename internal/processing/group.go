package processing

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var ErrUnknownProcessor = errors.New("unknown processor")

// Group is the set of processors the service runs.
type Group struct {
	processors []*Processor
	byName     map[string]*Processor
}

func NewGroup(processors ...*Processor) *Group {
	g := &Group{byName: make(map[string]*Processor)}
	for _, p := range processors {
		g.Add(p)
	}
	return g
}

func (g *Group) Add(p *Processor) {
	g.processors = append(g.processors, p)
	g.byName[p.Name()] = p
}

func (g *Group) Get(name string) (*Processor, error) {
	p, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	return p, nil
}

func (g *Group) WakeAll() {
	for _, p := range g.processors {
		p.Wake()
	}
}

func (g *Group) Statuses() []Status {
	out := make([]Status, 0, len(g.processors))
	for _, p := range g.processors {
		out = append(out, p.Status())
	}
	return out
}

// ResetAll resets every resettable processor and returns the names it reset.
func (g *Group) ResetAll(ctx context.Context) ([]string, error) {
	var reset []string
	for _, p := range g.processors {
		if p.reset == nil {
			continue
		}
		if err := p.Reset(ctx); err != nil {
			return reset, err
		}
		reset = append(reset, p.Name())
	}
	return reset, nil
}

// Drain runs each processor until nothing is left, repeating while any of them
// made progress, since handlers may append events that others must see.
func (g *Group) Drain(ctx context.Context) error {
	for {
		progressed := false
		for _, p := range g.processors {
			before := p.Position()
			if err := p.ProcessAvailable(ctx); err != nil {
				return err
			}
			if p.Position() != before {
				progressed = true
			}
		}
		if !progressed {
			return nil
		}
	}
}

func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, p := range g.processors {
		p := p
		eg.Go(func() error { return p.Run(ctx) })
	}
	return eg.Wait()
}

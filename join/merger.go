package join

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/hupe1980/sortjoin/record"
)

// ErrOrderViolation is returned when a stream that must be sorted by key is not.
var ErrOrderViolation = errors.New("order violation")

// Stream names used in errors.
const (
	StreamEntities = "entities"
	StreamFacts    = "facts"
)

// Options configures a Merger.
type Options struct {
	Logger *slog.Logger

	// CheckOrder fails the merge with ErrOrderViolation when either stream
	// goes backwards in key order.
	CheckOrder bool
}

// DefaultOptions returns default merger options.
var DefaultOptions = Options{
	CheckOrder: true,
}

// Stats describes one merge.
type Stats struct {
	Entities    int64 // groups emitted
	Facts       int64 // facts read
	Attached    int64 // facts attached to a group
	Orphans     int64 // facts read whose key matched no entity
	EmptyGroups int64 // groups without facts
}

// Merger joins sorted entity and fact streams.
type Merger struct {
	layout record.Layout
	opts   Options
}

// NewMerger creates a Merger decoding records with layout.
func NewMerger(layout record.Layout, optFns ...func(o *Options)) *Merger {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Merger{layout: layout, opts: opts}
}

// pendingFact is a fact read ahead of the entity it belongs to.
type pendingFact struct {
	fact record.Fact
	ok   bool
}

// pass is the state of one Merge call.
type pass struct {
	m       *Merger
	facts   Cursor
	pending pendingFact
	done    bool // fact stream exhausted

	factLine int64
	lastFact string
	stats    Stats
}

// Merge reads both streams once and calls emit with one group per entity,
// in entity order. Remaining facts are not read once the entity stream
// ends. An error from emit stops the merge and is returned as is.
func (m *Merger) Merge(ctx context.Context, entities, facts Cursor, emit func(record.Group) error) (Stats, error) {
	p := &pass{m: m, facts: facts}

	var (
		line    int64
		lastKey string
	)
	for entities.Next() {
		if err := ctx.Err(); err != nil {
			return p.stats, err
		}
		line++

		e, err := m.layout.DecodeEntity(entities.Record())
		if err != nil {
			return p.stats, located(err, StreamEntities, line)
		}
		if m.opts.CheckOrder && line > 1 && e.Key < lastKey {
			return p.stats, fmt.Errorf("%w: %s line %d: key %q after %q", ErrOrderViolation, StreamEntities, line, e.Key, lastKey)
		}
		lastKey = e.Key

		g := record.Group{Key: e.Key, Descriptor: e.Descriptor}
		if err := p.collect(&g); err != nil {
			return p.stats, err
		}

		p.stats.Entities++
		if len(g.Values) == 0 {
			p.stats.EmptyGroups++
		}
		if err := emit(g); err != nil {
			return p.stats, err
		}
	}
	if err := entities.Err(); err != nil {
		return p.stats, fmt.Errorf("%s: %w", StreamEntities, err)
	}

	if p.pending.ok {
		p.stats.Orphans++
	}

	m.opts.Logger.Debug("merge complete",
		"entities", p.stats.Entities,
		"facts", p.stats.Facts,
		"attached", p.stats.Attached,
		"orphans", p.stats.Orphans,
	)
	return p.stats, nil
}

// Groups returns the groups of Merge as an iterator. A failure is yielded
// once as the last pair. Breaking out of the loop stops reading both streams.
func (m *Merger) Groups(ctx context.Context, entities, facts Cursor) iter.Seq2[record.Group, error] {
	return func(yield func(record.Group, error) bool) {
		_, err := m.Merge(ctx, entities, facts, func(g record.Group) error {
			if !yield(g, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(record.Group{}, err)
		}
	}
}

var errStopped = errors.New("iteration stopped")

// collect attaches the values of all facts sharing g's key.
func (p *pass) collect(g *record.Group) error {
	if p.pending.ok {
		switch c := strings.Compare(p.pending.fact.Key, g.Key); {
		case c > 0:
			// Belongs to a later entity.
			return nil
		case c == 0:
			p.attach(g, p.pending.fact)
		default:
			p.stats.Orphans++
		}
		p.pending = pendingFact{}
	}

	for {
		f, ok, err := p.next()
		if err != nil || !ok {
			return err
		}

		switch c := strings.Compare(f.Key, g.Key); {
		case c == 0:
			p.attach(g, f)
		case c < 0:
			p.stats.Orphans++
		default:
			p.pending = pendingFact{fact: f, ok: true}
			return nil
		}
	}
}

func (p *pass) attach(g *record.Group, f record.Fact) {
	g.Values = append(g.Values, f.Value)
	p.stats.Attached++
}

// next reads and decodes the next fact.
func (p *pass) next() (record.Fact, bool, error) {
	if p.done {
		return record.Fact{}, false, nil
	}
	if !p.facts.Next() {
		p.done = true
		if err := p.facts.Err(); err != nil {
			return record.Fact{}, false, fmt.Errorf("%s: %w", StreamFacts, err)
		}
		return record.Fact{}, false, nil
	}
	p.factLine++

	f, err := p.m.layout.DecodeFact(p.facts.Record())
	if err != nil {
		return record.Fact{}, false, located(err, StreamFacts, p.factLine)
	}
	if p.m.opts.CheckOrder && p.factLine > 1 && f.Key < p.lastFact {
		return record.Fact{}, false, fmt.Errorf("%w: %s line %d: key %q after %q", ErrOrderViolation, StreamFacts, p.factLine, f.Key, p.lastFact)
	}
	p.lastFact = f.Key
	p.stats.Facts++
	return f, true, nil
}

// located adds the stream name and position to a decode error.
func located(err error, stream string, line int64) error {
	var me *record.MalformedError
	if errors.As(err, &me) {
		me.Stream = stream
		me.Line = line
	}
	return err
}

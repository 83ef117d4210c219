// Package chain implements the sector allocator and the abstract
// doubly-linked SectorChain of spec.md §4.1 and §4.5.
package chain

import (
	"github.com/conservify/phylum/metrics"
	"github.com/conservify/phylum/phylumerr"
	"github.com/conservify/phylum/sectormap"
)

// Reclaimer is the SPEC_FULL.md-decided hook letting a SectorAllocator
// hand out sectors a FreeSectorsChain has reclaimed before advancing its
// monotonic counter. The zero-value Allocator (no Reclaimer attached)
// matches spec.md §4.1 exactly: "it does not look at the free-sector
// chain; reclamation is a higher-layer concern."
type Reclaimer interface {
	// Dequeue returns a previously-freed sector, ok=false if none is
	// available.
	Dequeue() (sectormap.SectorID, bool, error)
}

// Allocator hands out previously-unused sector numbers (spec.md §4.1): a
// monotonic counter initialised to SectorMap.Size()+1.
type Allocator struct {
	next      sectormap.SectorID
	reclaimer Reclaimer
	metrics   *metrics.Collectors
}

// NewAllocator initializes the counter to sm.Size()+1.
func NewAllocator(sm sectormap.SectorMap) (*Allocator, error) {
	size, err := sm.Size()
	if err != nil {
		return nil, phylumerr.New(phylumerr.IoError, "Allocator.New", err)
	}
	return &Allocator{next: size + 1}, nil
}

// WithReclaimer attaches the optional free-sector reclamation hook.
func (a *Allocator) WithReclaimer(r Reclaimer) *Allocator {
	a.reclaimer = r
	return a
}

// WithMetrics attaches Prometheus collectors; pass nil to detach.
func (a *Allocator) WithMetrics(m *metrics.Collectors) *Allocator {
	a.metrics = m
	return a
}

// Allocate returns a fresh sector id, consulting the Reclaimer first if
// one is attached, falling back to the monotonic counter. It fails with
// Exhausted if the counter would reach the INVALID_SECTOR sentinel.
func (a *Allocator) Allocate() (sectormap.SectorID, error) {
	if a.metrics != nil {
		a.metrics.AllocatorCalls.Inc()
	}
	if a.reclaimer != nil {
		if id, ok, err := a.reclaimer.Dequeue(); err != nil {
			return 0, phylumerr.New(phylumerr.IoError, "Allocator.Allocate", err)
		} else if ok {
			return id, nil
		}
	}
	if a.next == sectormap.Invalid {
		if a.metrics != nil {
			a.metrics.AllocatorExhausted.Inc()
		}
		return 0, phylumerr.New(phylumerr.Exhausted, "Allocator.Allocate", nil)
	}
	id := a.next
	a.next++
	return id, nil
}

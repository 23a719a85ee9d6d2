package sim

import (
	"math"
	"sync"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/plenum/fluid"
	"github.com/pthm-cable/plenum/systems"
)

// Below this many ducts the dispatch overhead outweighs the parallelism and
// compute runs inline.
const parallelThreshold = 64

type vesselSnapshot struct {
	entity ecs.Entity
	state  systems.EndpointState
}

type ductSnapshot struct {
	alpha  int
	beta   int
	params systems.DuctParams
}

type workChunk struct {
	start int
	end   int
}

// parallelState holds the per-tick scratch arenas and the worker pool. The
// arenas are resliced to zero length each tick and only realloc when the
// network grows.
type parallelState struct {
	workers int

	// Worker pool channels
	workChan chan workChunk // sends duct ranges to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running

	vessels    []vesselSnapshot
	vesselSlot map[ecs.Entity]int
	massArena  []float64

	ducts   []ductSnapshot
	deltas  []float64
	clamped []int32

	outflow []float64
	scale   []float64
	net     []float64
}

func newParallelState(workers int) *parallelState {
	return &parallelState{
		workers:    workers,
		vesselSlot: make(map[ecs.Entity]int),
	}
}

// startWorkers launches the persistent compute workers. A single-worker pool
// stays inline; there is nothing to parallelize.
func (p *parallelState) startWorkers(s *Simulation) {
	if p.workers <= 1 || p.running {
		return
	}

	p.workChan = make(chan workChunk, p.workers)
	p.doneChan = make(chan struct{}, p.workers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(s)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing duct ranges until stopped.
func (p *parallelState) worker(s *Simulation) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			s.computeChunk(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

func resizeF64(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

func resizeZeroF64(buf []float64, n int) []float64 {
	buf = resizeF64(buf, n)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// buildSnapshots freezes every vessel's state and every duct's parameters
// into flat arenas. All flow this tick is computed against this frozen view,
// so duct order cannot influence the result.
func (s *Simulation) buildSnapshots() {
	p := s.par
	n := s.table.Len()

	p.vessels = p.vessels[:0]
	p.massArena = p.massArena[:0]
	clear(p.vesselSlot)
	vq := s.vesselFilter.Query()
	for vq.Next() {
		_, contents, st, _ := vq.Get()
		e := vq.Entity()
		p.vesselSlot[e] = len(p.vessels)
		p.vessels = append(p.vessels, vesselSnapshot{
			entity: e,
			state:  systems.EndpointState{Pressure: st.Pressure, Volume: st.Volume},
		})
		p.massArena = append(p.massArena, contents.Mix...)
	}
	// Appends may have moved the arena; slice the mixtures out afterwards.
	// Every mixture spans exactly the type table, so slot i owns stride i*n.
	for i := range p.vessels {
		p.vessels[i].state.Mix = fluid.Mixture(p.massArena[i*n : (i+1)*n])
	}

	p.ducts = p.ducts[:0]
	dq := s.ductFilter.Query()
	for dq.Next() {
		duct, drive := dq.Get()
		a, aok := p.vesselSlot[duct.Alpha]
		b, bok := p.vesselSlot[duct.Beta]
		if !aok || !bok {
			// Vessel removal severs incident ducts, so endpoints are
			// always live here.
			continue
		}
		p.ducts = append(p.ducts, ductSnapshot{
			alpha: a,
			beta:  b,
			params: systems.DuctParams{
				ShapeResistance: systems.ShapeResistance(duct.Kind, duct.Length, duct.Radius),
				Force:           drive.Force,
				FieldMultiplier: drive.FieldMultiplier,
			},
		})
	}

	nd := len(p.ducts)
	p.deltas = resizeF64(p.deltas, nd*n)
	if cap(p.clamped) < nd {
		p.clamped = make([]int32, nd)
	}
	p.clamped = p.clamped[:nd]
}

// computeChunk evaluates the transfer deltas for ducts [start, end) against
// the frozen snapshots. Writes land in per-duct rows, so chunks never touch
// the same memory.
func (s *Simulation) computeChunk(start, end int) {
	p := s.par
	n := s.table.Len()
	dt := s.cfg.Solver.DT
	diffusion := s.cfg.Solver.DiffusionCoefficient
	for i := start; i < end; i++ {
		d := &p.ducts[i]
		row := p.deltas[i*n : (i+1)*n]
		c := systems.DuctTransfer(s.table, p.vessels[d.alpha].state, p.vessels[d.beta].state, d.params, diffusion, dt, row)
		p.clamped[i] = int32(c)
	}
}

// computeTransfers runs the compute phase, splitting the duct list across
// the worker pool when it is large enough to pay for the dispatch.
func (s *Simulation) computeTransfers() {
	p := s.par
	nd := len(p.ducts)
	if nd == 0 {
		return
	}
	if !p.running || nd < parallelThreshold {
		s.computeChunk(0, nd)
		return
	}
	chunk := (nd + p.workers - 1) / p.workers
	sent := 0
	for start := 0; start < nd; start += chunk {
		end := start + chunk
		if end > nd {
			end = nd
		}
		p.workChan <- workChunk{start: start, end: end}
		sent++
	}
	for i := 0; i < sent; i++ {
		<-p.doneChan
	}
}

// commitTransfers applies the computed deltas to the live mixtures. Per-duct
// clamping cannot see sibling ducts, so a vessel's aggregate outflow of one
// type may still exceed the mass it held at snapshot time; every outgoing
// delta of that vessel/type is then scaled by the same factor, on both ends
// of each duct, which keeps the sum of moves equal to the available mass and
// conserves the total exactly.
func (s *Simulation) commitTransfers() {
	p := s.par
	n := s.table.Len()
	nv := len(p.vessels)
	need := nv * n
	p.outflow = resizeZeroF64(p.outflow, need)
	p.net = resizeZeroF64(p.net, need)
	p.scale = resizeF64(p.scale, need)

	for di := range p.ducts {
		d := &p.ducts[di]
		row := p.deltas[di*n : (di+1)*n]
		for t, delta := range row {
			if delta > 0 {
				p.outflow[d.alpha*n+t] += delta
			} else if delta < 0 {
				p.outflow[d.beta*n+t] -= delta
			}
		}
	}

	scaled := 0
	for vi := range p.vessels {
		mix := p.vessels[vi].state.Mix
		base := vi * n
		for t := 0; t < n; t++ {
			out := p.outflow[base+t]
			if out > 0 && out > mix[t] {
				p.scale[base+t] = mix[t] / out
				scaled++
			} else {
				p.scale[base+t] = 1
			}
		}
	}

	moved := 0.0
	for di := range p.ducts {
		d := &p.ducts[di]
		row := p.deltas[di*n : (di+1)*n]
		for t, delta := range row {
			if delta == 0 {
				continue
			}
			eff := delta
			if delta > 0 {
				eff *= p.scale[d.alpha*n+t]
			} else {
				eff *= p.scale[d.beta*n+t]
			}
			p.net[d.alpha*n+t] -= eff
			p.net[d.beta*n+t] += eff
			moved += math.Abs(eff)
		}
	}

	for vi := range p.vessels {
		contents := s.contentsMap.Get(p.vessels[vi].entity)
		base := vi * n
		for t := 0; t < n; t++ {
			change := p.net[base+t]
			if change == 0 {
				continue
			}
			m := contents.Mix[t] + change
			if m < 0 {
				// Scaling bounds outflow by the snapshot mass; only float
				// round-off lands below zero.
				m = 0
			}
			contents.Mix[t] = m
		}
	}

	clamps := 0
	for _, c := range p.clamped {
		clamps += int(c)
	}
	s.collector.RecordClampedTransfers(clamps)
	s.collector.RecordScaledCommits(scaled)
	s.collector.RecordMassMoved(moved)
}

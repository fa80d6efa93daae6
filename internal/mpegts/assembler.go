package mpegts

import "sort"

// chunk is a complete PSI or PES payload gathered from one PID.
type chunk struct {
	pid          uint16
	data         []byte
	randomAccess bool
}

// pidBuffer gathers the payloads of one PID between unit starts.
type pidBuffer struct {
	data         []byte
	active       bool // a unit start has been seen
	lastCC       uint8
	randomAccess bool
}

// assembler splits the packet stream into per-PID payload units. It drops
// units that lose packets to continuity errors rather than emit them torn.
type assembler struct {
	pids    map[uint16]*pidBuffer
	pmtPIDs map[uint16]bool
	// sectionPIDs carry private sections announced by a PMT.
	sectionPIDs map[uint16]bool
	dropped     int
}

func newAssembler() *assembler {
	return &assembler{
		pids:        make(map[uint16]*pidBuffer),
		pmtPIDs:     make(map[uint16]bool),
		sectionPIDs: make(map[uint16]bool),
	}
}

func (a *assembler) isPSI(pid uint16) bool {
	return pid == pidPAT || a.pmtPIDs[pid] || a.sectionPIDs[pid]
}

// push feeds one packet and returns the unit it completes, if any.
func (a *assembler) push(p tsPacket) (chunk, bool) {
	b := a.pids[p.pid]
	if b == nil {
		b = &pidBuffer{}
		a.pids[p.pid] = b
	}

	if p.transportErr {
		a.reset(b)
		return chunk{}, false
	}
	if !p.hasPayload {
		return chunk{}, false
	}

	if b.active && !p.discontinuity {
		want := (b.lastCC + 1) & 0x0F
		switch p.cc {
		case want:
		case b.lastCC:
			return chunk{}, false // retransmitted packet
		default:
			a.reset(b)
		}
	}

	var out chunk
	var done bool
	if p.unitStart {
		if b.active && len(b.data) > 0 {
			out, done = a.take(p.pid, b), true
		}
		b.active = true
		b.randomAccess = p.randomAccess
	}
	if !b.active {
		// Joined mid-unit; wait for the next start.
		return out, done
	}

	b.data = append(b.data, p.payload...)
	b.lastCC = p.cc

	if !done && a.isPSI(p.pid) && sectionsComplete(b.data, a.sectionPIDs[p.pid]) {
		out, done = a.take(p.pid, b), true
		b.active = false
	}
	return out, done
}

func (a *assembler) take(pid uint16, b *pidBuffer) chunk {
	c := chunk{pid: pid, data: b.data, randomAccess: b.randomAccess}
	b.data = nil
	return c
}

func (a *assembler) reset(b *pidBuffer) {
	if len(b.data) > 0 {
		a.dropped++
	}
	b.data = nil
	b.active = false
}

// drain returns every buffered unit, PAT first so PMT PIDs are known
// before their sections are parsed.
func (a *assembler) drain() []chunk {
	pids := make([]int, 0, len(a.pids))
	for pid, b := range a.pids {
		if b.active && len(b.data) > 0 {
			pids = append(pids, int(pid))
		}
	}
	sort.Ints(pids)

	out := make([]chunk, 0, len(pids))
	for _, pid := range pids {
		b := a.pids[uint16(pid)]
		out = append(out, a.take(uint16(pid), b))
		b.active = false
	}
	return out
}

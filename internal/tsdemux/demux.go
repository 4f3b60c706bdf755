package tsdemux

import (
	"log"
	"sync"
	"time"

	"github.com/snapetech/upipe-go/internal/modules"
	"github.com/snapetech/upipe-go/internal/ratelog"
	"github.com/snapetech/upipe-go/internal/tsdemux/ca"
	"github.com/snapetech/upipe-go/internal/tsdemux/tables"
	"github.com/snapetech/upipe-go/internal/ubuf"
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/uref"
)

// Fixed PSI PIDs assumed by DVB/ISO conformance (spec.md §4.7.1); NIT's pid
// is carried in the PAT itself and varies with conformance.
const (
	PIDPAT = 0x0000
	PIDCAT = 0x0001
	PIDSDT = 0x0011
	PIDEIT = 0x0012
	PIDTDT = 0x0014
)

// programEntry is the demux-level bookkeeping for one PAT program, pairing
// the Program sub-pipe with the PSIPid feeding its PMT and the per-program
// clock reconstruction state.
type programEntry struct {
	program *Program
	pmtPID  uint16
	pmtPid  *PSIPid
	clock   *ClockRecon
	pcrPID  uint16
	pcrTap  upipe.InputPipe
	hasCA   bool
	ecm     ca.ECMDecoder
	pmtRaw  []byte
}

// Demux is the TS demux bin of spec.md §4.7: given a stream of aligned TS
// packets it exposes a discoverable set of programs, and for each program a
// discoverable set of elementary streams, by decoding PAT/PMT/CAT/SDT/TDT
// and wiring ts_split/psi_merge/psi_split/psi_pid plumbing behind the
// scenes. The application drives ES allocation through AllocES; the demux
// itself never allocates an output pipe the application hasn't asked for
// (spec.md: "a sub-output exists only once something downstream wants it").
type Demux struct {
	*upipe.Pipe
	*upipe.BinInput
	mgr    upipe.Manager
	probes *uprobe.Probe

	tsSplit *Split
	psiPids *psiPidTable

	mu           sync.Mutex
	conformance  ConformanceTracker
	nitPID       uint16
	nitPid       *PSIPid
	programs     map[uint16]*programEntry // keyed by program_number
	emmDecoder   ca.EMMDecoder
	lastNIT      *tables.NIT
	lastSDT      *tables.SDT
	lastTDT      time.Time
	lastEIT      map[uint16]tables.EITEvent // service_id -> present event
	onProgramsCh func()
}

// NewDemux allocates a TS demux bin. emmDecoder may be ca.NullEMMDecoder{}
// if BISS-CA key recovery is not wired (spec.md §9 open question 3). rl
// rate-limits the WARN lines every psi_merge filter chain this demux owns
// logs when a section fails its CRC (spec.md §7); it may be nil in tests
// that don't care about that logging path.
func NewDemux(mgr upipe.Manager, probes *uprobe.Probe, emmDecoder ca.EMMDecoder, rl *ratelog.Limiter) *Demux {
	d := &Demux{
		mgr:        mgr,
		probes:     probes,
		tsSplit:    NewSplit(mgr, probes),
		psiPids:    newPSIPidTable(rl),
		nitPID:     PIDPAT, // until a PAT says otherwise (DVB_NO_TABLES)
		programs:   make(map[uint16]*programEntry),
		emmDecoder: emmDecoder,
		lastEIT:    make(map[uint16]tables.EITEvent),
	}
	d.Pipe = upipe.NewBase(mgr, probes, "ts_demux", d.teardown, nil)
	d.BinInput = &upipe.BinInput{}
	d.BinInput.SetFirstInner(d.tsSplit)

	d.watchPAT()
	d.watchCAT()
	d.watchSDT()
	d.watchTDT()
	d.watchEIT()
	return d
}

// OnProgramsChanged registers a callback fired whenever the set of known
// programs changes (SPLIT_ITERATE surface, spec.md §4.7 "programs list").
func (d *Demux) OnProgramsChanged(fn func()) {
	d.mu.Lock()
	d.onProgramsCh = fn
	d.mu.Unlock()
}

func (d *Demux) notifyProgramsChanged() {
	d.mu.Lock()
	fn := d.onProgramsCh
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
	d.Throw(uprobe.SplitUpdate, uprobe.Args{})
}

// Input hands a raw TS-packet uref to ts_split. Pump is threaded through
// unchanged (spec.md §4.4 pump-affine processing).
func (d *Demux) Input(u *uref.Uref, pump any) {
	d.BinInput.Input(u, pump)
}

// watchPAT wires the fixed PAT pid (0x0000) to a decoder that rebuilds the
// program list on every version change.
func (d *Demux) watchPAT() {
	pid := d.psiPids.Use(PIDPAT, d.tsSplit, d.mgr, d.probes)
	sink := modules.NewSinkFunc(d.mgr, d.probes, "patd", d.handlePATSection)
	pid.Split.AddSubOutput(PSIFilter{TableID: tables.TableIDPAT}, sink)
}

// watchCAT wires the fixed CAT pid (0x0001) to the shared EMM decoder.
func (d *Demux) watchCAT() {
	pid := d.psiPids.Use(PIDCAT, d.tsSplit, d.mgr, d.probes)
	sink := modules.NewSinkFunc(d.mgr, d.probes, "catd", d.handleCATSection)
	pid.Split.AddSubOutput(PSIFilter{TableID: tables.TableIDCAT}, sink)
}

// watchSDT wires the fixed SDT pid (0x0011) to a decoder that records
// service name/provider attributes for PMT flow-def enrichment (spec.md
// §4.7 "merge SDT attributes into PMT flow defs").
func (d *Demux) watchSDT() {
	pid := d.psiPids.Use(PIDSDT, d.tsSplit, d.mgr, d.probes)
	sink := modules.NewSinkFunc(d.mgr, d.probes, "sdtd", func(u *uref.Uref) {
		section, ok := d.blockBytes(u)
		if !ok {
			return
		}
		sdt, err := tables.ParseSDT(append([]byte{0x00}, section...))
		if err != nil {
			log.Printf("ts_demux: malformed SDT section dropped: %v", err)
			return
		}
		d.mu.Lock()
		d.lastSDT = sdt
		d.mu.Unlock()
	})
	pid.Split.AddSubOutput(PSIFilter{TableID: tables.TableIDSDT}, sink)
	pid.Split.AddSubOutput(PSIFilter{TableID: tables.TableIDSDTOther}, sink)
}

// watchTDT wires the fixed TDT pid (0x0014) to record the stream's
// wall-clock time, kept as the latest decoded value and reported by TDT
// (spec.md §6).
func (d *Demux) watchTDT() {
	pid := d.psiPids.Use(PIDTDT, d.tsSplit, d.mgr, d.probes)
	sink := modules.NewSinkFunc(d.mgr, d.probes, "tdtd", func(u *uref.Uref) {
		section, ok := d.blockBytes(u)
		if !ok {
			return
		}
		t, err := tables.ParseTDT(append([]byte{0x00}, section...))
		if err != nil {
			log.Printf("ts_demux: malformed TDT section dropped: %v", err)
			return
		}
		d.mu.Lock()
		d.lastTDT = t
		d.mu.Unlock()
	})
	pid.Split.AddSubOutput(PSIFilter{TableID: tables.TableIDTDT}, sink)
}

// watchEIT wires the fixed EIT present/following pid (0x0012). Only the
// first event of each present/following section is kept, per service, and
// reported by CurrentEvent; schedule sub-tables are not subscribed, since a
// full EPG schedule is out of scope (spec.md §1 non-goals).
func (d *Demux) watchEIT() {
	pid := d.psiPids.Use(PIDEIT, d.tsSplit, d.mgr, d.probes)
	sink := modules.NewSinkFunc(d.mgr, d.probes, "eitd", d.handleEITSection)
	pid.Split.AddSubOutput(PSIFilter{TableID: tables.TableIDEITPF}, sink)
}

func (d *Demux) handleEITSection(u *uref.Uref) {
	section, ok := d.blockBytes(u)
	if !ok {
		return
	}
	eit, err := tables.ParseEIT(append([]byte{0x00}, section...))
	if err != nil {
		log.Printf("ts_demux: malformed EIT section dropped: %v", err)
		return
	}
	if eit.TableID != tables.TableIDEITPF || len(eit.Events) == 0 {
		return
	}
	d.mu.Lock()
	d.lastEIT[eit.ServiceID] = eit.Events[0]
	d.mu.Unlock()
}

// watchNIT subscribes to the NIT pid the most recent PAT declared,
// resubscribing if it changes (spec.md §4.7.1).
func (d *Demux) watchNIT(pid uint16) {
	d.mu.Lock()
	if d.nitPid != nil {
		d.nitPid.Release()
		d.nitPid = nil
	}
	if pid == 0 || pid == PIDNull {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	p := d.psiPids.Use(pid, d.tsSplit, d.mgr, d.probes)
	sink := modules.NewSinkFunc(d.mgr, d.probes, "nitd", func(u *uref.Uref) {
		section, ok := d.blockBytes(u)
		if !ok {
			return
		}
		nit, err := tables.ParseNIT(append([]byte{0x00}, section...))
		if err != nil {
			log.Printf("ts_demux: malformed NIT section dropped: %v", err)
			return
		}
		d.mu.Lock()
		d.lastNIT = nit
		d.mu.Unlock()
	})
	p.Split.AddSubOutput(PSIFilter{TableID: tables.TableIDNIT}, sink)
	p.Split.AddSubOutput(PSIFilter{TableID: tables.TableIDNITOther}, sink)

	d.mu.Lock()
	d.nitPid = p
	d.mu.Unlock()
}

// SDT returns the most recently decoded Service Description Table, if any.
func (d *Demux) SDT() (*tables.SDT, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSDT, d.lastSDT != nil
}

// NIT returns the most recently decoded Network Information Table, if any.
func (d *Demux) NIT() (*tables.NIT, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastNIT, d.lastNIT != nil
}

// TDT returns the most recently decoded wall-clock time, if any.
func (d *Demux) TDT() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTDT, !d.lastTDT.IsZero()
}

// CurrentEvent returns the present/following EIT event for a service, if
// one has been decoded (spec.md §4.7 per-program EIT tree).
func (d *Demux) CurrentEvent(serviceID uint16) (tables.EITEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ev, ok := d.lastEIT[serviceID]
	return ev, ok
}

func (d *Demux) blockBytes(u *uref.Uref) ([]byte, bool) {
	block, ok := u.Ubuf.(*ubuf.Block)
	if !ok {
		return nil, false
	}
	buf := make([]byte, block.Size())
	if _, err := block.Extract(0, block.Size(), buf); err != nil {
		return nil, false
	}
	return buf, true
}

// handlePATSection parses a reassembled PAT section (no pointer_field, see
// PSIMerge.Input) and reconciles the demux's program set against it
// (spec.md §4.7 "PAT diff").
func (d *Demux) handlePATSection(u *uref.Uref) {
	section, ok := d.blockBytes(u)
	if !ok {
		return
	}
	pat, err := tables.ParsePAT(append([]byte{0x00}, section...))
	if err != nil {
		log.Printf("ts_demux: malformed PAT section dropped: %v", err)
		return
	}

	d.mu.Lock()
	nitPIDChanged := d.nitPID != pat.NITPID
	d.nitPID = pat.NITPID
	if _, changed := d.conformance.Observe(pat.NITPID); changed {
		log.Printf("ts_demux: conformance detected as %s (nit_pid=%d)", d.conformance.Current(), pat.NITPID)
	}

	seen := make(map[uint16]bool, len(pat.Entries))
	changed := false
	for _, e := range pat.Entries {
		seen[e.ProgramNumber] = true
		if existing, ok := d.programs[e.ProgramNumber]; ok {
			if existing.pmtPID == e.PMTPID {
				continue
			}
			// PMT PID moved: tear down and re-bind.
			d.removeProgramLocked(e.ProgramNumber)
		}
		d.addProgramLocked(e.ProgramNumber, e.PMTPID)
		changed = true
	}
	for num := range d.programs {
		if !seen[num] {
			d.removeProgramLocked(num)
			changed = true
		}
	}
	d.mu.Unlock()

	if nitPIDChanged {
		d.watchNIT(pat.NITPID)
	}
	if changed {
		d.notifyProgramsChanged()
	}
}

// addProgramLocked must be called with mu held.
func (d *Demux) addProgramLocked(programNumber, pmtPID uint16) {
	prog := NewProgram(d.mgr, d.probes, programNumber, pmtPID)
	entry := &programEntry{program: prog, pmtPID: pmtPID, pcrPID: PIDNull, ecm: ca.NullECMDecoder{}}
	entry.clock = &ClockRecon{}

	pid := d.psiPids.Use(pmtPID, d.tsSplit, d.mgr, d.probes)
	entry.pmtPid = pid
	sink := modules.NewSinkFunc(d.mgr, d.probes, "pmtd", func(u *uref.Uref) { d.handlePMTSection(programNumber, u) })
	pid.Split.AddSubOutput(PSIFilter{TableID: tables.TableIDPMT}, sink)

	d.programs[programNumber] = entry
}

// removeProgramLocked must be called with mu held.
func (d *Demux) removeProgramLocked(programNumber uint16) {
	entry, ok := d.programs[programNumber]
	if !ok {
		return
	}
	entry.pmtPid.Release()
	if entry.pcrTap != nil {
		d.tsSplit.RemoveSubOutput(entry.pcrPID, entry.pcrTap)
	}
	delete(d.programs, programNumber)
}

// handleCATSection forwards EMM sections named by a CA descriptor to the
// shared EMM decoder (spec.md §4.7.4).
func (d *Demux) handleCATSection(u *uref.Uref) {
	section, ok := d.blockBytes(u)
	if !ok {
		return
	}
	cat, err := tables.ParseCAT(append([]byte{0x00}, section...))
	if err != nil {
		log.Printf("ts_demux: malformed CAT section dropped: %v", err)
		return
	}
	for _, desc := range cat.CADescs {
		if !desc.IsDVBCISSA() {
			continue
		}
		pid := d.psiPids.Use(desc.CAPID, d.tsSplit, d.mgr, d.probes)
		emm := d.emmDecoder
		sink := modules.NewSinkFunc(d.mgr, d.probes, "emmd", func(u *uref.Uref) {
			sec, ok := d.blockBytes(u)
			if !ok {
				return
			}
			if err := emm.HandleEMM(sec); err != nil {
				log.Printf("ts_demux: EMM handling failed: %v", err)
			}
		})
		pid.Split.AddSubOutput(PSIFilter{MatchAll: true}, sink)
	}
}

// handlePMTSection applies a PMT update to its program, allocates the PCR
// tap, and records whether the program or any ES carries a CA descriptor
// (spec.md §4.7 steps 1-3). ECM pids are not subscribed and no ECM decoding
// runs: the program's ECM decoder stays the null decoder.
func (d *Demux) handlePMTSection(programNumber uint16, u *uref.Uref) {
	section, ok := d.blockBytes(u)
	if !ok {
		return
	}
	pmt, err := tables.ParsePMT(append([]byte{0x00}, section...))
	if err != nil {
		log.Printf("ts_demux: malformed PMT section dropped (program=%d): %v", programNumber, err)
		return
	}

	d.mu.Lock()
	entry, ok := d.programs[programNumber]
	if !ok {
		d.mu.Unlock()
		return
	}
	entry.pmtRaw = append([]byte(nil), section...)
	diff := entry.program.ApplyPMT(pmt)

	// PCR pid selection (spec.md §4.7 step 2): an absent or null PCR pid
	// falls back to the first ES's own timestamps as the program clock.
	pcrPID := pmt.PCRPID
	fromES := pcrPID == PIDNull
	if pcrPID == PIDNull && len(pmt.ES) > 0 {
		pcrPID = pmt.ES[0].PID
	}
	if pcrPID != entry.pcrPID && pcrPID != PIDNull {
		if entry.pcrTap != nil {
			d.tsSplit.RemoveSubOutput(entry.pcrPID, entry.pcrTap)
		}
		clk := entry.clock
		tap := modules.NewSinkFunc(d.mgr, d.probes, "pcr_tap", func(u *uref.Uref) {
			raw, ok := d.blockBytes(u)
			if !ok {
				return
			}
			if pcr, ok := ExtractPCR(raw); ok {
				clk.Observe(pcr)
			} else if fromES && PacketPUSI(raw) {
				// No PCR pid: the ES's DTS (or PTS when no DTS) stands in.
				if pts, dts, hasPTS, hasDTS := ExtractPTSDTS(PacketPayload(raw)); hasDTS {
					clk.Observe(PCR27MHz(dts))
				} else if hasPTS {
					clk.Observe(PCR27MHz(pts))
				}
			}
		})
		d.tsSplit.AddSubOutput(pcrPID, tap)
		entry.pcrPID = pcrPID
		entry.pcrTap = tap
	}

	hasCA := len(pmt.ProgramCADescs) > 0
	for _, es := range pmt.ES {
		if len(es.CADescs) > 0 {
			hasCA = true
		}
	}
	entry.hasCA = hasCA
	d.mu.Unlock()

	if len(diff.Added) > 0 || len(diff.Removed) > 0 {
		d.notifyProgramsChanged()
	}
}

// Programs lists the currently known program numbers.
func (d *Demux) Programs() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint16, 0, len(d.programs))
	for num := range d.programs {
		out = append(out, num)
	}
	return out
}

// ElementaryStreams lists the currently known ES PIDs for a program.
func (d *Demux) ElementaryStreams(programNumber uint16) []uint16 {
	d.mu.Lock()
	entry, ok := d.programs[programNumber]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return entry.program.Iterate()
}

// AllocES allocates (or returns the existing) ES output for one program's
// PID, wiring it behind ts_split with the PMT's declared flow def and
// binding it into the program so future PMT diffs can tear it down
// (spec.md §4.7 "ES output sub-sub-pipe" — allocated lazily, only once the
// application asks for it).
func (d *Demux) AllocES(programNumber, pid uint16) (*ESOutput, bool) {
	d.mu.Lock()
	entry, ok := d.programs[programNumber]
	d.mu.Unlock()
	if !ok {
		return nil, false
	}

	pmtFlowDef, ok := entry.program.FlowDefFor(pid)
	if !ok {
		return nil, false
	}
	out := NewESOutput(d.mgr, d.probes, pid, pmtFlowDef)
	decaps := NewDecaps(d.mgr, d.probes)
	decaps.SetOutput(out)
	d.tsSplit.AddSubOutput(pid, decaps)
	entry.program.BindOutput(pid, out)
	return out, true
}

// ECMDecoder returns the conditional-access decoder wired for a program, or
// ok=false if the program isn't scrambled. Applying the recovered control
// word to ES payload bytes is a descrambler pipe's job, not this bin's
// (spec.md §4.7.4 scopes the demux to CA *plumbing*, not decryption).
func (d *Demux) ECMDecoder(programNumber uint16) (ca.ECMDecoder, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.programs[programNumber]
	if !ok || !entry.hasCA {
		return nil, false
	}
	return entry.ecm, true
}

// Conformance returns the demux's currently detected (or manually pinned)
// conformance.
func (d *Demux) Conformance() Conformance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conformance.Current()
}

// SetConformance pins the conformance manually, the only path to ISDB
// (spec.md §9 open question 2).
func (d *Demux) SetConformance(c Conformance) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conformance.SetManual(c)
}

// ProgramClock returns the ClockRecon reconstructing program time for a
// program, or nil if the program is unknown.
func (d *Demux) ProgramClock(programNumber uint16) *ClockRecon {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.programs[programNumber]; ok {
		return entry.clock
	}
	return nil
}

// PMTRaw returns the most recently decoded raw PMT section bytes for a
// program, for the live introspection filesystem's /programs/<num>/pmt
// file.
func (d *Demux) PMTRaw(programNumber uint16) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.programs[programNumber]
	if !ok || entry.pmtRaw == nil {
		return nil, false
	}
	return entry.pmtRaw, true
}

// ProgramFlowDef returns the PMT-declared flow def for an ES PID inside a
// program, for /programs/<num>/es/<pid>/flowdef.
func (d *Demux) ProgramFlowDef(programNumber, pid uint16) (string, bool) {
	d.mu.Lock()
	entry, ok := d.programs[programNumber]
	d.mu.Unlock()
	if !ok {
		return "", false
	}
	return entry.program.FlowDefFor(pid)
}

// ContinuityErrors reports the demux-wide continuity-counter error count,
// for /pids/<pid>/stats.
func (d *Demux) ContinuityErrors() uint64 {
	return d.tsSplit.CCErrors()
}

// teardown releases every PSIPid and program the demux is still holding,
// run once by upipe.NewBase between the last external release and Dead
// (spec.md §4.3 pipe lifecycle).
func (d *Demux) teardown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for num := range d.programs {
		d.removeProgramLocked(num)
	}
	if d.nitPid != nil {
		d.nitPid.Release()
		d.nitPid = nil
	}
}

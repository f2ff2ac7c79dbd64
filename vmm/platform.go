package vmm

// Platform is the narrow boundary between the mapper and the handful of
// operations that would be inline assembly on real x86 (CR0/CR3, invlpg,
// halt). Exactly one implementation is wired in at a time; tests use
// a recording fake, a kernel build would wire in the real instructions.
//
// Keeping this as an interface, rather than scattering platform-specific
// calls through Mapper, is what lets the rest of the package stay portable.
type Platform interface {
	// SetPageDirectory installs the given physical address into CR3.
	SetPageDirectory(physAddr uint64)
	// EnablePaging sets CR0.PG and CR0.PE.
	EnablePaging()
	// InvalidatePage issues invlpg for a single virtual address.
	InvalidatePage(virt uint64)
	// Halt stops the machine with a diagnostic. Used when a page fault
	// handler can't satisfy a demand-mapping request.
	Halt(reason string)
}

// NopPlatform is a Platform that performs no real operations. It's the
// default used by New, suitable for running the mapper purely as an
// in-memory simulation (as in tests, or the image builder, where there is no
// real CPU to program).
type NopPlatform struct {
	directoryInstalled uint64
	pagingEnabled      bool
	halted             string
}

func (p *NopPlatform) SetPageDirectory(physAddr uint64) {
	p.directoryInstalled = physAddr
}

func (p *NopPlatform) EnablePaging() {
	p.pagingEnabled = true
}

func (p *NopPlatform) InvalidatePage(virt uint64) {}

func (p *NopPlatform) Halt(reason string) {
	p.halted = reason
}

// HaltedReason returns the reason passed to the last Halt call, or "" if the
// platform was never halted. Test-only introspection.
func (p *NopPlatform) HaltedReason() string { return p.halted }

package netconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/HQarroum/microbox/shared/logger"
)

// poolDir holds one lock file per interface slot. Allocating a slot takes
// an exclusive flock on poolDir/<slot>.lock; the lock is released (and the
// slot freed) when the holding process exits, crash or clean, because the
// kernel drops flocks on fd close.
const poolDir = "/run/microbox/slots"

// AllocateSlot answers the Open Question in spec.md §9: "the id = pid mod
// 254 naming collides for concurrent containers with PIDs differing by
// 254; decide whether to allocate from a persistent pool instead." This
// implementation allocates from a persistent pool of 254 flock-guarded
// slots under /run/microbox/slots, falling back to pid%254 when the pool
// directory can't be created (e.g. /run is read-only or missing) or when
// all 254 slots are held.
//
// The returned release func must be called once the sandbox has exited, to
// make the slot available again; it is a no-op in the fallback path.
func AllocateSlot(pid int) (slot int, release func(), err error) {
	if mkdirErr := os.MkdirAll(poolDir, 0o755); mkdirErr != nil {
		logger.Warn("interface id pool unavailable, falling back to pid modulo", logger.Ctx{"err": mkdirErr, "dir": poolDir})
		return pid % 254, func() {}, nil
	}

	for i := 0; i < 254; i++ {
		path := filepath.Join(poolDir, fmt.Sprintf("%d.lock", i))

		f, openErr := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if openErr != nil {
			continue
		}

		if flockErr := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); flockErr != nil {
			f.Close()
			continue
		}

		// Record the owning pid so a held lock is attributable by anyone
		// inspecting poolDir by hand; the flock itself, not this content,
		// is what provides exclusion and reclaims the slot on crash.
		_ = f.Truncate(0)
		_, _ = f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0)

		fd := f
		return i, func() {
			unix.Flock(int(fd.Fd()), unix.LOCK_UN)
			fd.Close()
		}, nil
	}

	logger.Warn("interface id pool exhausted, falling back to pid modulo", logger.Ctx{"pid": pid})
	return pid % 254, func() {}, nil
}

package dispatch

import (
	"crypto/sha1"
	"encoding/hex"
	"math"
	"math/rand"
	"time"

	"github.com/resctlgo/cgdemo/internal/anonarea"
)

// anonPageSize is the page granularity the hasher's anon-touch draw
// works in.
const anonPageSize = 4096

// TestfileSet is the fixed pool of on-disk testfiles the hasher request
// pipeline loads from, sized by HashdParams.FileSizeMean at bench time.
type TestfileSet struct {
	NrFiles int
	Sizes   []int64 // per-file size in bytes
}

// Requestor runs one request's worth of work: load a testfile, touch
// anon pages, hash cpu_ratio times, sleep, all addressed by clamped
// normal draws.
type Requestor struct {
	Params   *Params
	Files    *TestfileSet
	Anon     *anonarea.Area
	ReadFile func(fileIdx int, size int64) []byte // injected so tests avoid real disk IO
}

// addrFrac computes the address-dispersion scale factor: under low load
// the workload concentrates near the center of the address range,
// modeling cache locality that grows with idleness.
func addrFrac(base, rps, rpsMax float64) float64 {
	if rpsMax <= 0 {
		return base
	}
	return base + (1-base)*clamp01(rps/rpsMax)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// fileIndexDist builds the clamped-normal distribution over file index
// for the current addr_frac.
func (r *Requestor) fileIndexDist(rps float64) ClampedNormal {
	p := r.Params
	n := float64(r.Files.NrFiles)
	frac := addrFrac(p.FileAddrRpsBaseFrac, rps, float64(p.RpsMax))
	center := n / 2
	spread := (n / 2) * frac
	return NewClampedNormal(center, spread*p.FileAddrStdevRatio, 0, n-1)
}

// anonPageDist builds the clamped-normal distribution over anon page
// offset for the current addr_frac.
func (r *Requestor) anonPageDist(rps float64, nrPages int64) ClampedNormal {
	p := r.Params
	frac := addrFrac(p.AnonAddrRpsBaseFrac, rps, float64(p.RpsMax))
	n := float64(nrPages)
	center := n / 2
	spread := (n / 2) * frac
	return NewClampedNormal(center, spread*p.AnonAddrStdevRatio, 0, n-1)
}

// sleepDist builds the clamped-normal distribution over total per-request
// sleep duration.
func (r *Requestor) sleepDist() ClampedNormal {
	p := r.Params
	return NewClampedNormal(p.SleepMean, p.SleepMean*p.SleepStdevRatio, 0, p.SleepMean*4)
}

// Run executes one request: load file, touch anon, hash, sleep (split
// three ways around the three stages), returning the hex digest of the
// final hash pass. Latency is measured by the worker wrapping the call.
func (r *Requestor) Run(rng *rand.Rand, rps float64) string {
	p := r.Params

	sleepTotal := r.sleepDist().Draw(rng)
	stageSleep := time.Duration(sleepTotal / 3 * float64(time.Second))

	time.Sleep(stageSleep)

	fileIdx := int(r.fileIndexDist(rps).Draw(rng))
	if fileIdx < 0 {
		fileIdx = 0
	}
	if fileIdx >= r.Files.NrFiles {
		fileIdx = r.Files.NrFiles - 1
	}
	size := r.Files.Sizes[fileIdx]
	buf := r.ReadFile(fileIdx, size)

	time.Sleep(stageSleep)

	if r.Anon != nil && p.AnonSizeRatio > 0 {
		anonBytes := int64(float64(len(buf)) * p.AnonSizeRatio)
		nrPages := anonBytes / anonPageSize
		if nrPages > 0 {
			dist := r.anonPageDist(rps, nrPages)
			nrTouch := int(1 + p.AnonTotalRatio*float64(nrPages))
			for i := 0; i < nrTouch; i++ {
				pageIdx := int64(dist.Draw(rng))
				r.Anon.TouchPage(pageIdx, anonPageSize)
			}
		}
	}

	sum := hashNTimes(buf, p.CPURatio)

	time.Sleep(stageSleep)

	return hex.EncodeToString(sum[:])
}

// hashNTimes computes the SHA-1 digest of buf repeat times, where the
// fractional part of repeat is implemented by truncating the buffer on
// the final, partial pass.
func hashNTimes(buf []byte, repeat float64) [sha1.Size]byte {
	if repeat < 0 {
		repeat = 0
	}
	whole := int(math.Floor(repeat))
	frac := repeat - float64(whole)

	var sum [sha1.Size]byte
	for i := 0; i < whole; i++ {
		sum = sha1.Sum(buf)
	}
	if frac > 0 && len(buf) > 0 {
		n := int(float64(len(buf)) * frac)
		if n > 0 {
			sum = sha1.Sum(buf[:n])
		}
	}
	return sum
}

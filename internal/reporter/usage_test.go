package reporter

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSamplerSample(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cpu.stat"), "usage_usec 1000000\nuser_usec 800000\n")
	writeFile(t, filepath.Join(dir, "memory.current"), "104857600\n")
	writeFile(t, filepath.Join(dir, "memory.swap.current"), "0\n")
	writeFile(t, filepath.Join(dir, "io.stat"), "8:0 rbytes=4096 wbytes=8192 rios=1 wios=2\n")
	writeFile(t, filepath.Join(dir, "cpu.pressure"), "some avg10=1.50 avg60=0.80 avg300=0.20 total=123\nfull avg10=0.00 avg60=0.00 avg300=0.00 total=0\n")
	writeFile(t, filepath.Join(dir, "memory.pressure"), "some avg10=2.00 avg60=0.00 avg300=0.00 total=0\nfull avg10=0.50 avg60=0.00 avg300=0.00 total=0\n")
	writeFile(t, filepath.Join(dir, "io.pressure"), "some avg10=9.00 avg60=1.00 avg300=0.10 total=999\nfull avg10=5.00 avg60=1.00 avg300=0.10 total=999\n")

	s := NewSampler(dir)
	sample := s.Sample(dir)

	if sample.cpuUsec != 1000000 {
		t.Errorf("cpuUsec = %d, want 1000000", sample.cpuUsec)
	}
	if sample.memBytes != 104857600 {
		t.Errorf("memBytes = %d, want 104857600", sample.memBytes)
	}
	if sample.rbytes != 4096 || sample.wbytes != 8192 {
		t.Errorf("rbytes/wbytes = %d/%d, want 4096/8192", sample.rbytes, sample.wbytes)
	}
	if sample.cpuStallPct != 1.50 {
		t.Errorf("cpuStallPct = %v, want 1.50", sample.cpuStallPct)
	}
	if sample.memStallPct != 0.50 {
		t.Errorf("memStallPct = %v, want 0.50 (full line, not some)", sample.memStallPct)
	}
	if sample.ioStallPct != 5.00 {
		t.Errorf("ioStallPct = %v, want 5.00 (full line, not some)", sample.ioStallPct)
	}
}

func TestDelta(t *testing.T) {
	prev := sliceSample{cpuUsec: 1_000_000, rbytes: 1000, wbytes: 2000}
	cur := sliceSample{cpuUsec: 1_500_000, memBytes: 4096, rbytes: 3000, wbytes: 2000}

	got := Delta(prev, cur, 1.0)
	if got.CPUUsagePct != 50 {
		t.Errorf("CPUUsagePct = %v, want 50 (500000usec/1s)", got.CPUUsagePct)
	}
	if got.IORBPS != 2000 {
		t.Errorf("IORBPS = %v, want 2000", got.IORBPS)
	}
	if got.IOWBPS != 0 {
		t.Errorf("IOWBPS = %v, want 0", got.IOWBPS)
	}
	if got.MemBytes != 4096 {
		t.Errorf("MemBytes = %d, want 4096", got.MemBytes)
	}
}

package fork

import (
	"io"
	"os"
	"strconv"
	"sync"
	"syscall"
	"testing"
)

//go:noinline
func burnStack(n int) int {
	var buf [512]byte
	buf[0] = byte(n)
	if n == 0 {
		return int(buf[0])
	}
	return burnStack(n-1) + int(buf[n%len(buf)])
}

// a forked child must be able to keep running ordinary Go code: growing its
// stack, taking locks, allocating. A runtime fault in the child surfaces as
// a non-zero wait status in the parent.
func TestForkChildContinuesGoExecution(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}

	out, err := Fork()
	if err != nil {
		t.Fatal(err)
	}
	if out.InChild {
		syscall.Close(int(r.Fd()))
		var mu sync.RWMutex
		mu.Lock()
		burnStack(128)
		mu.Unlock()
		w.WriteString("pid=" + strconv.Itoa(os.Getpid()))
		w.Close()
		syscall.Exit(0)
	}

	w.Close()
	b, readErr := io.ReadAll(r)
	r.Close()

	status, err := Wait(out.Pid)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Exited() || status.ExitStatus() != 0 {
		t.Fatalf("child died, wait status %d", status)
	}
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(b) == 0 {
		t.Fatal("child reported nothing back")
	}
}

func TestForkOutcomeSides(t *testing.T) {
	out, err := Fork()
	if err != nil {
		t.Fatal(err)
	}
	if out.InChild {
		if out.Pid != 0 {
			syscall.Exit(1)
		}
		syscall.Exit(0)
	}
	if out.Pid <= 0 {
		t.Fatalf("parent saw pid %d", out.Pid)
	}
	status, err := Wait(out.Pid)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Exited() || status.ExitStatus() != 0 {
		t.Fatalf("child outcome check failed, wait status %d", status)
	}
}

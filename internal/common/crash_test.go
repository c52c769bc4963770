package common

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func TestSafeGoRecoversPanic(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)

	SafeGo(arbor.NewLogger(), "panics", func() {
		defer wg.Done()
		panic("boom")
	})
	SafeGo(arbor.NewLogger(), "survives", func() {
		wg.Done()
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutines did not finish, panic was not recovered")
	}
}

func TestWriteCrashFile(t *testing.T) {
	orig := CrashLogDir
	CrashLogDir = t.TempDir()
	defer func() { CrashLogDir = orig }()

	path := WriteCrashFile("boom", GetStackTrace())
	if path == "" {
		t.Fatal("WriteCrashFile returned empty path")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading crash report: %v", err)
	}

	report := string(data)
	for _, want := range []string{"panic: boom", "version:", "goroutines:"} {
		if !strings.Contains(report, want) {
			t.Errorf("crash report missing %q", want)
		}
	}
}

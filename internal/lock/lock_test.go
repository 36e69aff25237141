package lock_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xRadioAc7iv/go-daybreak/internal/lock"
)

func openTwice(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")

	f1, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f2, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		f1.Close()
		f2.Close()
	})
	return f1, f2
}

func TestLockFile(t *testing.T) {
	t.Run("second handle cannot lock while the first one holds the lock", func(t *testing.T) {
		f1, f2 := openTwice(t)

		if err := lock.Lock(f1); err != nil {
			t.Fatalf("Lock() error: %v", err)
		}
		if err := lock.TryLock(f2); !errors.Is(err, lock.ErrLocked) {
			t.Errorf("TryLock() = %v, want ErrLocked", err)
		}
		if err := lock.Unlock(f1); err != nil {
			t.Fatalf("Unlock() error: %v", err)
		}
	})

	t.Run("lock is available again after unlock", func(t *testing.T) {
		f1, f2 := openTwice(t)

		if err := lock.Lock(f1); err != nil {
			t.Fatalf("Lock() error: %v", err)
		}
		if err := lock.Unlock(f1); err != nil {
			t.Fatalf("Unlock() error: %v", err)
		}
		if err := lock.TryLock(f2); err != nil {
			t.Errorf("TryLock() after unlock = %v", err)
		}
		lock.Unlock(f2)
	})

	t.Run("Lock waits for the holder to release", func(t *testing.T) {
		f1, f2 := openTwice(t)

		if err := lock.Lock(f1); err != nil {
			t.Fatalf("Lock() error: %v", err)
		}

		acquired := make(chan error, 1)
		go func() {
			acquired <- lock.Lock(f2)
		}()

		select {
		case <-acquired:
			t.Fatal("Lock() returned while the lock was held")
		case <-time.After(50 * time.Millisecond):
		}

		lock.Unlock(f1)

		select {
		case err := <-acquired:
			if err != nil {
				t.Fatalf("Lock() error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Lock() did not return after release")
		}
		lock.Unlock(f2)
	})
}

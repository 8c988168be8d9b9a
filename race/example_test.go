package race_test

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/kolkov/hybridrace/race"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig() race.Config {
	cfg := race.DefaultConfig()
	cfg.Storage = race.StorageConfig{Backend: race.BackendMemory}
	return cfg
}

// Example shows an unsynchronized write and read being reported.
func Example() {
	sink := &race.CollectSink{}
	s, err := race.NewSession(memoryConfig(), race.WithSink(sink), race.WithLogger(quietLogger()))
	if err != nil {
		panic(err)
	}
	defer func() { _ = s.Close() }()

	const x race.Location = 0x100

	parent := s.Thread(1)
	worker := parent.Fork(2)

	parent.Write(10, x)
	worker.Read(20, x)

	for _, r := range sink.Reports() {
		fmt.Println(r.Pair, r.Type())
	}

	// Output:
	// {10, 20} write-read
}

// Example_mutexProtected shows that a common lock suppresses the report.
func Example_mutexProtected() {
	sink := &race.CollectSink{}
	s, err := race.NewSession(memoryConfig(), race.WithSink(sink), race.WithLogger(quietLogger()))
	if err != nil {
		panic(err)
	}
	defer func() { _ = s.Close() }()

	const (
		x  race.Location = 0x100
		mu race.LockID   = 1
	)

	t1, t2 := s.Thread(1), s.Thread(2)

	t1.Acquire(mu)
	t1.Write(10, x)
	_ = t1.Release(mu)

	t2.Acquire(mu)
	t2.Write(20, x)
	_ = t2.Release(mu)

	fmt.Println("races:", len(sink.Reports()))

	// Output:
	// races: 0
}

// Example_callerClocks feeds accesses with caller-maintained clocks.
func Example_callerClocks() {
	sink := &race.CollectSink{}
	s, err := race.NewSession(memoryConfig(), race.WithSink(sink), race.WithLogger(quietLogger()))
	if err != nil {
		panic(err)
	}
	defer func() { _ = s.Close() }()

	vc1 := race.NewClocks()
	vc1.Set(1, 1)
	vc2 := race.NewClocks()
	vc2.Set(2, 1)
	vc2.Set(1, 1) // thread 2 has seen thread 1 up to clock 1

	s.Write(10, 1, 0x100, vc1, race.NoLocks)
	s.Read(20, 2, 0x100, vc2, race.NoLocks)

	fmt.Println("races:", len(sink.Reports()))

	// Output:
	// races: 0
}

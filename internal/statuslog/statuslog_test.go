package statuslog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(capacity uint32) *Log {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return New(capacity, logger)
}

func TestLog_DrainReturnsLinesInOrder(t *testing.T) {
	log := newTestLog(16)

	log.Printf("Scan finished – %d candidates found.", 1)
	log.Printf("Connected to %s", "Carrera-RX9")

	lines := log.Drain()
	require.Len(t, lines, 2)
	assert.Equal(t, "Scan finished – 1 candidates found.", lines[0].Text)
	assert.Equal(t, "Connected to Carrera-RX9", lines[1].Text)
	assert.Less(t, lines[0].Seq, lines[1].Seq)

	assert.Empty(t, log.Drain(), "drained lines MUST NOT be replayed")
}

func TestLog_SequenceContinuesAfterDrain(t *testing.T) {
	log := newTestLog(16)

	first := log.Printf("one")
	log.Drain()
	second := log.Printf("two")

	assert.Equal(t, first.Seq+1, second.Seq)
}

func TestLog_ReadySignalsAppend(t *testing.T) {
	log := newTestLog(16)

	select {
	case <-log.Ready():
		t.Fatal("Ready MUST NOT fire before any append")
	default:
	}

	log.Printf("a")
	log.Printf("b")

	select {
	case <-log.Ready():
	default:
		t.Fatal("Ready MUST fire after append")
	}
	assert.Len(t, log.Drain(), 2)
}

func TestLog_ConcurrentWritersKeepSequenceOrder(t *testing.T) {
	log := newTestLog(1024)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				log.Printf("writer %d line %d", w, i)
			}
		}(w)
	}
	wg.Wait()

	lines := log.Drain()
	require.Len(t, lines, 200)
	for i := 1; i < len(lines); i++ {
		assert.Less(t, lines[i-1].Seq, lines[i].Seq, fmt.Sprintf("line %d out of order", i))
	}
}

func TestNew_Defaults(t *testing.T) {
	log := New(0, nil)

	require.NotNil(t, log)
	log.Printf("x")
	assert.Len(t, log.Drain(), 1)
	assert.Zero(t, log.Overwritten())
}

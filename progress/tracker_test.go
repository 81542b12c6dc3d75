package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := New(&buf, 100, 10, "pages")

	tracker.Start()
	tracker.Increment(25)
	tracker.Increment(25)
	tracker.Increment(50)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))

	output := buf.String()
	assert.Contains(t, output, "100/100")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "pages/s")
}

func TestTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := New(&buf, 10, 1, "pages")

	tracker.Increment(5)
	tracker.Finish()

	assert.Empty(t, buf.String())
	assert.Equal(t, time.Duration(0), tracker.Elapsed())
}

func TestTracker_FinishKeepsActualCount(t *testing.T) {
	var buf bytes.Buffer
	tracker := New(&buf, 100, 50, "passages")

	tracker.Start()
	tracker.Increment(75)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "75/100")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestTracker_Failures(t *testing.T) {
	var buf bytes.Buffer
	tracker := New(&buf, 4, 1, "pages")

	tracker.Start()
	tracker.Increment(3)
	tracker.Fail(1)

	done, failed := tracker.Current()
	assert.Equal(t, 4, done)
	assert.Equal(t, 1, failed)
	assert.Contains(t, buf.String(), "1 failed")
}

func TestTracker_SetTotalAndCap(t *testing.T) {
	tracker := New(nil, 0, 10, "pages")

	tracker.Start()
	tracker.SetTotal(20)
	tracker.Increment(50)

	done, _ := tracker.Current()
	assert.Equal(t, 20, done)
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := New(nil, 1000, 100, "passages")
	tracker.Start()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				tracker.Increment(1)
			}
		}()
	}
	wg.Wait()

	done, _ := tracker.Current()
	assert.Equal(t, 1000, done)
}

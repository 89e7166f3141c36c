package intelligence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testTrendConfig() TrendConfig {
	return TrendConfig{Multiplier: 2, Decay: 0.8, InitialBaseline: 1, Window: time.Hour, MaxTopics: 3}
}

func TestTrendDetector_Burst(t *testing.T) {
	d := NewTrendDetector(testTrendConfig())

	quiet := d.Observe(map[string]int{"rates": 1}, testNow)
	assert.Zero(t, quiet["rates"])

	burst := d.Observe(map[string]int{"rates": 5}, testNow.Add(time.Minute))
	// rate 6 against a baseline of 1.0 is ratio 6, capped at 1
	assert.Equal(t, 1.0, burst["rates"])
}

func TestTrendDetector_WindowExpiry(t *testing.T) {
	d := NewTrendDetector(testTrendConfig())

	d.Observe(map[string]int{"rates": 3}, testNow)
	later := d.Observe(map[string]int{"rates": 1}, testNow.Add(2*time.Hour))
	assert.Zero(t, later["rates"])
}

func TestTrendDetector_TrimsLeastRecent(t *testing.T) {
	d := NewTrendDetector(testTrendConfig())

	for i := 0; i < 5; i++ {
		d.Observe(map[string]int{fmt.Sprintf("t%d", i): 1}, testNow.Add(time.Duration(i)*time.Minute))
	}
	assert.Equal(t, 3, d.Len())
}

func TestTrendDetector_ConcurrentObserve(t *testing.T) {
	d := NewTrendDetector(TrendConfig{Multiplier: 2, Decay: 0.8, InitialBaseline: 1, Window: time.Hour, MaxTopics: 50})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Observe(map[string]int{fmt.Sprintf("t%d", i%4): 1}, testNow)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, d.Len())
}

package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassCacheReadRangeMissWhenEmpty(t *testing.T) {
	c := newClassCache()
	_, ok := c.readRange(0, 3, time.Now(), time.Second)
	assert.False(t, ok)
}

func TestClassCacheWriteThenReadWithinWindow(t *testing.T) {
	c := newClassCache()
	now := time.Now()
	c.writeRange(10, []uint16{1, 2, 3}, now)

	values, ok := c.readRange(10, 3, now.Add(50*time.Millisecond), 200*time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, []uint16{1, 2, 3}, values)
}

func TestClassCacheReadRangeMissesOncePastWindow(t *testing.T) {
	c := newClassCache()
	now := time.Now()
	c.writeRange(10, []uint16{1}, now)

	_, ok := c.readRange(10, 1, now.Add(300*time.Millisecond), 200*time.Millisecond)
	assert.False(t, ok, "a read past the freshness window must miss")
}

func TestClassCacheReadRangePartialCoverageMisses(t *testing.T) {
	c := newClassCache()
	now := time.Now()
	c.writeRange(10, []uint16{1}, now)

	// Address 11 was never written, so a 2-address read spanning it must miss entirely.
	_, ok := c.readRange(10, 2, now, time.Second)
	assert.False(t, ok)
}

func TestDeviceCacheForClassReturnsDistinctCaches(t *testing.T) {
	d := newDeviceCache()
	classes := []*classCache{d.forClass(classCoil), d.forClass(classDiscreteInput), d.forClass(classHoldingRegister), d.forClass(classInputRegister)}
	for i := range classes {
		for j := range classes {
			if i != j {
				assert.NotSame(t, classes[i], classes[j], "forClass() must return a distinct cache per register class")
			}
		}
	}
}

func TestBoolToWord(t *testing.T) {
	assert.Equal(t, uint16(0), boolToWord(false))
	assert.Equal(t, uint16(1), boolToWord(true))
}

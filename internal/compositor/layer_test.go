package compositor

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayer_DefaultState(t *testing.T) {
	f := newFixture()
	for _, r := range Ranks() {
		l := f.layer(r)
		assert.Equal(t, r, l.Rank())
		assert.Equal(t, "", l.Text())
		assert.Equal(t, NoTTL, l.TTL())
		assert.True(t, l.IsEmpty())
	}
}

func TestLayer_ClearResetsAndIsIdempotent(t *testing.T) {
	f := newFixture()
	l := f.layer(RankMiddle)
	require.NoError(t, l.UpdateText("x"))
	require.NoError(t, l.UpdateTTL(10))

	require.NoError(t, l.Clear())
	assert.Equal(t, "", l.Text())
	assert.Equal(t, NoTTL, l.TTL())

	require.NoError(t, l.Clear())
	assert.Equal(t, "", l.Text())
	assert.Equal(t, NoTTL, l.TTL())
	assert.Equal(t, "", f.display.Text())
}

func TestLayer_UpdateTTLDoesNotRecompose(t *testing.T) {
	f := newFixture()
	l := f.layer(RankLower)
	require.NoError(t, l.UpdateText("x"))
	before := f.observer.Count()

	require.NoError(t, l.UpdateTTL(3))
	require.NoError(t, l.UpdateTTL(NoTTL))

	assert.Equal(t, before, f.observer.Count())
	assert.Len(t, f.driver.Ops(), 2)
	assert.Equal(t, "x", l.Text())
}

func TestLayer_UpdateTTLRejectsInvalid(t *testing.T) {
	f := newFixture()
	l := f.layer(RankUpper)

	for _, ttl := range []int{-2, -100} {
		assert.ErrorIs(t, l.UpdateTTL(ttl), ErrInvalidTTL)
	}
	assert.Equal(t, NoTTL, l.TTL())
}

func TestLayer_UpdateTTLBounds(t *testing.T) {
	f := newFixture()
	l := f.layer(RankMiddle)
	require.NoError(t, l.UpdateText("X"))

	max := f.display.MaxTTL()
	assert.Equal(t, int64(math.MaxInt64/int64(time.Second)), max)

	err := l.UpdateTTL(10_000_000_000)
	assert.ErrorIs(t, err, ErrInvalidTTL)
	assert.Equal(t, NoTTL, l.TTL())
	assert.Empty(t, f.clock.timers)

	require.NoError(t, l.UpdateTTL(int(max)))
	assert.Equal(t, int(max), l.TTL())
	f.clock.Advance(time.Hour)
	assert.Equal(t, "X", l.Text())
}

func TestLayer_TTLExpiryClearsLayer(t *testing.T) {
	f := newFixture()
	l := f.layer(RankMiddle)
	require.NoError(t, l.UpdateText("X"))
	require.NoError(t, l.UpdateTTL(5))
	assert.Equal(t, "X", f.display.Text())

	f.clock.Advance(4 * time.Second)
	assert.Equal(t, "X", f.display.Text())
	assert.Equal(t, 1, l.TTL())

	f.clock.Advance(time.Second)
	assert.Equal(t, "", l.Text())
	assert.Equal(t, NoTTL, l.TTL())
	assert.Equal(t, "", f.display.Text())
	assert.Equal(t, "", f.driver.Shown())
}

func TestLayer_TTLExpiryRevealsLowerLayer(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.layer(RankLower).UpdateText("clock"))
	require.NoError(t, f.layer(RankUpper).UpdateText("alert"))
	require.NoError(t, f.layer(RankUpper).UpdateTTL(2))

	f.clock.Advance(2 * time.Second)
	assert.Equal(t, "clock", f.display.Text())
	assert.Equal(t, "clock", f.observer.Last().Text)
}

func TestLayer_TTLCountsDown(t *testing.T) {
	f := newFixture()
	l := f.layer(RankLower)
	require.NoError(t, l.UpdateText("x"))
	require.NoError(t, l.UpdateTTL(5))

	assert.Equal(t, 5, l.TTL())
	f.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 4, l.TTL(), "partial units round up")
	f.clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, 1, l.TTL())
}

func TestLayer_ReArmReplacesCountdown(t *testing.T) {
	f := newFixture()
	l := f.layer(RankUpper)
	require.NoError(t, l.UpdateText("x"))
	require.NoError(t, l.UpdateTTL(5))

	f.clock.Advance(3 * time.Second)
	require.NoError(t, l.UpdateTTL(5))
	notified := f.observer.Count()

	// The first countdown would have fired here.
	f.clock.Advance(3 * time.Second)
	assert.Equal(t, "x", l.Text())
	assert.Equal(t, notified, f.observer.Count())

	f.clock.Advance(2 * time.Second)
	assert.Equal(t, "", l.Text())
	assert.Equal(t, notified+1, f.observer.Count(), "exactly one clear fires")

	f.clock.Advance(time.Minute)
	assert.Equal(t, notified+1, f.observer.Count())
}

func TestLayer_DisableTTLPreventsExpiry(t *testing.T) {
	f := newFixture()
	l := f.layer(RankMiddle)
	require.NoError(t, l.UpdateText("stay"))
	require.NoError(t, l.UpdateTTL(2))
	require.NoError(t, l.UpdateTTL(NoTTL))

	f.clock.Advance(time.Hour)
	assert.Equal(t, "stay", l.Text())
	assert.Equal(t, NoTTL, l.TTL())
}

func TestLayer_ClearCancelsTTL(t *testing.T) {
	f := newFixture()
	l := f.layer(RankMiddle)
	require.NoError(t, l.UpdateText("one"))
	require.NoError(t, l.UpdateTTL(2))
	require.NoError(t, l.Clear())
	require.NoError(t, l.UpdateText("two"))

	f.clock.Advance(time.Hour)
	assert.Equal(t, "two", l.Text(), "cleared countdown must not hit new content")
}

// A countdown that started firing before it was cancelled must not clear
// the layer.
func TestLayer_StaleFireIsIgnored(t *testing.T) {
	f := newFixture()
	l := f.layer(RankLower)
	require.NoError(t, l.UpdateText("keep"))
	require.NoError(t, l.UpdateTTL(1))
	stale := f.clock.timer(0)

	require.NoError(t, l.UpdateTTL(60))
	notified := f.observer.Count()

	stale.f()
	assert.Equal(t, "keep", l.Text())
	assert.Equal(t, notified, f.observer.Count())
}

func TestLayer_ZeroTTLExpiresImmediately(t *testing.T) {
	f := newFixture()
	l := f.layer(RankUpper)
	require.NoError(t, l.UpdateText("flash"))
	require.NoError(t, l.UpdateTTL(0))
	assert.Equal(t, 0, l.TTL())

	f.clock.Advance(0)
	assert.Equal(t, "", l.Text())
}

func TestLayer_UpdateTextKeepsTTL(t *testing.T) {
	f := newFixture()
	l := f.layer(RankUpper)
	require.NoError(t, l.UpdateText("a"))
	require.NoError(t, l.UpdateTTL(5))
	require.NoError(t, l.UpdateText("b"))

	assert.Equal(t, 5, l.TTL())
	f.clock.Advance(5 * time.Second)
	assert.Equal(t, "", l.Text())
}

func TestLayer_ExpiryWriteFailureIsLogged(t *testing.T) {
	f := newFixture()
	l := f.layer(RankUpper)
	require.NoError(t, l.UpdateText("a"))
	require.NoError(t, l.UpdateTTL(1))

	f.driver.failWrites(errBus)
	f.clock.Advance(time.Second)

	assert.Equal(t, "", l.Text(), "logical state clears even if the device write fails")
	assert.Equal(t, "", f.display.Text())
}

func TestLayer_TTLUnit(t *testing.T) {
	clock := newFakeClock()
	d := New(&recordingDriver{}, Options{TTLUnit: time.Minute, Clock: clock})
	assert.Equal(t, time.Minute, d.TTLUnit())

	l, err := d.Panel(RankLower)
	require.NoError(t, err)
	require.NoError(t, l.UpdateText("x"))
	require.NoError(t, l.UpdateTTL(2))

	clock.Advance(119 * time.Second)
	assert.Equal(t, "x", l.Text())
	clock.Advance(time.Second)
	assert.Equal(t, "", l.Text())
}

func TestLayer_RealTimerExpiry(t *testing.T) {
	d := New(&recordingDriver{}, Options{TTLUnit: 10 * time.Millisecond})
	defer d.Close()

	l, err := d.Panel(RankMiddle)
	require.NoError(t, err)
	require.NoError(t, l.UpdateText("soon gone"))
	require.NoError(t, l.UpdateTTL(2))

	assert.Eventually(t, l.IsEmpty, time.Second, 5*time.Millisecond)
	assert.Equal(t, "", d.Text())
}

package tick

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHousekeepMode(t *testing.T) {
	for _, m := range []HousekeepMode{HousekeepBoth, HousekeepBefore, HousekeepAfter} {
		got, err := ParseHousekeepMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseHousekeepMode("")
	require.NoError(t, err)
	assert.Equal(t, HousekeepBoth, got)

	_, err = ParseHousekeepMode("sometimes")
	assert.Error(t, err)
}

func TestParsePhase(t *testing.T) {
	for _, p := range Phases {
		got, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePhase("render")
	assert.Error(t, err)
}

func TestDriver_Modes(t *testing.T) {
	tests := []struct {
		mode        HousekeepMode
		firstTick   int
		pendingLeft int
	}{
		{HousekeepBoth, 1, 0},
		{HousekeepBefore, 1, 0},
		{HousekeepAfter, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			s := NewScheduler()
			d := NewDriver(s, PhaseUpdate, tt.mode)
			p := newProbe("p", 0, nil)
			s.ScheduleRegister(p)

			res := d.Tick()
			assert.Equal(t, tt.firstTick, res.Invoked)
			assert.Equal(t, tt.pendingLeft, s.PendingLen())

			d.Tick()
			assert.Equal(t, tt.firstTick+1, p.invoked)
		})
	}
}

func TestDriver_RegistrationDuringSweepAppliedAfter(t *testing.T) {
	var calls []string
	s := NewScheduler()
	late := NewDriver(s, PhaseLateUpdate, HousekeepBoth)
	upd := NewDriver(s, PhaseUpdate, HousekeepBoth)

	child := newProbe("child", 0, &calls)
	child.upd = Settings{}
	child.late = NewSettings(0, true)
	parent := newProbe("parent", 0, &calls)
	parent.onTick = func() { s.ScheduleRegister(child) }
	s.ScheduleRegister(parent)

	upd.Tick()
	assert.Equal(t, []string{"parent"}, calls)
	assert.Equal(t, 1, s.LateUpdateQueue().Len(), "post-sweep housekeeping routes the child")

	late.Tick()
	assert.Equal(t, []string{"parent", "child"}, calls)
	assert.Equal(t, PhaseLateUpdate, late.Phase())
}

func TestDriver_RemovalScenario(t *testing.T) {
	s := NewScheduler()
	d := NewDriver(s, PhaseFixedUpdate, HousekeepBefore)
	p := newProbe("p", 0, nil)
	p.upd = Settings{}
	p.fixed = NewSettings(3, true)

	s.ScheduleRegister(p)
	s.RunHousekeeping()
	s.ScheduleRemoval(p)
	s.Dispatch(PhaseFixedUpdate)
	assert.Equal(t, 1, p.invoked)

	d.Tick()
	assert.Equal(t, 1, p.invoked)
	assert.Equal(t, 0, s.FixedUpdateQueue().Len())
}

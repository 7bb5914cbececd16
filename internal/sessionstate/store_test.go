package sessionstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_UpdateCar_CreatesThenPatches(t *testing.T) {
	store := NewStore(&SessionState{EventID: 1, SessionID: 2})

	patch := store.UpdateCar("42", func(c *CarPosition) {
		c.LastLap = 1
		c.CurrentStatus = "RUNNING"
	})
	require.NotNil(t, patch.LastLap)
	require.Equal(t, 1, *patch.LastLap)

	patch2 := store.UpdateCar("42", func(c *CarPosition) {
		c.LastLap = 2
	})
	require.NotNil(t, patch2.LastLap)
	require.Equal(t, 2, *patch2.LastLap)
	require.Nil(t, patch2.CurrentStatus)

	snap := store.Snapshot()
	require.Len(t, snap.CarPositions, 1)
	require.Equal(t, 2, snap.CarPositions[0].LastLap)
}

func TestStore_Update_TopLevelFields(t *testing.T) {
	store := NewStore(&SessionState{EventID: 1, SessionID: 2, CurrentFlag: FlagGreen})

	patch := store.Update(func(s *SessionState) {
		s.CurrentFlag = FlagYellow
		s.LapsToGo = 5
	})
	require.NotNil(t, patch.CurrentFlag)
	require.Equal(t, FlagYellow, *patch.CurrentFlag)
	require.NotNil(t, patch.LapsToGo)
}

func TestStore_ConcurrentUpdateCar_NoRace(t *testing.T) {
	store := NewStore(&SessionState{EventID: 1, SessionID: 2})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.UpdateCar("1", func(c *CarPosition) {
				c.LastLap++
			})
		}(i)
	}
	wg.Wait()
	snap := store.Snapshot()
	require.Equal(t, 20, snap.CarPositions[0].LastLap)
}

func TestStore_Replace_FullSwap(t *testing.T) {
	store := NewStore(&SessionState{EventID: 1, SessionID: 2, LapsToGo: 10})
	store.Replace(&SessionState{EventID: 1, SessionID: 2, LapsToGo: 0})
	require.Equal(t, 0, store.Snapshot().LapsToGo)
}

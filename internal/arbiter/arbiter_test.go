package arbiter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

func download(id, pkg string, progress int) Entry {
	return Entry{ID: id, PackageID: pkg, Kind: event.KindDownload, Priority: event.KindDownload.Priority(), Progress: progress}
}

func media(id, pkg string, progress int) Entry {
	return Entry{ID: id, PackageID: pkg, Kind: event.KindMedia, Priority: event.KindMedia.Priority(), Progress: progress}
}

func TestPriorityPolicyPrefersPriorityThenProgress(t *testing.T) {
	t.Parallel()
	a := New(PriorityPolicy{})

	d := a.Upsert(media("m", "player", 900))
	require.True(t, d.Show)
	require.Equal(t, "m", d.Winner.ID)

	d = a.Upsert(download("d1", "store", 100))
	require.Equal(t, "d1", d.Winner.ID, "priority beats magnitude")

	d = a.Upsert(download("d2", "browser", 300))
	require.Equal(t, "d2", d.Winner.ID)

	d = a.Upsert(download("d1", "store", 400))
	require.Equal(t, "d1", d.Winner.ID)
}

func TestPriorityPolicyTieKeepsOldest(t *testing.T) {
	t.Parallel()
	a := New(nil)
	a.Upsert(download("first", "a", 500))
	d := a.Upsert(download("second", "b", 500))
	require.Equal(t, "first", d.Winner.ID)
}

func TestZeroProgressWinnerHides(t *testing.T) {
	t.Parallel()
	a := New(PriorityPolicy{})
	d := a.Upsert(download("d", "store", 0))
	require.False(t, d.Show)
	cur, ok := a.Current()
	require.True(t, ok)
	require.Equal(t, "d", cur.ID)
}

func TestRemovalIsDebounced(t *testing.T) {
	t.Parallel()
	a := New(PriorityPolicy{})
	a.Upsert(media("m", "player", 200))
	a.Upsert(download("d", "store", 700))

	d := a.MarkRemoved("d")
	require.True(t, d.Show)
	require.Equal(t, "d", d.Winner.ID, "pending entry keeps the display during grace")
	require.True(t, d.Winner.Pending())

	d = a.Finalize("d")
	require.Equal(t, "m", d.Winner.ID)
	require.Len(t, a.Entries(), 1)
}

func TestFresherUpdateCancelsPendingRemoval(t *testing.T) {
	t.Parallel()
	a := New(PriorityPolicy{})
	a.Upsert(download("d", "store", 700))
	a.MarkRemoved("d")
	a.Upsert(download("d", "store", 750))

	d := a.Finalize("d")
	require.True(t, d.Show)
	require.Equal(t, 750, d.Winner.Progress)
	require.False(t, d.Winner.Pending())
}

func TestFinalizeLastEntryHides(t *testing.T) {
	t.Parallel()
	a := New(PriorityPolicy{})
	a.Upsert(download("d", "store", 700))
	a.MarkRemoved("d")
	d := a.Finalize("d")
	require.False(t, d.Show)
	_, ok := a.Current()
	require.False(t, ok)
}

func TestStickyRejectsRegression(t *testing.T) {
	t.Parallel()
	a := New(StickyPolicy{})

	d := a.Upsert(Entry{ID: "a", PackageID: "A", Priority: 2, Progress: 50, Kind: event.KindDownload})
	require.Equal(t, "a", d.Winner.ID)

	d = a.Upsert(Entry{ID: "b", PackageID: "B", Priority: 2, Progress: 30, Kind: event.KindDownload})
	require.Equal(t, "a", d.Winner.ID, "same priority with less progress is rejected")

	d = a.Upsert(Entry{ID: "b", PackageID: "B", Priority: 3, Progress: 10, Kind: event.KindDownload})
	require.Equal(t, "b", d.Winner.ID, "higher priority is accepted")
}

func TestStickyAcceptsOverPendingCurrent(t *testing.T) {
	t.Parallel()
	a := New(StickyPolicy{})
	a.Upsert(download("a", "A", 50))
	a.MarkRemoved("a")

	d := a.Upsert(download("b", "B", 30))
	require.Equal(t, "b", d.Winner.ID)
}

func TestStickyRejectsLowerPriority(t *testing.T) {
	t.Parallel()
	a := New(StickyPolicy{})
	a.Upsert(download("d", "store", 10))
	d := a.Upsert(media("m", "player", 900))
	require.Equal(t, "d", d.Winner.ID)
}

func TestStickySeedsBestAfterFinalize(t *testing.T) {
	t.Parallel()
	a := New(StickyPolicy{})
	a.Upsert(download("a", "A", 50))
	a.Upsert(media("m", "player", 400))
	a.Upsert(download("b", "B", 20))

	a.MarkRemoved("a")
	d := a.Finalize("a")
	require.Equal(t, "b", d.Winner.ID)
}

func TestAccepts(t *testing.T) {
	t.Parallel()
	cur := Entry{ID: "a", PackageID: "A", Priority: 2, Progress: 50}
	tests := []struct {
		name     string
		incoming Entry
		want     bool
	}{
		{"same id", Entry{ID: "a", PackageID: "A", Priority: 0, Progress: 1}, true},
		{"lower priority", Entry{ID: "b", PackageID: "B", Priority: 1, Progress: 99}, false},
		{"same package less progress", Entry{ID: "b", PackageID: "A", Priority: 2, Progress: 10}, true},
		{"other package less progress", Entry{ID: "b", PackageID: "B", Priority: 2, Progress: 30}, false},
		{"other package more progress", Entry{ID: "b", PackageID: "B", Priority: 2, Progress: 60}, true},
		{"higher priority", Entry{ID: "b", PackageID: "B", Priority: 3, Progress: 10}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Accepts(cur, tc.incoming))
		})
	}
}

func TestPolicyByName(t *testing.T) {
	t.Parallel()
	p, err := PolicyByName("")
	require.NoError(t, err)
	require.Equal(t, "priority", p.Name())
	p, err = PolicyByName("sticky")
	require.NoError(t, err)
	require.Equal(t, "sticky", p.Name())
	_, err = PolicyByName("random")
	require.Error(t, err)
}

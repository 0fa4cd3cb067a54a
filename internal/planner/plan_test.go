package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"syncd/internal/state"
)

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func info(hash string, sec int64, size int64) state.FileInfo {
	return state.FileInfo{Hash: hash, Modified: at(sec), Size: size}
}

func TestResolveEmptyBothSidesIsEmptyPlan(t *testing.T) {
	local := state.New()
	remote := state.New()

	p := Resolve(local, remote)

	require.Empty(t, p.Upload)
	require.Empty(t, p.Download)
	require.Empty(t, p.DeleteLocal)
	require.Empty(t, p.DeleteRemote)
	require.Empty(t, p.Conflicts)
}

func TestResolveOnlyLocalLiveUploads(t *testing.T) {
	local := state.New()
	local.Put(state.FileInfo{Path: "doc.txt", Hash: "H1", Modified: at(100)})
	remote := state.New()

	p := Resolve(local, remote)

	require.Equal(t, []string{"doc.txt"}, p.Upload)
	require.Empty(t, p.Download)
}

func TestResolveOnlyRemoteLiveDownloads(t *testing.T) {
	local := state.New()
	remote := state.New()
	remote.Put(state.FileInfo{Path: "doc.txt", Hash: "H1", Modified: at(100)})

	p := Resolve(local, remote)

	require.Len(t, p.Download, 1)
	require.Equal(t, "doc.txt", p.Download[0].Path)
	require.Empty(t, p.Upload)
}

func TestResolveBothLiveSameHashNoAction(t *testing.T) {
	local := state.New()
	local.Put(state.FileInfo{Path: "doc.txt", Hash: "H1", Modified: at(100)})
	remote := state.New()
	remote.Put(state.FileInfo{Path: "doc.txt", Hash: "H1", Modified: at(150)})

	p := Resolve(local, remote)

	require.Empty(t, p.Upload)
	require.Empty(t, p.Download)
	require.Empty(t, p.Conflicts)
}

func TestResolveBothLiveLocalNewerUploads(t *testing.T) {
	local := state.New()
	local.Put(state.FileInfo{Path: "doc.txt", Hash: "H2", Modified: at(200)})
	remote := state.New()
	remote.Put(state.FileInfo{Path: "doc.txt", Hash: "H1", Modified: at(100)})

	p := Resolve(local, remote)

	require.Equal(t, []string{"doc.txt"}, p.Upload)
	require.Empty(t, p.Conflicts)
}

func TestResolveBothLiveRemoteNewerDownloads(t *testing.T) {
	local := state.New()
	local.Put(state.FileInfo{Path: "doc.txt", Hash: "H1", Modified: at(100)})
	remote := state.New()
	remote.Put(state.FileInfo{Path: "doc.txt", Hash: "H3", Modified: at(210)})

	p := Resolve(local, remote)

	require.Len(t, p.Download, 1)
	require.Equal(t, "H3", p.Download[0].Hash)
	require.Empty(t, p.Conflicts)
}

func TestResolveTieWithDifferingHashesRemoteWinsConflictRecorded(t *testing.T) {
	local := state.New()
	local.Put(state.FileInfo{Path: "doc.txt", Hash: "H2", Modified: at(200)})
	remote := state.New()
	remote.Put(state.FileInfo{Path: "doc.txt", Hash: "H3", Modified: at(200)})

	p := Resolve(local, remote)

	require.Empty(t, p.Upload)
	require.Len(t, p.Download, 1)
	require.Equal(t, "H3", p.Download[0].Hash)
	require.Len(t, p.Conflicts, 1)
	require.Equal(t, "remote", p.Conflicts[0].Winner)
	require.Equal(t, "doc.txt", p.Conflicts[0].Path)
}

func TestResolveLocalTombstoneVsRemoteLiveOlderDeletesRemote(t *testing.T) {
	local := state.New()
	local.Delete("doc.txt", at(300))
	remote := state.New()
	remote.Put(state.FileInfo{Path: "doc.txt", Hash: "H2", Modified: at(250)})

	p := Resolve(local, remote)

	require.Equal(t, []DeleteInstruction{{Path: "doc.txt", Instant: at(300)}}, p.DeleteRemote)
	require.Empty(t, p.Upload)
	require.Empty(t, p.Download)
}

func TestResolveLocalTombstoneVsRemoteLiveNewerIsIgnored(t *testing.T) {
	local := state.New()
	local.Delete("doc.txt", at(300))
	remote := state.New()
	remote.Put(state.FileInfo{Path: "doc.txt", Hash: "H2", Modified: at(400)})

	p := Resolve(local, remote)

	require.Empty(t, p.DeleteRemote)
	require.Empty(t, p.Upload)
	require.Len(t, p.Download, 1, "remote's strictly newer edit resurrects on local")
}

func TestResolveRemoteTombstoneVsLocalLiveOlderDeletesLocal(t *testing.T) {
	local := state.New()
	local.Put(state.FileInfo{Path: "doc.txt", Hash: "H2", Modified: at(250)})
	remote := state.New()
	remote.Delete("doc.txt", at(300))

	p := Resolve(local, remote)

	require.Equal(t, []DeleteInstruction{{Path: "doc.txt", Instant: at(300)}}, p.DeleteLocal)
	require.Empty(t, p.Upload)
	require.Empty(t, p.Download)
}

func TestResolveRemoteTombstoneVsLocalLiveTieDeletesLocal(t *testing.T) {
	local := state.New()
	local.Put(state.FileInfo{Path: "doc.txt", Hash: "H2", Modified: at(300)})
	remote := state.New()
	remote.Delete("doc.txt", at(300))

	p := Resolve(local, remote)

	require.Equal(t, []DeleteInstruction{{Path: "doc.txt", Instant: at(300)}}, p.DeleteLocal, "exact tie must favor the tombstone, not resurrect")
}

func TestResolveRemoteTombstoneVsLocalLiveStrictlyNewerUploads(t *testing.T) {
	local := state.New()
	local.Put(state.FileInfo{Path: "doc.txt", Hash: "H4", Modified: at(400)})
	remote := state.New()
	remote.Delete("doc.txt", at(300))

	p := Resolve(local, remote)

	require.Equal(t, []string{"doc.txt"}, p.Upload, "strictly newer local edit resurrects on remote")
	require.Empty(t, p.DeleteLocal)
}

func TestResolveBothTombstonedIsNoAction(t *testing.T) {
	local := state.New()
	local.Delete("doc.txt", at(300))
	remote := state.New()
	remote.Delete("doc.txt", at(250))

	p := Resolve(local, remote)

	require.Empty(t, p.DeleteLocal)
	require.Empty(t, p.DeleteRemote)
	require.Empty(t, p.Upload)
	require.Empty(t, p.Download)
}

func TestResolveOnlyLocalTombstoneRemoteNeverHeardOfPathIsNoop(t *testing.T) {
	local := state.New()
	local.Delete("doc.txt", at(300))
	remote := state.New()

	p := Resolve(local, remote)

	require.Empty(t, p.DeleteRemote)
	require.Empty(t, p.Upload)
}

func TestResolveIsDeterministicGivenSameInputs(t *testing.T) {
	local := state.New()
	local.Put(info("H1", 100, 2))
	local.Delete("gone.txt", at(50))
	remote := state.New()
	remote.Put(info("H2", 90, 3))
	remote.Delete("gone2.txt", at(40))

	p1 := Resolve(local, remote)
	p2 := Resolve(local, remote)

	require.ElementsMatch(t, p1.Upload, p2.Upload)
	require.ElementsMatch(t, p1.DeleteRemote, p2.DeleteRemote)
	require.ElementsMatch(t, p1.DeleteLocal, p2.DeleteLocal)
}

// Scenario 1: basic propagation, A creates, syncs to coordinator, B syncs
// from coordinator.
func TestScenarioBasicPropagation(t *testing.T) {
	a := state.New()
	a.Put(state.FileInfo{Path: "doc.txt", Hash: "H1", Modified: at(100), Size: 2})
	coordinator := state.New()

	planAtoC := Resolve(a, coordinator)
	require.Equal(t, []string{"doc.txt"}, planAtoC.Upload)

	coordinator.Put(state.FileInfo{Path: "doc.txt", Hash: "H1", Modified: at(100), Size: 2})

	b := state.New()
	planBtoC := Resolve(b, coordinator)
	require.Len(t, planBtoC.Download, 1)
	require.Equal(t, "H1", planBtoC.Download[0].Hash)
}

// Scenario 2: last-writer-wins. B's edit is strictly newer than the
// coordinator's copy, so it uploads without a conflict being recorded.
func TestScenarioLastWriterWins(t *testing.T) {
	coordinator := state.New()
	coordinator.Put(state.FileInfo{Path: "doc.txt", Hash: "H1", Modified: at(100)})

	a := state.New()
	a.Put(state.FileInfo{Path: "doc.txt", Hash: "H2", Modified: at(200)})
	planA := Resolve(a, coordinator)
	require.Equal(t, []string{"doc.txt"}, planA.Upload)
	coordinator.Put(state.FileInfo{Path: "doc.txt", Hash: "H2", Modified: at(200)})

	b := state.New()
	b.Put(state.FileInfo{Path: "doc.txt", Hash: "H3", Modified: at(210)})
	planB := Resolve(b, coordinator)
	require.Empty(t, planB.Conflicts, "B is strictly newer, not a tie")
	require.Equal(t, []string{"doc.txt"}, planB.Upload)
	coordinator.Put(state.FileInfo{Path: "doc.txt", Hash: "H3", Modified: at(210)})

	// A re-syncs and picks up B's write.
	planAFinal := Resolve(a, coordinator)
	require.Len(t, planAFinal.Download, 1)
	require.Equal(t, "H3", planAFinal.Download[0].Hash)
}

// Scenario 3: deletion propagation.
func TestScenarioDeletionPropagation(t *testing.T) {
	coordinator := state.New()
	coordinator.Put(state.FileInfo{Path: "doc.txt", Hash: "H3", Modified: at(210)})

	b := state.New()
	b.Put(state.FileInfo{Path: "doc.txt", Hash: "H3", Modified: at(210)})
	b.Delete("doc.txt", at(300))

	planB := Resolve(b, coordinator)
	require.Equal(t, []DeleteInstruction{{Path: "doc.txt", Instant: at(300)}}, planB.DeleteRemote)
	coordinator.Delete("doc.txt", at(300))

	a := state.New()
	a.Put(state.FileInfo{Path: "doc.txt", Hash: "H3", Modified: at(210)})
	planA := Resolve(a, coordinator)
	require.Equal(t, []DeleteInstruction{{Path: "doc.txt", Instant: at(300)}}, planA.DeleteLocal, "tombstone remains 300")
}

// Scenario 4: no resurrection from a stale rescan.
func TestScenarioNoResurrection(t *testing.T) {
	coordinator := state.New()
	coordinator.Delete("doc.txt", at(300))

	a := state.New()
	a.Put(state.FileInfo{Path: "doc.txt", Hash: "Hstale", Modified: at(250)})

	plan := Resolve(a, coordinator)
	require.Equal(t, []DeleteInstruction{{Path: "doc.txt", Instant: at(300)}}, plan.DeleteLocal)
	require.Empty(t, plan.Upload)
}

// Scenario 5: resurrection with a strictly newer edit.
func TestScenarioResurrectionWithNewerEdit(t *testing.T) {
	coordinator := state.New()
	coordinator.Delete("doc.txt", at(300))

	a := state.New()
	a.Put(state.FileInfo{Path: "doc.txt", Hash: "Hnew", Modified: at(400)})

	plan := Resolve(a, coordinator)
	require.Equal(t, []string{"doc.txt"}, plan.Upload)
	require.Empty(t, plan.DeleteLocal)
}

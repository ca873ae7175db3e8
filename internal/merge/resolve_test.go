package merge

import (
	"testing"

	"github.com/richardjkendall/todoapp/internal/task"
)

func detectOne(t *testing.T, l, r *task.Task) Conflict {
	t.Helper()
	res := Detect(collection(l), collection(r))
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(res.Conflicts))
	}
	return res.Conflicts[0]
}

func TestResolvePartition(t *testing.T) {
	textConflict := detectOne(t, testTask("1", "Buy milk", 100), testTask("1", "Buy bread", 200))

	l := testTask("2", "same", 100)
	l.Priority = 2
	r := testTask("2", "same", 200)
	r.Priority = 4
	priorityConflict := detectOne(t, l, r)

	res := Resolve([]Conflict{textConflict, priorityConflict})
	if len(res.Resolved)+len(res.NeedsUserInput) != 2 {
		t.Fatalf("resolution must partition the conflicts, got %d+%d",
			len(res.Resolved), len(res.NeedsUserInput))
	}
	if len(res.NeedsUserInput) != 1 || res.NeedsUserInput[0].ID != "1" {
		t.Error("text conflict must always need user input")
	}
	if len(res.Resolved) != 1 || res.Resolved[0].Merged.ID != "2" {
		t.Error("non-text conflict should auto-resolve")
	}
}

func TestResolveTagUnion(t *testing.T) {
	l := testTask("1", "same", 100)
	l.Tags = []string{"a", "b"}
	r := testTask("1", "same", 200)
	r.Tags = []string{"b", "c"}

	res := Resolve([]Conflict{detectOne(t, l, r)})
	if len(res.Resolved) != 1 {
		t.Fatalf("expected auto-resolution, needs user input: %d", len(res.NeedsUserInput))
	}
	merged := res.Resolved[0].Merged
	if !task.FieldsEqual(merged.Tags, []string{"a", "b", "c"}) {
		t.Errorf("expected union [a b c], got %v", merged.Tags)
	}
	if merged.LastModified != 200 {
		t.Errorf("expected lastModified 200, got %d", merged.LastModified)
	}
}

func TestResolveTagUnionIdempotent(t *testing.T) {
	l := testTask("1", "same", 100)
	l.Tags = []string{"a", "b"}
	r := testTask("1", "same", 200)
	r.Tags = []string{"b", "c"}

	first := Resolve([]Conflict{detectOne(t, l, r)}).Resolved[0].Merged

	// resolve(resolve(A,B), B) = resolve(A,B): the merged side no longer
	// conflicts with B at all.
	res := Detect(collection(first), collection(r))
	if len(res.Conflicts) != 0 {
		t.Fatalf("re-resolving against the same remote should be conflict-free")
	}
}

func TestResolveOrderAverage(t *testing.T) {
	l := testTask("1", "same", 100)
	l.Order = 10
	r := testTask("1", "same", 100)
	r.Order = 20

	res := Resolve([]Conflict{detectOne(t, l, r)})
	if res.Resolved[0].Merged.Order != 15 {
		t.Errorf("expected floor((10+20)/2)=15, got %d", res.Resolved[0].Merged.Order)
	}
}

func TestResolvePriorityLatestWinsTie(t *testing.T) {
	l := testTask("1", "same", 100)
	l.Priority = 3
	r := testTask("1", "same", 100)
	r.Priority = 5

	res := Resolve([]Conflict{detectOne(t, l, r)})
	if res.Resolved[0].Merged.Priority != 5 {
		t.Errorf("tie should take the remote side, got priority %d", res.Resolved[0].Merged.Priority)
	}
}

func TestResolveCompletedLatestWins(t *testing.T) {
	l := testTask("1", "same", 300)
	l.Completed = true
	r := testTask("1", "same", 200)

	res := Resolve([]Conflict{detectOne(t, l, r)})
	if !res.Resolved[0].Merged.Completed {
		t.Error("expected the newer local completed=true to win")
	}
}

func TestResolveStartsFromLocal(t *testing.T) {
	l := testTask("1", "same", 100)
	l.Priority = 2
	l.Metadata = map[string]any{"device": "laptop"}
	r := testTask("1", "same", 200)
	r.Priority = 4

	res := Resolve([]Conflict{detectOne(t, l, r)})
	merged := res.Resolved[0].Merged
	if merged.Priority != 4 {
		t.Errorf("expected latest-wins priority 4, got %d", merged.Priority)
	}
	if merged.Metadata["device"] != "laptop" {
		t.Error("merged record should start from the local side's non-participating fields")
	}
}

func TestTimestampStrategyTakesWholeRecord(t *testing.T) {
	l := testTask("1", "local text", 100)
	l.Priority = 5
	r := testTask("1", "remote text", 200)
	r.Priority = 1

	res := ResolveWithStrategy([]Conflict{detectOne(t, l, r)}, StrategyTimestampBased)
	if len(res.Resolved) != 1 {
		t.Fatal("timestamp strategy resolves everything, including text")
	}
	merged := res.Resolved[0].Merged
	if merged.Text != "remote text" || merged.Priority != 1 {
		t.Errorf("expected the whole newer remote record, got %+v", merged)
	}
}

func TestMergeDropsTombstonedRemoteAdds(t *testing.T) {
	local := collection(testTask("1", "keep", 100))
	remote := collection(testTask("1", "keep", 100), testTask("2", "deleted here", 100))

	merged, outcome := Merge(local, remote, map[string]bool{"2": true})
	if !outcome.Clean() {
		t.Fatal("expected clean merge")
	}
	if _, ok := merged["2"]; ok {
		t.Error("tombstoned remote record must not be re-added")
	}
	if len(merged) != 1 {
		t.Errorf("expected 1 record, got %d", len(merged))
	}
}

func TestTwoDeviceConvergence(t *testing.T) {
	// Shared starting collection of 10 records.
	base := make([]*task.Task, 0, 10)
	for i := 0; i < 10; i++ {
		tk := testTask(string(rune('a'+i)), "item", 100)
		tk.Order = i
		base = append(base, tk)
	}

	deviceA := task.FromSlice(base).Clone()
	deviceB := task.FromSlice(base).Clone()

	// Device A completes three records; device B bumps three other
	// records' priorities.
	for _, id := range []string{"a", "b", "c"} {
		deviceA[id].Completed = true
		deviceA[id].LastModified = 200
	}
	for _, id := range []string{"d", "e", "f"} {
		deviceB[id].Priority = 5
		deviceB[id].LastModified = 300
	}

	mergedA, outcomeA := Merge(deviceA, deviceB, nil)
	mergedB, outcomeB := Merge(deviceB, deviceA, nil)

	if !outcomeA.Clean() || !outcomeB.Clean() {
		t.Fatalf("expected no user-input conflicts, got %d and %d",
			len(outcomeA.NeedsUserInput), len(outcomeB.NeedsUserInput))
	}
	if outcomeA.AutoResolved+outcomeA.Updated != 10 {
		t.Errorf("expected all 10 ids reconciled on A, got %d resolved + %d updated",
			outcomeA.AutoResolved, outcomeA.Updated)
	}
	if task.Fingerprint(mergedA) != task.Fingerprint(mergedB) {
		t.Error("both devices must converge to the identical merged collection")
	}
	if !mergedA["a"].Completed || mergedA["d"].Priority != 5 {
		t.Error("merged collection lost an edit")
	}
}

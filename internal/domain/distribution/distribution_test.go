package distribution

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/record"
)

func makeTasks(n int) []record.Task {
	tasks := make([]record.Task, n)
	for i := range tasks {
		tasks[i] = record.Task{
			FirstName: fmt.Sprintf("name-%d", i),
			Phone:     fmt.Sprintf("555-%04d", i),
			Notes:     fmt.Sprintf("note %d", i),
		}
	}
	return tasks
}

func makeAgents(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("agent-%d", i)
	}
	return ids
}

func TestDistributeFiveRowsTwoAgents(t *testing.T) {
	tasks := makeTasks(5)
	snap, err := Distribute(tasks, []string{"A", "B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected 2 distributions, got %d", len(snap))
	}

	if snap[0].AgentID != "A" || len(snap[0].Tasks) != 3 {
		t.Fatalf("expected A with 3 tasks, got %s with %d", snap[0].AgentID, len(snap[0].Tasks))
	}
	for i, row := range []int{0, 2, 4} {
		if snap[0].Tasks[i] != tasks[row] {
			t.Errorf("A task %d = %+v, want row %d", i, snap[0].Tasks[i], row)
		}
	}

	if snap[1].AgentID != "B" || len(snap[1].Tasks) != 2 {
		t.Fatalf("expected B with 2 tasks, got %s with %d", snap[1].AgentID, len(snap[1].Tasks))
	}
	for i, row := range []int{1, 3} {
		if snap[1].Tasks[i] != tasks[row] {
			t.Errorf("B task %d = %+v, want row %d", i, snap[1].Tasks[i], row)
		}
	}
}

func TestDistributeNoAgents(t *testing.T) {
	_, err := Distribute(makeTasks(3), nil)
	if !errors.Is(err, domain.ErrNoAgentsAvailable) {
		t.Fatalf("expected ErrNoAgentsAvailable, got %v", err)
	}

	_, err = Distribute(nil, []string{})
	if !errors.Is(err, domain.ErrNoAgentsAvailable) {
		t.Fatalf("expected ErrNoAgentsAvailable for empty roster and no tasks, got %v", err)
	}
}

func TestDistributeNoTasksYieldsEmptySnapshot(t *testing.T) {
	snap, err := Distribute(nil, []string{"A", "B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %d distributions", len(snap))
	}
}

func TestDistributeOmitsIdleAgents(t *testing.T) {
	snap, err := Distribute(makeTasks(2), makeAgents(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected 2 distributions, got %d", len(snap))
	}
	if snap[0].AgentID != "agent-0" || snap[1].AgentID != "agent-1" {
		t.Fatalf("unexpected agents: %s, %s", snap[0].AgentID, snap[1].AgentID)
	}
}

func TestDistributeBalanceAndCoverage(t *testing.T) {
	for a := 1; a <= 7; a++ {
		for n := 0; n <= 40; n++ {
			tasks := makeTasks(n)
			snap, err := Distribute(tasks, makeAgents(a))
			if err != nil {
				t.Fatalf("a=%d n=%d: unexpected error: %v", a, n, err)
			}

			lo, hi := n/a, (n+a-1)/a
			seen := make(map[record.Task]int, n)
			for _, d := range snap {
				if c := len(d.Tasks); c < lo || c > hi || c == 0 {
					t.Fatalf("a=%d n=%d: agent %s got %d tasks, want %d..%d", a, n, d.AgentID, c, lo, hi)
				}
				for _, task := range d.Tasks {
					seen[task]++
				}
			}
			if snap.TaskCount() != n {
				t.Fatalf("a=%d n=%d: snapshot holds %d tasks", a, n, snap.TaskCount())
			}
			for _, task := range tasks {
				if seen[task] != 1 {
					t.Fatalf("a=%d n=%d: task %+v assigned %d times", a, n, task, seen[task])
				}
			}
			if want := min(a, n); len(snap) != want {
				t.Fatalf("a=%d n=%d: expected %d distributions, got %d", a, n, want, len(snap))
			}
		}
	}
}

func TestDistributePreservesInputOrder(t *testing.T) {
	tasks := makeTasks(23)
	index := make(map[record.Task]int, len(tasks))
	for i, task := range tasks {
		index[task] = i
	}

	snap, err := Distribute(tasks, makeAgents(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range snap {
		prev := -1
		for _, task := range d.Tasks {
			if index[task] <= prev {
				t.Fatalf("agent %s: task order is not monotonic in input order", d.AgentID)
			}
			prev = index[task]
		}
	}
}

func TestDistributeDeterministic(t *testing.T) {
	tasks := makeTasks(17)
	agents := makeAgents(3)

	first, err := Distribute(tasks, agents)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Distribute(tasks, agents)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("snapshots differ:\n%s\n%s", a, b)
	}
}

package engine

import (
	"testing"
	"time"
)

func TestPositionAdjacent(t *testing.T) {
	p := Position{5, 5}
	for _, o := range []Position{{4, 5}, {6, 5}, {5, 4}, {5, 6}} {
		if !p.Adjacent(o) {
			t.Errorf("%v should be adjacent to %v", o, p)
		}
	}
	for _, o := range []Position{{5, 5}, {6, 6}, {7, 5}} {
		if p.Adjacent(o) {
			t.Errorf("%v should not be adjacent to %v", o, p)
		}
	}
}

func TestRectContains(t *testing.T) {
	r := Rect{X: 2, Y: 3, W: 4, H: 2}
	if !r.Contains(Position{2, 3}) || !r.Contains(Position{5, 4}) {
		t.Errorf("corners inside the rect should be contained")
	}
	if r.Contains(Position{6, 3}) || r.Contains(Position{2, 5}) {
		t.Errorf("far edges are exclusive")
	}
}

func TestTaskProgress(t *testing.T) {
	task := NewTask(TaskPool[0])
	p := &Player{Tasks: []Task{task}}

	if p.ActiveTask() != nil {
		t.Fatalf("new task should not be active")
	}
	now := time.Now()
	p.Tasks[0].StartedAt = &now
	if got := p.ActiveTask(); got == nil || got.ID != task.ID {
		t.Fatalf("ActiveTask = %v, want %s", got, task.ID)
	}
	p.Tasks[0].Completed = true
	if p.ActiveTask() != nil {
		t.Errorf("completed task should not be active")
	}
	if p.TaskByID(task.ID) == nil || p.TaskByID("nope") != nil {
		t.Errorf("TaskByID lookup mismatch")
	}
}

func TestDistanceAndVisible(t *testing.T) {
	a, b := Position{0, 0}, Position{3, 4}
	if d := Distance(a, b); d != 5 {
		t.Errorf("Distance = %v, want 5", d)
	}
	if !Visible(a, b, 5) {
		t.Errorf("radius is inclusive")
	}
	if Visible(a, b, 4.99) {
		t.Errorf("target beyond radius should be hidden")
	}
}

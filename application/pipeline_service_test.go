package application

import (
	"context"
	"errors"
	"testing"
)

func TestGenerateServiceRun(t *testing.T) {
	store := &memoryStore{}
	if err := NewGenerateService(fixedGenerator{}, store).Run(context.Background(), 5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.records) != 5 {
		t.Errorf("records written = %d", len(store.records))
	}
	if err := NewGenerateService(fixedGenerator{}, store).Run(context.Background(), -1); err == nil {
		t.Error("negative count accepted")
	}
}

func TestHarvestServiceWritesRecordsOfFailedTasks(t *testing.T) {
	store := &memoryStore{}
	h := &fakeHarvester{failing: map[string]bool{"two": true}}

	err := NewHarvestService(h, store).Run(context.Background())
	if err == nil {
		t.Fatal("expected task failure to be reported")
	}
	if len(store.records) != 2 {
		t.Errorf("records written = %d, want 2", len(store.records))
	}
}

func TestHarvestServiceWriteError(t *testing.T) {
	boom := errors.New("boom")
	err := NewHarvestService(&fakeHarvester{}, &memoryStore{err: boom}).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestMultiRecordWriter(t *testing.T) {
	a, b := &memoryStore{}, &memoryStore{}
	w := MultiRecordWriter(a, b)
	if err := w.WriteRecords(context.Background(), fixedGenerator{}.Generate(3)); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
	if len(a.records) != 3 || len(b.records) != 3 {
		t.Errorf("writers got %d and %d records", len(a.records), len(b.records))
	}

	boom := errors.New("boom")
	c := &memoryStore{}
	w = MultiRecordWriter(&memoryStore{err: boom}, c)
	if err := w.WriteRecords(context.Background(), fixedGenerator{}.Generate(1)); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if len(c.records) != 0 {
		t.Error("writing must stop at the first error")
	}
}

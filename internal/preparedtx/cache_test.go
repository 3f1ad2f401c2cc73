package preparedtx

import (
	"testing"
	"time"

	"memecoin-agent/internal/model"
)

func TestInsertReplacesPriorEntry(t *testing.T) {
	c := NewCache()
	c.Insert(model.PreparedTX{TokenMint: "mintA", TxBytes: []byte{1}, CreatedAt: time.Now()})
	c.Insert(model.PreparedTX{TokenMint: "mintA", TxBytes: []byte{2}, CreatedAt: time.Now()})

	entry, ok := c.Get("mintA")
	if !ok {
		t.Fatal("expected entry to be present")
	}
	if len(entry.TxBytes) != 1 || entry.TxBytes[0] != 2 {
		t.Errorf("TxBytes = %v, want [2] (the newest insert)", entry.TxBytes)
	}
}

func TestGetPurgesExpiredEntryLazily(t *testing.T) {
	c := NewCache()
	c.Insert(model.PreparedTX{TokenMint: "mintA", TxBytes: []byte{1}, CreatedAt: time.Now().Add(-TTL - time.Second)})

	if _, ok := c.Get("mintA"); ok {
		t.Fatal("expected expired entry to be absent")
	}
	if _, ok := c.entries["mintA"]; ok {
		t.Error("expected lazy purge to have removed the entry from the map")
	}
}

func TestRemoveIsUnconditional(t *testing.T) {
	c := NewCache()
	c.Insert(model.PreparedTX{TokenMint: "mintA", TxBytes: []byte{1}, CreatedAt: time.Now()})
	c.Remove("mintA")

	if _, ok := c.Get("mintA"); ok {
		t.Fatal("expected entry to be gone after Remove")
	}
}

func TestPurgeExpiredSweepsOnlyStaleEntries(t *testing.T) {
	c := NewCache()
	c.Insert(model.PreparedTX{TokenMint: "fresh", TxBytes: []byte{1}, CreatedAt: time.Now()})
	c.Insert(model.PreparedTX{TokenMint: "stale", TxBytes: []byte{2}, CreatedAt: time.Now().Add(-TTL - time.Second)})

	purged := c.PurgeExpired()
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("expected the fresh entry to survive the sweep")
	}
}

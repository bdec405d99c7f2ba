package intentlog

import (
	"errors"
	"testing"
	"time"

	"github.com/syndtr/goleveldb/leveldb/storage"
)

func openMem(t *testing.T) *Log {
	t.Helper()
	l, err := OpenStorage(storage.NewMemStorage(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLifecycle(t *testing.T) {
	l := openMem(t)
	clock := time.Unix(1700000000, 0)
	l.now = func() time.Time { return clock }

	in, err := l.Begin(Intent{Operation: "append_log", Kind: "user_log", Subject: "0xuser", Sequence: 3, LedgerAddress: "0xacct"})
	if err != nil {
		t.Fatal(err)
	}
	if in.ID == "" || in.Status != StatusPending {
		t.Fatalf("unexpected intent after Begin: %+v", in)
	}

	clock = clock.Add(time.Second)
	if err := l.MarkAttested(in.ID, "tx1"); err != nil {
		t.Fatal(err)
	}
	got, ok, err := l.Get(in.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusAttested || got.TxID != "tx1" || !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("unexpected intent after MarkAttested: %+v", got)
	}

	if err := l.RecordFailure(in.ID, errors.New("index down")); err != nil {
		t.Fatal(err)
	}
	got, _, _ = l.Get(in.ID)
	if got.Attempts != 1 || got.LastError != "index down" {
		t.Errorf("failure not recorded: %+v", got)
	}

	if err := l.Complete(in.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := l.Get(in.ID); ok {
		t.Error("intent still present after Complete")
	}
	if err := l.MarkAttested(in.ID, "tx2"); err == nil {
		t.Error("expected error updating a completed intent")
	}
}

func TestListOrdersByCreation(t *testing.T) {
	l := openMem(t)
	clock := time.Unix(1700000000, 0)
	l.now = func() time.Time { return clock }

	var ids []string
	for i := 0; i < 3; i++ {
		in, err := l.Begin(Intent{Operation: "create_consultation", Subject: "0xpatient", Sequence: uint64(i)})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, in.ID)
		clock = clock.Add(time.Minute)
	}
	if err := l.Abandon(ids[1]); err != nil {
		t.Fatal(err)
	}

	list, err := l.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != ids[0] || list[1].ID != ids[2] {
		t.Fatalf("List = %+v; want %s then %s", list, ids[0], ids[2])
	}
}

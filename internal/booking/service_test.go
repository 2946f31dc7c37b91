package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/storage"
	"github.com/slotbook/backend/internal/storage/models"
)

type recordingNotifier struct {
	mu      sync.Mutex
	actions []string
	levels  []string
}

func (n *recordingNotifier) BookingTypeChanged(userID, action string, bt models.BookingType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actions = append(n.actions, action)
}

func (n *recordingNotifier) Notify(userID, level, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levels = append(n.levels, level)
}

var (
	alice = auth.Identity{UserID: "user-alice", Email: "alice@example.com"}
	bob   = auth.Identity{UserID: "user-bob", Email: "bob@example.com"}
)

func newTestService(t *testing.T) (*Service, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	return NewService(storage.NewMemoryBookingTypes(), notifier), notifier
}

func TestCreateAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, notifier := newTestService(t)

	created, err := svc.Create(ctx, alice, Input{Name: "30 Minute Meeting", Slug: "30-minute-meeting", Duration: 30})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}
	if created.OwnerID != alice.UserID {
		t.Errorf("owner = %q, want %q", created.OwnerID, alice.UserID)
	}

	_, err = svc.Create(ctx, alice, Input{Name: "Another", Slug: "30-minute-meeting", Duration: 15})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("duplicate slug: got %v, want ErrSlugTaken", err)
	}

	items, err := svc.List(ctx, alice)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 booking type, got %d", len(items))
	}
	if items[0].Name != "30 Minute Meeting" {
		t.Errorf("unexpected item %q", items[0].Name)
	}

	if len(notifier.actions) != 1 || notifier.actions[0] != ActionCreated {
		t.Errorf("notifier actions = %v, want [created]", notifier.actions)
	}
}

func TestSlugIsScopedPerOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.Create(ctx, alice, Input{Name: "Call", Slug: "call"}); err != nil {
		t.Fatalf("alice Create: %v", err)
	}
	if _, err := svc.Create(ctx, bob, Input{Name: "Call", Slug: "call"}); err != nil {
		t.Fatalf("bob Create with same slug: %v", err)
	}

	items, _ := svc.List(ctx, bob)
	if len(items) != 1 || items[0].OwnerID != bob.UserID {
		t.Errorf("bob sees %+v", items)
	}
}

func TestAnonymousCaller(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	items, err := svc.List(ctx, auth.Identity{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("anonymous list = %#v, want empty non-nil slice", items)
	}

	_, err = svc.Create(ctx, auth.Identity{}, Input{Name: "x", Slug: "x"})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("anonymous create: got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	for _, slug := range []string{"first", "second", "third"} {
		if _, err := svc.Create(ctx, alice, Input{Name: slug, Slug: slug}); err != nil {
			t.Fatalf("Create %s: %v", slug, err)
		}
	}
	items, _ := svc.List(ctx, alice)
	got := []string{items[0].Slug, items[1].Slug, items[2].Slug}
	want := []string{"third", "second", "first"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestToggleOnlyChangesActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, err := svc.Create(ctx, alice, Input{
		Name:        "Consult",
		Slug:        "consult",
		Description: strPtr("Initial consult"),
		Duration:    45,
		Location:    strPtr("Zoom"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	toggled, err := svc.Toggle(ctx, alice, created.ID, nil)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if toggled.Active {
		t.Error("expected active=false after flipping")
	}

	got, err := svc.Get(ctx, alice, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Active {
		t.Error("stored record still active")
	}
	if got.Name != created.Name || got.Slug != created.Slug || got.Duration != created.Duration ||
		*got.Description != *created.Description || *got.Location != *created.Location {
		t.Errorf("toggle changed other fields: before %+v after %+v", created, got)
	}
	if !got.UpdatedAt.Equal(created.UpdatedAt) {
		t.Errorf("updated_at changed: %v -> %v", created.UpdatedAt, got.UpdatedAt)
	}

	toggled, err = svc.Toggle(ctx, alice, created.ID, boolPtr(true))
	if err != nil {
		t.Fatalf("Toggle explicit: %v", err)
	}
	if !toggled.Active {
		t.Error("expected active=true after explicit set")
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	a, _ := svc.Create(ctx, alice, Input{Name: "A", Slug: "a"})
	b, _ := svc.Create(ctx, alice, Input{Name: "B", Slug: "b"})

	// Keeping its own slug is allowed.
	updated, err := svc.Update(ctx, alice, a.ID, Input{Name: "A2", Slug: "a", Duration: 60})
	if err != nil {
		t.Fatalf("Update same slug: %v", err)
	}
	if updated.Name != "A2" || updated.Duration != 60 {
		t.Errorf("unexpected update result %+v", updated)
	}

	if _, err := svc.Update(ctx, alice, b.ID, Input{Name: "B", Slug: "a"}); !errors.Is(err, ErrSlugTaken) {
		t.Errorf("taking another record's slug: got %v", err)
	}

	if _, err := svc.Update(ctx, bob, a.ID, Input{Name: "stolen", Slug: "a"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update by non-owner: got %v", err)
	}

	if _, err := svc.Update(ctx, alice, a.ID, Input{Name: "A", Slug: "Bad Slug"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestUpdateKeepsActiveWhenOmitted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, _ := svc.Create(ctx, alice, Input{Name: "A", Slug: "a", Active: boolPtr(false)})
	updated, err := svc.Update(ctx, alice, created.ID, Input{Name: "A", Slug: "a"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Active {
		t.Error("omitted active should keep stored value")
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, notifier := newTestService(t)

	created, _ := svc.Create(ctx, alice, Input{Name: "A", Slug: "a"})

	if err := svc.Delete(ctx, bob, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete by non-owner: got %v", err)
	}
	if err := svc.Delete(ctx, alice, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, alice, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: got %v", err)
	}

	last := notifier.actions[len(notifier.actions)-1]
	if last != ActionDeleted {
		t.Errorf("last action = %q, want deleted", last)
	}
}

func TestSlugAvailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, _ := svc.Create(ctx, alice, Input{Name: "A", Slug: "taken"})

	tests := []struct {
		slug, exclude string
		want          bool
	}{
		{"free", "", true},
		{"taken", "", false},
		{"taken", created.ID, true},
		{"Not Valid", "", false},
	}
	for _, tt := range tests {
		got, err := svc.SlugAvailable(ctx, alice, tt.slug, tt.exclude)
		if err != nil {
			t.Fatalf("SlugAvailable(%q): %v", tt.slug, err)
		}
		if got != tt.want {
			t.Errorf("SlugAvailable(%q, %q) = %v, want %v", tt.slug, tt.exclude, got, tt.want)
		}
	}
}

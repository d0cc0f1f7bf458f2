package cmdtrigger

import (
	"context"
	"sync"
	"testing"

	"github.com/kataras/cmdtrigger/desc"
)

func TestMemCatalogInsertUniqueKey(t *testing.T) {
	ctx := context.Background()
	catalog := NewMemCatalog()

	def := desc.Trigger{
		Command:   "CREATE TABLE",
		Name:      "audit",
		Event:     desc.EventCommandStart,
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
		Enabled:   desc.Enabled,
	}

	if _, err := catalog.Insert(ctx, &def); err != nil {
		t.Fatal(err)
	}

	// The catalog owns the (command, name) unique key, same as the SQL
	// backends enforce through their unique indexes.
	if _, err := catalog.Insert(ctx, &def); !IsErrDuplicateName(err) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// The same name under a different command class is a different key.
	other := def
	other.Command = "DROP TABLE"
	if _, err := catalog.Insert(ctx, &other); err != nil {
		t.Fatal(err)
	}
}

func TestMemCatalogInsertUniqueKeyConcurrent(t *testing.T) {
	ctx := context.Background()
	catalog := NewMemCatalog()

	const attempts = 16

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		inserted   int
		duplicates int
	)

	// Racing registrations of the same key must persist exactly one row.
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			def := desc.Trigger{
				Command:   "ALTER TABLE",
				Name:      "audit",
				Event:     desc.EventCommandStart,
				Phase:     desc.PhaseBefore,
				Procedure: boolProc("fn"),
				Enabled:   desc.Enabled,
			}

			_, err := catalog.Insert(ctx, &def)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case IsErrDuplicateName(err):
				duplicates++
			default:
				t.Errorf("unexpected insert error: %v", err)
			}
		}()
	}
	wg.Wait()

	if inserted != 1 || duplicates != attempts-1 {
		t.Fatalf("expected 1 insert and %d duplicates, got %d and %d", attempts-1, inserted, duplicates)
	}

	rows, err := catalog.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 1 {
		t.Fatalf("expected a single persisted row, got %d", len(rows))
	}
}

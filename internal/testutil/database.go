// Package testutil provides test databases seeded with reference data for tally's
// import and reconciliation tests.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
)

// TestDB is a migrated in-memory database plus the reference rows seeded into it.
type TestDB struct {
	Storage  service.Storage
	t        *testing.T
	Projects []model.Project
	Payees   []model.Payee
	Clients  []model.Client
}

// Seed lists the reference data written before a test runs.
type Seed struct {
	Projects []model.Project
	Payees   []model.Payee
	Clients  []model.Client
	Mappings []model.AccountMapping
}

// SetupTestDB creates a new in-memory test database and writes seed into it.
// Cleanup is registered on t.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.StandardSeed())
//	project := db.MustProject("2024-001")
func SetupTestDB(t *testing.T, seed Seed) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db := &TestDB{Storage: store, t: t}
	for _, p := range seed.Projects {
		if err := store.CreateProject(ctx, &p); err != nil {
			t.Fatalf("failed to seed project %q: %v", p.Number, err)
		}
		db.Projects = append(db.Projects, p)
	}
	for _, p := range seed.Payees {
		if err := store.CreatePayee(ctx, &p); err != nil {
			t.Fatalf("failed to seed payee %q: %v", p.Name, err)
		}
		db.Payees = append(db.Payees, p)
	}
	for _, c := range seed.Clients {
		if err := store.CreateClient(ctx, &c); err != nil {
			t.Fatalf("failed to seed client %q: %v", c.Name, err)
		}
		db.Clients = append(db.Clients, c)
	}
	for _, m := range seed.Mappings {
		if err := store.UpsertAccountMapping(ctx, &m); err != nil {
			t.Fatalf("failed to seed mapping %q: %v", m.QBAccountFullPath, err)
		}
	}
	return db
}

// MustProject returns the seeded project with the given number or fails the test.
func (db *TestDB) MustProject(number string) model.Project {
	db.t.Helper()
	for _, p := range db.Projects {
		if p.Number == number {
			return p
		}
	}
	db.t.Fatalf("project %q not seeded", number)
	return model.Project{}
}

// MustPayee returns the seeded payee with the given name or fails the test.
func (db *TestDB) MustPayee(name string) model.Payee {
	db.t.Helper()
	for _, p := range db.Payees {
		if p.Name == name {
			return p
		}
	}
	db.t.Fatalf("payee %q not seeded", name)
	return model.Payee{}
}

// MustClient returns the seeded client with the given name or fails the test.
func (db *TestDB) MustClient(name string) model.Client {
	db.t.Helper()
	for _, c := range db.Clients {
		if c.Name == name {
			return c
		}
	}
	db.t.Fatalf("client %q not seeded", name)
	return model.Client{}
}

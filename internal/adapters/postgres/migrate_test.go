package postgres

import "testing"

func TestMigrateURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"postgres://u:p@localhost:5432/db?sslmode=disable":   "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"postgresql://u:p@localhost:5432/db?sslmode=disable": "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"pgx5://already":                                      "pgx5://already",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestMigrate_UnknownDirection(t *testing.T) {
	t.Parallel()

	if _, err := Migrate("pgx5://localhost:1/none", "sideways"); err == nil {
		t.Fatalf("Migrate(sideways) err=nil, want error")
	}
}

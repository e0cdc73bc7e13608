package repository

import (
	"strings"
	"testing"

	"github.com/hitoshi/ministers/internal/catalog"
)

// PostgresMinisterRepoはMinisterRepositoryインターフェースを満たすことを検証
func TestPostgresMinisterRepo_ImplementsInterface(t *testing.T) {
	var _ MinisterRepository = (*PostgresMinisterRepo)(nil)
}

// PostgresRatingRepoはRatingRepositoryインターフェースを満たすことを検証
func TestPostgresRatingRepo_ImplementsInterface(t *testing.T) {
	var _ RatingRepository = (*PostgresRatingRepo)(nil)
}

// PostgresAdminRepoとPostgresWikiRepoがインターフェースを満たすことを検証
func TestPostgresAdminAndWikiRepo_ImplementsInterface(t *testing.T) {
	var _ AdminRepository = (*PostgresAdminRepo)(nil)
	var _ WikiRepository = (*PostgresWikiRepo)(nil)
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sharma", "Sharma"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildListQuery_WithSearch(t *testing.T) {
	req := catalog.Build("Sharma", catalog.SortNameAsc, 0)

	query, args, err := buildListQuery(req)
	if err != nil {
		t.Fatalf("buildListQuery returned error: %v", err)
	}

	for _, fragment := range []string{
		`FROM "ministers_with_ratings"`,
		`"name" ILIKE`,
		`"party" ILIKE`,
		` OR `,
		`ORDER BY "name" ASC, "id" ASC`,
		`LIMIT`,
	} {
		if !strings.Contains(query, fragment) {
			t.Errorf("query %q does not contain %q", query, fragment)
		}
	}

	patterns := 0
	for _, a := range args {
		if s, ok := a.(string); ok && s == "%Sharma%" {
			patterns++
		}
	}
	if patterns != 2 {
		t.Errorf("expected search pattern bound twice, got %d (args=%v)", patterns, args)
	}
}

func TestBuildListQuery_NoSearchHasNoWhere(t *testing.T) {
	req := catalog.Build("", catalog.SortMostRated, 2)

	query, _, err := buildListQuery(req)
	if err != nil {
		t.Fatalf("buildListQuery returned error: %v", err)
	}

	if strings.Contains(query, "WHERE") {
		t.Errorf("query must not filter when search is empty: %q", query)
	}
	if !strings.Contains(query, `ORDER BY "rating_count" DESC, "id" ASC`) {
		t.Errorf("unexpected order clause: %q", query)
	}
	if !strings.Contains(query, "OFFSET") {
		t.Errorf("page 2 query must skip earlier rows: %q", query)
	}
}

func TestBuildCountQuery_SharesFilter(t *testing.T) {
	query, args, err := buildCountQuery(catalog.Build("bjp", catalog.SortNameAsc, 0))
	if err != nil {
		t.Fatalf("buildCountQuery returned error: %v", err)
	}
	if !strings.Contains(query, "COUNT(*)") {
		t.Errorf("count query %q does not count rows", query)
	}
	if !strings.Contains(query, "ILIKE") || len(args) != 2 {
		t.Errorf("count query must apply the same filter: %q args=%v", query, args)
	}

	query, args, err = buildCountQuery(catalog.Build("", catalog.SortNameAsc, 0))
	if err != nil {
		t.Fatalf("buildCountQuery returned error: %v", err)
	}
	if strings.Contains(query, "WHERE") || len(args) != 0 {
		t.Errorf("count query without search must not filter: %q args=%v", query, args)
	}
}

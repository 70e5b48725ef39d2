package model

import "testing"

func TestSaleNumber(t *testing.T) {
	tests := []struct {
		year int
		seq  int64
		want string
	}{
		{2026, 1, "S-2026-000001"},
		{2026, 42, "S-2026-000042"},
		{2027, 123456, "S-2027-123456"},
	}
	for _, tt := range tests {
		if got := SaleNumber(tt.year, tt.seq); got != tt.want {
			t.Errorf("SaleNumber(%d, %d) = %q, want %q", tt.year, tt.seq, got, tt.want)
		}
	}
	if got := RentalNumber(2026, 7); got != "R-2026-000007" {
		t.Errorf("RentalNumber(2026, 7) = %q, want %q", got, "R-2026-000007")
	}
}

func TestUserContext_CanAccess(t *testing.T) {
	public := Table{ID: "t1", Visibility: VisibilityPublic}
	shared := Table{ID: "t2", Visibility: VisibilityShared}
	private := Table{ID: "t3", Visibility: VisibilityPrivate}

	tests := []struct {
		name  string
		user  UserContext
		table Table
		want  bool
	}{
		{"unrestricted public", UserContext{}, public, true},
		{"unrestricted shared", UserContext{}, shared, true},
		{"unrestricted private", UserContext{}, private, false},
		{"listed private", UserContext{AllowedTables: []string{"t3"}}, private, true},
		{"unlisted public", UserContext{AllowedTables: []string{"t3"}}, public, false},
		{"empty list", UserContext{AllowedTables: []string{}}, public, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.CanAccess(tt.table); got != tt.want {
				t.Errorf("CanAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestColumn_HasOption(t *testing.T) {
	c := Column{Options: []string{"Small", "Medium", "Large"}}
	if !c.HasOption("medium") {
		t.Error("HasOption(medium) = false, want true")
	}
	if !c.HasOption(" LARGE ") {
		t.Error("HasOption( LARGE ) = false, want true")
	}
	if c.HasOption("XL") {
		t.Error("HasOption(XL) = true, want false")
	}
}

func TestFindColumn(t *testing.T) {
	cols := []Column{{Name: "SKU"}, {Name: "price"}}
	if c, ok := FindColumn(cols, "sku"); !ok || c.Name != "SKU" {
		t.Errorf("FindColumn(sku) = %+v, %v", c, ok)
	}
	if _, ok := FindColumn(cols, "qty"); ok {
		t.Error("FindColumn(qty) found a column, want none")
	}
}

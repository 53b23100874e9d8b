package types

import "testing"

func TestTableForRole(t *testing.T) {
	cases := []struct {
		roleID int
		table  string
	}{
		{RoleAdmin, TableAdmins},
		{RoleModerator, TableModers},
		{RoleTeacher, TableTeachers},
		{RoleStudent, TableUsers},
	}
	for _, tc := range cases {
		table, err := TableForRole(tc.roleID)
		if err != nil {
			t.Fatalf("TableForRole(%d): %v", tc.roleID, err)
		}
		if table != tc.table {
			t.Errorf("TableForRole(%d) = %q, want %q", tc.roleID, table, tc.table)
		}
	}

	if _, err := TableForRole(0); err == nil {
		t.Error("TableForRole(0) should fail")
	}
	if _, err := TableForRole(5); err == nil {
		t.Error("TableForRole(5) should fail")
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"teacher", RoleTeacher},
		{"Teacher", RoleTeacher},
		{"student", RoleStudent},
		{"user", RoleStudent},
		{"moderator", RoleModerator},
		{"moder", RoleModerator},
		{"admin", RoleAdmin},
		{"1", RoleAdmin},
		{"4", RoleStudent},
		{" 3 ", RoleTeacher},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseRole(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}

	for _, in := range []string{"", "root", "0", "5", "teacherx"} {
		if _, err := ParseRole(in); err == nil {
			t.Errorf("ParseRole(%q) should fail", in)
		}
	}
}

func TestValidTable(t *testing.T) {
	for _, table := range RoleTables {
		if !ValidTable(table) {
			t.Errorf("ValidTable(%q) = false", table)
		}
	}
	if ValidTable("accounts") {
		t.Error("ValidTable(\"accounts\") = true")
	}
	if ValidTable("") {
		t.Error("ValidTable(\"\") = true")
	}
}

package domain

import "testing"

func TestSortTeams_MixedHebrewAndLatin(t *testing.T) {
	t.Parallel()

	teams := []Team{
		{ID: "t1", Name: "Maccabi Tel Aviv"},
		{ID: "t2", Name: "הפועל ירושלים"},
		{ID: "t3", Name: "Hapoel Jerusalem"},
		{ID: "t4", Name: "בני הרצליה"},
	}

	SortTeams(teams)

	got := make([]string, len(teams))
	for i, t := range teams {
		got[i] = t.Name
	}

	// Hebrew-script names bucket before Latin ones, and each bucket is
	// collated alphabetically within its own script — unlike a plain
	// byte-order sort, which would interleave both scripts by raw
	// UTF-8 code point instead of respecting either alphabet.
	want := []string{"בני הרצליה", "הפועל ירושלים", "Hapoel Jerusalem", "Maccabi Tel Aviv"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortTeams() order = %v, want %v", got, want)
		}
	}
}

func TestSortTeams_StableOnEqualNames(t *testing.T) {
	t.Parallel()

	teams := []Team{
		{ID: "first", Name: "Maccabi"},
		{ID: "second", Name: "Maccabi"},
	}

	SortTeams(teams)

	if teams[0].ID != "first" || teams[1].ID != "second" {
		t.Fatalf("expected stable sort to preserve input order for equal names, got %+v", teams)
	}
}

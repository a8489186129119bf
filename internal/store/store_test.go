package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"

	"teamworks/api/internal/ids"
)

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "sentinel", err: ErrNotFound, want: true},
		{name: "wrapped sentinel", err: fmt.Errorf("load: %w", ErrNotFound), want: true},
		{name: "sql no rows", err: sql.ErrNoRows, want: true},
		{name: "mongo no documents", err: mongo.ErrNoDocuments, want: true},
		{name: "conflict", err: ErrConflict, want: false},
		{name: "other", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsNotFound(tc.err); got != tc.want {
				t.Fatalf("IsNotFound(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDependencyEncodingRoundTrip(t *testing.T) {
	encoded, err := encodeIDs(nil)
	if err != nil {
		t.Fatalf("encodeIDs(nil) error = %v", err)
	}
	if encoded != "[]" {
		t.Fatalf("encodeIDs(nil) = %q, want []", encoded)
	}

	a, b := ids.New(), ids.New()
	encoded, err = encodeIDs([]ids.ID{a, b})
	if err != nil {
		t.Fatalf("encodeIDs error = %v", err)
	}
	decoded, err := decodeIDs([]byte(encoded))
	if err != nil {
		t.Fatalf("decodeIDs error = %v", err)
	}
	if len(decoded) != 2 || decoded[0] != a || decoded[1] != b {
		t.Fatalf("decodeIDs = %v, want [%s %s]", decoded, a, b)
	}
	if got, err := decodeIDs(nil); err != nil || got == nil || len(got) != 0 {
		t.Fatalf("decodeIDs(nil) = %#v, %v, want empty non-nil slice", got, err)
	}
}

func TestDecodeIDsRejectsCorruptList(t *testing.T) {
	for _, raw := range []string{`{"a":1}`, `[1, 2]`, `["a"`} {
		if got, err := decodeIDs([]byte(raw)); err == nil {
			t.Fatalf("decodeIDs(%s) = %v, want error", raw, got)
		}
	}
}

func TestLikePatternMatchesLiterally(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "design", want: "%design%"},
		{in: " padded ", want: "%padded%"},
		{in: "_", want: `%\_%`},
		{in: "50%", want: `%50\%%`},
		{in: `a\b`, want: `%a\\b%`},
	}
	for _, tc := range cases {
		if got := likePattern(tc.in); got != tc.want {
			t.Fatalf("likePattern(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProjectHasMember(t *testing.T) {
	owner, member, stranger := ids.New(), ids.New(), ids.New()
	project := Project{OwnerID: owner, MemberIDs: []ids.ID{member}}
	if !project.HasMember(owner) || !project.HasMember(member) {
		t.Fatal("owner and member should both count as members")
	}
	if project.HasMember(stranger) {
		t.Fatal("stranger should not be a member")
	}
}

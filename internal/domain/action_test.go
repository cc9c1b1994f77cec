package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestAction_EncodeParse(t *testing.T) {
	cases := []struct {
		name string
		in   Action
		data string
	}{
		{"remove", RemovePostChannelAction("-100111"), "rm:-100111"},
		{"remove username", RemovePostChannelAction("@news"), "rm:@news"},
		{"page", ListPageAction(3), "pg:3"},
		{"send all", SendAllAction(), "sa"},
		{"send one", SendOneAction("-100111"), "s1:-100111"},
		{"cancel", CancelAction(), "cx"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.in.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got != tc.data {
				t.Fatalf("Encode = %q; want %q", got, tc.data)
			}
			back, err := ParseAction(got)
			if err != nil {
				t.Fatalf("ParseAction: %v", err)
			}
			if back != tc.in {
				t.Fatalf("ParseAction = %+v; want %+v", back, tc.in)
			}
		})
	}
}

func TestAction_EncodeErrors(t *testing.T) {
	bad := []Action{
		{},
		RemovePostChannelAction("  "),
		ListPageAction(0),
		SendOneAction(""),
		RemovePostChannelAction(strings.Repeat("9", MaxActionDataLen)),
	}
	for _, a := range bad {
		if _, err := a.Encode(); !errors.Is(err, ErrInvalidAction) {
			t.Fatalf("Encode(%+v) err = %v; want ErrInvalidAction", a, err)
		}
	}
}

func TestParseAction_LegacyRemovePrefix(t *testing.T) {
	a, err := ParseAction("remove_-100222")
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if a.Kind != ActionRemovePostChannel || a.ChannelID != "-100222" {
		t.Fatalf("unexpected action: %+v", a)
	}
}

func TestParseAction_Rejects(t *testing.T) {
	for _, data := range []string{"", "rm", "rm:", "pg:x", "pg:0", "zz:1", "remove_", "s1", "s1:", "sa:x", "cx:1"} {
		if _, err := ParseAction(data); !errors.Is(err, ErrInvalidAction) {
			t.Fatalf("ParseAction(%q) err = %v; want ErrInvalidAction", data, err)
		}
	}
}

func TestActionKind_String(t *testing.T) {
	if ActionUnknown.String() != "unknown" {
		t.Fatalf("ActionUnknown.String() = %q", ActionUnknown.String())
	}
}

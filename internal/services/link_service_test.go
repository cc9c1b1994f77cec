package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tbourn/go-referral-bot/internal/repo"
	"github.com/tbourn/go-referral-bot/internal/tokens"
)

func registerReq(t *testing.T, f *fixture, id string) {
	t.Helper()
	f.m.setRole(id, adminID, RoleAdministrator)
	if _, err := f.registry.RegisterRequestChannel(context.Background(), id, "Req "+id, adminID); err != nil {
		t.Fatalf("RegisterRequestChannel: %v", err)
	}
}

func TestGenerateLinks_ReqScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setOwner(t)
	f.addPost(t, "-1001", "Alpha")
	f.addPost(t, "-1002", "Beta")
	registerReq(t, f, "-100222")

	n, err := f.links.GenerateLinks(ctx, "-100222")
	if err != nil || n != 2 {
		t.Fatalf("GenerateLinks = %d, %v; want 2", n, err)
	}

	links, err := f.links.ResolveLinks(ctx, "-100222")
	if err != nil {
		t.Fatalf("ResolveLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	seen := map[string]bool{}
	for i, l := range links {
		if !strings.HasPrefix(l.URL, "https://t.me/ref_bot?start=") {
			t.Fatalf("unexpected URL %q", l.URL)
		}
		tok := strings.TrimPrefix(l.URL, "https://t.me/ref_bot?start=")
		if len(tok) < 16 || tok != l.Token || !tokens.Valid(tok) {
			t.Fatalf("bad token %q", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
		wantName := []string{"Alpha", "Beta"}[i]
		if l.PostChannelName != wantName || l.Title != wantName {
			t.Fatalf("link %d = %+v; want channel %s", i, l, wantName)
		}
	}
}

func TestGenerateLinks_RegenerationInvalidatesOldTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setOwner(t)
	f.addPost(t, "-1001", "Alpha")
	f.addPost(t, "-1002", "Beta")
	registerReq(t, f, "-100222")

	if _, err := f.links.GenerateLinks(ctx, "-100222"); err != nil {
		t.Fatal(err)
	}
	first, _ := f.links.ResolveLinks(ctx, "-100222")

	if _, err := f.links.GenerateLinks(ctx, "-100222"); err != nil {
		t.Fatal(err)
	}
	second, _ := f.links.ResolveLinks(ctx, "-100222")
	if len(second) != len(first) {
		t.Fatalf("link count changed: %d -> %d", len(first), len(second))
	}

	for _, old := range first {
		if _, err := f.links.ResolveToken(ctx, old.Token); !errors.Is(err, ErrLinkNotFound) {
			t.Fatalf("old token %q still resolves (err=%v)", old.Token, err)
		}
	}
	for _, cur := range second {
		l, err := f.links.ResolveToken(ctx, cur.Token)
		if err != nil {
			t.Fatalf("ResolveToken(%q): %v", cur.Token, err)
		}
		if l.RequestChannelID != "-100222" || l.PostChannelID != cur.PostChannelID {
			t.Fatalf("token resolves to wrong pair: %+v", l)
		}
		if l.RequestChannel.Name == "" || l.PostChannel.Name == "" {
			t.Fatalf("channels not loaded on resolved link: %+v", l)
		}
	}
}

func TestGenerateLinks_RepeatedGenerationsNeverReuseTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setOwner(t)
	for i := 1; i <= 10; i++ {
		f.addPost(t, fmt.Sprintf("-10010%02d", i), fmt.Sprintf("Post %d", i))
	}
	registerReq(t, f, "-100222")

	const generations = 100
	seen := make(map[string]int, generations*10)
	var superseded, last []string
	for g := 1; g <= generations; g++ {
		n, err := f.links.GenerateLinks(ctx, "-100222")
		if err != nil || n != 10 {
			t.Fatalf("generation %d: GenerateLinks = %d, %v; want 10", g, n, err)
		}
		stored, err := repo.ListReferralLinks(ctx, f.db, "-100222")
		if err != nil {
			t.Fatalf("generation %d: ListReferralLinks: %v", g, err)
		}
		if len(stored) != 10 {
			t.Fatalf("generation %d: %d stored links, want 10", g, len(stored))
		}
		superseded = append(superseded, last...)
		last = last[:0:0]
		for _, l := range stored {
			if prev, ok := seen[l.Token]; ok {
				t.Fatalf("generation %d reused token %q from generation %d", g, l.Token, prev)
			}
			seen[l.Token] = g
			last = append(last, l.Token)
		}
	}
	if len(seen) != generations*10 || len(superseded) != (generations-1)*10 {
		t.Fatalf("distinct tokens = %d, superseded = %d", len(seen), len(superseded))
	}

	for _, old := range superseded {
		if _, err := f.links.ResolveToken(ctx, old); !errors.Is(err, ErrLinkNotFound) {
			t.Fatalf("superseded token %q from generation %d still resolves (err=%v)", old, seen[old], err)
		}
	}
	for _, cur := range last {
		if _, err := f.links.ResolveToken(ctx, cur); err != nil {
			t.Fatalf("current token %q: %v", cur, err)
		}
	}
}

func TestGenerateLinks_NotRegistered(t *testing.T) {
	f := newFixture(t)
	if _, err := f.links.GenerateLinks(context.Background(), "-100222"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("err = %v; want ErrNotRegistered", err)
	}
}

func TestGenerateLinks_NoPostChannelsWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerReq(t, f, "-100222")

	n, err := f.links.GenerateLinks(ctx, "-100222")
	if err != nil || n != 0 {
		t.Fatalf("GenerateLinks = %d, %v; want 0, nil", n, err)
	}
	if total, _ := repo.CountReferralLinks(ctx, f.db); total != 0 {
		t.Fatalf("expected no rows, got %d", total)
	}
}

func TestGenerateLinks_TokenErrorLeavesPreviousSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setOwner(t)
	f.addPost(t, "-1001", "Alpha")
	registerReq(t, f, "-100222")

	if _, err := f.links.GenerateLinks(ctx, "-100222"); err != nil {
		t.Fatal(err)
	}
	before, _ := f.links.ResolveLinks(ctx, "-100222")

	f.links.Tokens = &seqTokens{err: errBoom}
	if _, err := f.links.GenerateLinks(ctx, "-100222"); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v; want errBoom", err)
	}
	after, _ := f.links.ResolveLinks(ctx, "-100222")
	if len(after) != 1 || after[0].Token != before[0].Token {
		t.Fatalf("previous set should be untouched: before=%+v after=%+v", before, after)
	}
}

// collidingTokens returns a fixed token for the first n calls.
type collidingTokens struct {
	fixed string
	n     int
	next  seqTokens
}

func (c *collidingTokens) Generate() (string, error) {
	if c.n > 0 {
		c.n--
		return c.fixed, nil
	}
	return c.next.Generate()
}

func TestGenerateLinks_RetriesOnTokenCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setOwner(t)
	f.addPost(t, "-1001", "Alpha")
	registerReq(t, f, "-100111")
	registerReq(t, f, "-100222")

	f.links.Tokens = &seqTokens{}
	if _, err := f.links.GenerateLinks(ctx, "-100111"); err != nil {
		t.Fatal(err)
	}
	taken, _ := f.links.ResolveLinks(ctx, "-100111")

	// The first attempt for -100222 reuses -100111's token.
	f.links.Tokens = &collidingTokens{fixed: taken[0].Token, n: 1, next: seqTokens{n: 100}}
	n, err := f.links.GenerateLinks(ctx, "-100222")
	if err != nil || n != 1 {
		t.Fatalf("GenerateLinks = %d, %v; want retry to succeed", n, err)
	}
	got, _ := f.links.ResolveLinks(ctx, "-100222")
	if got[0].Token == taken[0].Token {
		t.Fatalf("collision not retried")
	}
}

func TestResolveLinks_SnapshotAfterNewPostChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setOwner(t)
	f.addPost(t, "-1001", "Alpha")
	registerReq(t, f, "-100222")
	if _, err := f.links.GenerateLinks(ctx, "-100222"); err != nil {
		t.Fatal(err)
	}

	f.addPost(t, "-1002", "Beta")
	links, _ := f.links.ResolveLinks(ctx, "-100222")
	if len(links) != 1 {
		t.Fatalf("links should be a snapshot, got %d entries", len(links))
	}
	if _, err := f.links.ResolveLinkForPair(ctx, "-100222", "-1002"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("err = %v; want ErrLinkNotFound", err)
	}
	url, err := f.links.ResolveLinkForPair(ctx, "-100222", "-1001")
	if err != nil || url != links[0].URL {
		t.Fatalf("ResolveLinkForPair = %q, %v; want %q", url, err, links[0].URL)
	}
}

func TestResolveLinks_EmptyDoesNotNeedIdentity(t *testing.T) {
	f := newFixture(t)
	f.m.selfErr = errBoom
	links, err := f.links.ResolveLinks(context.Background(), "-100222")
	if err != nil || len(links) != 0 {
		t.Fatalf("ResolveLinks = %v, %v", links, err)
	}
}

func TestResolveToken_RejectsGarbage(t *testing.T) {
	f := newFixture(t)
	for _, tok := range []string{"", "   ", strings.Repeat("a", 65), "unknown"} {
		if _, err := f.links.ResolveToken(context.Background(), tok); !errors.Is(err, ErrLinkNotFound) {
			t.Fatalf("ResolveToken(%q) err = %v", tok, err)
		}
	}
}

func TestDeepLink(t *testing.T) {
	cases := map[[2]string]string{
		{"ref_bot", "abc"}:  "https://t.me/ref_bot?start=abc",
		{"@ref_bot", "abc"}: "https://t.me/ref_bot?start=abc",
	}
	for in, want := range cases {
		if got := DeepLink(in[0], in[1]); got != want {
			t.Fatalf("DeepLink(%q, %q) = %q; want %q", in[0], in[1], got, want)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mrnavastar/mclaunch/rpc"
	"github.com/mrnavastar/mclaunch/services"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
)

func TestParseValue(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{raw: `512`, want: `512`},
		{raw: `true`, want: `true`},
		{raw: `["-Xmx2G"]`, want: `["-Xmx2G"]`},
		{raw: `/usr/bin/java`, want: `"/usr/bin/java"`},
		{raw: ``, want: `""`},
	}
	for _, tc := range cases {
		if got := string(parseValue(tc.raw)); got != tc.want {
			t.Fatalf("parseValue(%q) got=%s want=%s", tc.raw, got, tc.want)
		}
	}
}

func TestCallDecodesDataAndRestoresErrors(t *testing.T) {
	router := rpc.NewRouter(util.NopLogger())
	router.Register("test.profile", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return util.Profile{Id: "id-1", Name: "Steve"}, nil
	})
	router.Register("test.missing", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, errs.New(errs.KindNotFound, "", "no such profile")
	})
	l := &launcher{router: router}

	var profile util.Profile
	if err := l.call(context.Background(), "test.profile", nil, &profile); err != nil {
		t.Fatalf("call: %v", err)
	}
	if profile.Name != "Steve" || profile.Id != "id-1" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	err := l.call(context.Background(), "test.missing", nil, nil)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound, got=%v", err)
	}
}

func TestLazySessionsSurfacesBuildError(t *testing.T) {
	builds := 0
	sessions := &lazySessions{build: func(ctx context.Context) (*services.SessionManager, error) {
		builds++
		return nil, errs.New(errs.KindServiceUnavailable, "", "keyring locked")
	}}

	if _, err := sessions.Lookup(context.Background(), "id"); !errs.Is(err, errs.KindServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got=%v", err)
	}
	if session := sessions.Session(context.Background()); session.SignedIn {
		t.Fatalf("expected signed-out view, got=%+v", session)
	}
	if err := sessions.Invalidate(context.Background()); err == nil {
		t.Fatal("expected invalidate to fail")
	}
	if builds != 1 {
		t.Fatalf("session manager built %d times, want 1", builds)
	}
}

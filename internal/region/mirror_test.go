package region

import (
	"context"
	"errors"
	"testing"
)

type stubDetector struct {
	code string
	err  error
}

func (s *stubDetector) CountryCode(ctx context.Context) (string, error) {
	return s.code, s.err
}

func TestSelectorAutoUsesGhproxyForCN(t *testing.T) {
	t.Parallel()

	selector := NewSelector(MirrorAuto, "neovim/neovim", &stubDetector{code: "CN"})
	base := selector.DownloadBase(context.Background())

	want := "https://ghproxy.net/https://github.com/neovim/neovim/releases/download"
	if base != want {
		t.Fatalf("unexpected base: %s", base)
	}
}

func TestSelectorAutoDefaultsToGitHub(t *testing.T) {
	t.Parallel()

	selector := NewSelector(MirrorAuto, "neovim/neovim", &stubDetector{code: "US"})
	base := selector.DownloadBase(context.Background())

	if base != "https://github.com/neovim/neovim/releases/download" {
		t.Fatalf("unexpected base: %s", base)
	}
}

func TestSelectorAutoFallsBackOnDetectionError(t *testing.T) {
	t.Parallel()

	selector := NewSelector(MirrorAuto, "neovim/neovim", &stubDetector{err: errors.New("offline")})
	base := selector.DownloadBase(context.Background())

	if base != "https://github.com/neovim/neovim/releases/download" {
		t.Fatalf("unexpected base: %s", base)
	}
}

func TestSelectorExplicitMirrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mirror string
		want   string
	}{
		{MirrorGitHub, "https://github.com/neovim/neovim/releases/download"},
		{MirrorGhproxy, "https://ghproxy.net/https://github.com/neovim/neovim/releases/download"},
		{"https://mirror.example.com/nvim/", "https://mirror.example.com/nvim"},
	}

	for _, tc := range cases {
		selector := NewSelector(tc.mirror, "neovim/neovim", nil)
		if base := selector.DownloadBase(context.Background()); base != tc.want {
			t.Fatalf("mirror %q: got %s want %s", tc.mirror, base, tc.want)
		}
	}
}

func TestSelectorCachesDecision(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{code: "CN"}
	selector := NewSelector(MirrorAuto, "neovim/neovim", detector)

	first := selector.DownloadBase(context.Background())
	detector.code = "US"
	second := selector.DownloadBase(context.Background())

	if first != second {
		t.Fatalf("decision not cached: %s then %s", first, second)
	}
}

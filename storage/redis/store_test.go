package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/storage"
	"github.com/aschepis/backscratcher/counsel/storage/storagetest"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), Config{Addr: mr.Addr(), Prefix: "test"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, _ := setupTestStore(t)
		return s
	})
}

func TestStore_KeysAreNamespaced(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	if err := s.SaveEpisode(ctx, episode.Episode{ID: "e1", UserID: "u1", Kind: episode.KindGeneral}); err != nil {
		t.Fatalf("SaveEpisode: %v", err)
	}
	if !mr.Exists("test:episodes:u1") {
		t.Errorf("expected key test:episodes:u1, have %v", mr.Keys())
	}
	if err := s.SaveEpisode(ctx, episode.Episode{ID: "e1", UserID: "u1"}); err == nil {
		t.Errorf("expected duplicate episode ID to fail")
	}
}

func TestOpen_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := Open(context.Background(), Config{Addr: addr}, zerolog.Nop()); err == nil {
		t.Errorf("expected connection error")
	}
}

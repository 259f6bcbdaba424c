package memstore

import (
	"testing"

	"github.com/aschepis/backscratcher/counsel/storage"
	"github.com/aschepis/backscratcher/counsel/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

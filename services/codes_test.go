package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepe999/PartyGames-BE/models"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func TestRandomCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Regexp(t, codePattern, randomCode())
	}
}

func TestAllocateReturnsUnusedCode(t *testing.T) {
	store := newFakeStore()
	alloc := NewCodeAllocator(store, zerolog.Nop())

	code, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, codePattern, code)
}

func TestAllocateExhaustion(t *testing.T) {
	alloc := NewCodeAllocator(saturatedStore{}, zerolog.Nop())

	_, err := alloc.Allocate(context.Background())
	assert.ErrorIs(t, err, ErrCodeExhausted)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestAllocateIgnoresFinishedRooms(t *testing.T) {
	store := newFakeStore()
	store.rooms["r1"] = &models.Room{ID: "r1", Code: "AAAA-AAAA", Status: models.RoomStatusFinished}
	alloc := NewCodeAllocator(store, zerolog.Nop())

	exists, err := store.RoomCodeExists(context.Background(), "AAAA-AAAA")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = alloc.Allocate(context.Background())
	assert.NoError(t, err)
}

// saturatedStore reports every code as taken.
type saturatedStore struct {
	Store
}

func (saturatedStore) RoomCodeExists(context.Context, string) (bool, error) {
	return true, nil
}

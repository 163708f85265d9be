package relstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUnlinker struct {
	updated int
	err     error
}

func (f *fakeUnlinker) UnlinkAPTFromAll(ctx context.Context, aptGroupID int64) (int, error) {
	return f.updated, f.err
}

func TestDeleteAPTGroup_ScrubsThenDeletes(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM apt_groups WHERE id = \\$1").WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := store.DeleteAPTGroup(context.Background(), 7, &fakeUnlinker{updated: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAPTGroup_SkipsDeleteWhenScrubFails(t *testing.T) {
	store, mock := newMockStore(t)

	updated, err := store.DeleteAPTGroup(context.Background(), 7, &fakeUnlinker{err: errors.New("es unavailable")})
	require.Error(t, err)
	assert.Equal(t, 0, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

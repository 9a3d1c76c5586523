package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/dbtest"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

func TestUpsertListAndRemove(t *testing.T) {
	client := dbtest.Open(t, "cart_upsert")
	conn := client.DB()
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()
	shopper := uuid.New()
	a := dbtest.SeedProduct(t, conn, 5, 10)
	b := dbtest.SeedProduct(t, conn, 5, 20)

	_, err = svc.Upsert(ctx, shopper, a.ID, 2)
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, shopper, a.ID, 3)
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, shopper, b.ID, 1)
	require.NoError(t, err)

	items, err := svc.List(ctx, shopper)
	require.NoError(t, err)
	require.Len(t, items, 2)
	qty := map[uuid.UUID]int{}
	for _, it := range items {
		qty[it.ProductID] = it.Quantity
	}
	require.Equal(t, 3, qty[a.ID])

	_, err = svc.Upsert(ctx, shopper, b.ID, 0)
	require.NoError(t, err)
	items, err = svc.List(ctx, shopper)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestUpsertRejectsBadInput(t *testing.T) {
	client := dbtest.Open(t, "cart_unknown")
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)

	_, err = svc.Upsert(context.Background(), uuid.New(), uuid.New(), 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Upsert(context.Background(), uuid.New(), uuid.New(), -1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSelectedHelpers(t *testing.T) {
	client := dbtest.Open(t, "cart_selected")
	conn := client.DB()
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()
	shopper := uuid.New()
	a := dbtest.SeedProduct(t, conn, 5, 10)
	b := dbtest.SeedProduct(t, conn, 5, 20)
	for _, p := range []uuid.UUID{a.ID, b.ID} {
		_, err := svc.Upsert(ctx, shopper, p, 1)
		require.NoError(t, err)
	}

	selected, err := ListSelected(ctx, conn, shopper, []uuid.UUID{a.ID})
	require.NoError(t, err)
	require.Len(t, selected, 1)

	n, err := DeleteSelected(ctx, conn, shopper, []uuid.UUID{a.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	left, err := svc.List(ctx, shopper)
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, b.ID, left[0].ProductID)
}

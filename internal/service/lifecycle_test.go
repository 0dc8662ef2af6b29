package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qline/internal/errs"
	"qline/internal/events"
	"qline/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestCreateQueue(t *testing.T) {
	f := newFixture(t, testPolicy)
	ctx := context.Background()

	q, err := f.lifecycle.Create(ctx, f.owner, QueueInput{
		Name:     "  Bank Desk ",
		Location: "Main St",
		Category: "Finance",
		IsPublic: ptr(false),
		CustomFields: []FieldInput{
			{Label: "Full Name", Type: "TEXT", Required: true},
			{Label: "Email", Type: "Email"},
			{Label: "Service", Type: "select", Options: []string{"Deposit", " ", "Loan"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bank Desk", q.Name)
	assert.True(t, q.IsActive)
	assert.False(t, q.IsPublic)
	assert.Equal(t, f.owner.UserID, q.OwnerID)
	assert.Equal(t, events.QueueCreated, f.pub.last().Type)

	detail, err := f.lifecycle.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, detail.RequiredFields, 3)
	for i, fld := range detail.RequiredFields {
		assert.Equal(t, i, fld.Order)
	}
	assert.Equal(t, models.FieldText, detail.RequiredFields[0].Kind)
	assert.Equal(t, models.FieldEmail, detail.RequiredFields[1].Kind)
	assert.Equal(t, []string{"Deposit", "Loan"}, detail.RequiredFields[2].OptionList())
	assert.Equal(t, 5, detail.WaitTime)
}

func TestCreateQueueValidation(t *testing.T) {
	f := newFixture(t, testPolicy)
	ctx := context.Background()

	tests := []struct {
		name string
		in   QueueInput
	}{
		{"без названия", QueueInput{Name: " "}},
		{"отрицательная вместимость", QueueInput{Name: "Q", Capacity: -1}},
		{"пустая метка", QueueInput{Name: "Q", CustomFields: []FieldInput{{Label: "", Type: "text"}}}},
		{"повтор метки", QueueInput{Name: "Q", CustomFields: []FieldInput{{Label: "Name", Type: "text"}, {Label: "name", Type: "text"}}}},
		{"неизвестный тип", QueueInput{Name: "Q", CustomFields: []FieldInput{{Label: "Photo", Type: "file"}}}},
		{"select без вариантов", QueueInput{Name: "Q", CustomFields: []FieldInput{{Label: "Service", Type: "select"}}}},
		{"апостроф в варианте", QueueInput{Name: "Q", CustomFields: []FieldInput{{Label: "Branch", Type: "select", Options: []string{"O'Hare"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lifecycle.Create(ctx, f.owner, tt.in)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}

	_, err := f.lifecycle.Create(ctx, nil, QueueInput{Name: "Q"})
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestUpdateQueue(t *testing.T) {
	f := newFixture(t, testPolicy,
		models.CustomField{Label: "Name", Kind: models.FieldText, Required: true},
		models.CustomField{Label: "Phone", Kind: models.FieldTel},
	)
	ctx := context.Background()

	_, err := f.lifecycle.Update(ctx, f.queue.ID, f.user(t, "mallory"), QueuePatch{Name: ptr("Hijacked")})
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.lifecycle.Update(ctx, "missing", f.owner, QueuePatch{})
	assert.ErrorIs(t, err, errs.ErrQueueNotFound)

	q, err := f.lifecycle.Update(ctx, f.queue.ID, f.owner, QueuePatch{
		Name:     ptr("Evening Queue"),
		IsActive: ptr(false),
		CustomFields: &[]FieldInput{
			{Label: "Email", Type: "email", Required: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Evening Queue", q.Name)
	assert.False(t, q.IsActive)
	assert.Equal(t, "Downtown Branch", q.Location, "непереданные поля не меняются")
	require.Len(t, q.CustomFields, 1)
	assert.Equal(t, "Email", q.CustomFields[0].Label)
	assert.Equal(t, 0, q.CustomFields[0].Order)
	assert.Equal(t, events.QueueUpdated, f.pub.last().Type)

	var n int64
	require.NoError(t, f.db.Model(&models.CustomField{}).Where("queue_id = ?", f.queue.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	_, err = f.lifecycle.Update(ctx, f.queue.ID, f.owner, QueuePatch{Name: ptr(" ")})
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.lifecycle.Update(ctx, f.queue.ID, f.owner, QueuePatch{Capacity: ptr(-1)})
	assert.ErrorIs(t, err, errs.ErrValidation)

	q, err = f.lifecycle.Update(ctx, f.queue.ID, f.owner, QueuePatch{Name: ptr("  Renamed "), Capacity: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", q.Name)
}

func TestDeleteQueueCascades(t *testing.T) {
	f := newFixture(t, testPolicy, models.CustomField{Label: "Name", Kind: models.FieldText})
	ctx := context.Background()
	seed(t, f, "alice", "bob")

	err := f.lifecycle.Delete(ctx, f.queue.ID, f.user(t, "mallory"))
	assert.ErrorIs(t, err, errs.ErrForbidden)

	require.NoError(t, f.lifecycle.Delete(ctx, f.queue.ID, f.owner))
	assert.Equal(t, events.QueueDeleted, f.pub.last().Type)

	_, err = f.lifecycle.Get(ctx, f.queue.ID)
	assert.ErrorIs(t, err, errs.ErrQueueNotFound)
	for _, m := range []any{&models.QueueEntry{}, &models.CustomField{}} {
		var n int64
		require.NoError(t, f.db.Model(m).Where("queue_id = ?", f.queue.ID).Count(&n).Error)
		assert.Zero(t, n)
	}
	assert.ErrorIs(t, f.lifecycle.Delete(ctx, f.queue.ID, f.owner), errs.ErrQueueNotFound)
}

func TestListPublic(t *testing.T) {
	f := newFixture(t, testPolicy)
	ctx := context.Background()

	bank, err := f.lifecycle.Create(ctx, f.owner, QueueInput{Name: "Bank Desk", Location: "Uptown", Category: "Finance"})
	require.NoError(t, err)
	_, err = f.lifecycle.Create(ctx, f.owner, QueueInput{Name: "Secret Lab", IsPublic: ptr(false)})
	require.NoError(t, err)
	_, err = f.lifecycle.Create(ctx, f.owner, QueueInput{Name: "Closed Bakery", IsActive: ptr(false)})
	require.NoError(t, err)

	// в кофейне (f.queue) двое, в банке никого
	seed(t, f, "alice", "bob")

	all, err := f.lifecycle.ListPublic(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, bank.ID, all[0].ID, "новые сначала")

	byWait, err := f.lifecycle.ListPublic(ctx, ListFilter{SortBy: "waitTime"})
	require.NoError(t, err)
	assert.Equal(t, bank.ID, byWait[0].ID)
	assert.Equal(t, 2, byWait[1].PeopleInQueue)
	assert.Equal(t, 5, byWait[1].WaitTime)
	assert.False(t, byWait[1].IsPopular)

	found, err := f.lifecycle.ListPublic(ctx, ListFilter{Search: "downtown"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, f.queue.ID, found[0].ID)

	finance, err := f.lifecycle.ListPublic(ctx, ListFilter{Category: "Finance"})
	require.NoError(t, err)
	require.Len(t, finance, 1)
	assert.Equal(t, bank.ID, finance[0].ID)

	everything, err := f.lifecycle.ListPublic(ctx, ListFilter{Category: "all"})
	require.NoError(t, err)
	assert.Len(t, everything, 2)

	owned, err := f.lifecycle.ListOwned(ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, owned, 4)
}

package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruta-crm/ruta-crm/internal/feed"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

type mockRepo struct {
	clients map[int64]*Client
	nextID  int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{clients: make(map[int64]*Client), nextID: 1}
}

func (m *mockRepo) Get(ctx context.Context, id int64) (*Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockRepo) GetByNationalID(ctx context.Context, nationalID string) (*Client, error) {
	for _, c := range m.clients {
		if c.NationalID != nil && *c.NationalID == nationalID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) GetManyByNationalID(ctx context.Context, nationalIDs []string) ([]Client, error) {
	var out []Client
	for _, nid := range nationalIDs {
		if c, err := m.GetByNationalID(ctx, nid); err == nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockRepo) Create(ctx context.Context, client Client) (int64, error) {
	client.ID = m.nextID
	m.nextID++
	m.clients[client.ID] = &client
	return client.ID, nil
}

func (m *mockRepo) SetActive(ctx context.Context, id int64, active bool) error {
	c, ok := m.clients[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.Active = active
	return nil
}

func (m *mockRepo) Search(ctx context.Context, req SearchRequest) ([]Client, int, error) {
	var out []Client
	for _, c := range m.clients {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, feed.NewBus(nil, nil)), repo
}

func TestCreateRequiresNameAndAddress(t *testing.T) {
	svc, _ := newTestService()
	actor := shared.Actor{ID: 7, Role: shared.RoleCommercial}

	_, err := svc.Create(context.Background(), actor, CreateClientRequest{Name: "  ", Address: "Calle 1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = svc.Create(context.Background(), actor, CreateClientRequest{Name: "Ana", Address: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestCreateStartsActiveAndTrimsFields(t *testing.T) {
	svc, _ := newTestService()
	actor := shared.Actor{ID: 7, Role: shared.RoleCommercial}

	client, err := svc.Create(context.Background(), actor, CreateClientRequest{
		Name:    "  Ana García  ",
		Address: " Calle Mayor 1 ",
	})
	require.NoError(t, err)
	assert.True(t, client.Active)
	assert.Equal(t, "Ana García", client.Name)
	assert.Equal(t, "Calle Mayor 1", client.Address)
	assert.Equal(t, int64(7), client.CreatedBy)
}

func TestDeactivateRequiresAdmin(t *testing.T) {
	svc, repo := newTestService()
	id, err := repo.Create(context.Background(), Client{Name: "Ana", Address: "X", Active: true})
	require.NoError(t, err)

	err = svc.Deactivate(context.Background(), shared.Actor{ID: 7, Role: shared.RoleCommercial}, id)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	err = svc.Deactivate(context.Background(), shared.Actor{ID: 1, Role: shared.RoleAdmin}, id)
	require.NoError(t, err)

	got, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestFindByNationalIDRequiresValue(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.FindByNationalID(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestFindManyByNationalIDSkipsUnknown(t *testing.T) {
	svc, repo := newTestService()
	nid := "12345678A"
	_, err := repo.Create(context.Background(), Client{Name: "Ana", Address: "X", NationalID: &nid, Active: true})
	require.NoError(t, err)

	found, err := svc.FindManyByNationalID(context.Background(), []string{"12345678A", "99999999Z"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Ana", found["12345678A"].Name)
}

func TestFoldNameStripsDiacritics(t *testing.T) {
	assert.Equal(t, "garcia", FoldName("García"))
	assert.Equal(t, "nunez", FoldName("NÚÑEZ"))
	assert.Equal(t, "jose maria", FoldName("José María"))
}

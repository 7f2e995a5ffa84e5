package saga

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/payment-orders/internal/command"
	"github.com/example/payment-orders/internal/domain/clientapp"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/readmodel"
)

func newTestClientAppHandler() (*ClientAppHandler, *store.ReadStore, *fakeScheduler) {
	readStore := store.NewReadStore()
	scheduler := &fakeScheduler{}
	return NewClientAppHandler(readStore, scheduler), readStore, scheduler
}

func appCreatedEvent(appID, externalKey string, createdAt time.Time) store.Event {
	return makeEvent(appID, clientapp.AggregateType, clientapp.EventClientApplicationCreated, 0, clientapp.ClientApplicationCreated{
		ApplicationID: appID,
		ExternalKey:   externalKey,
		Name:          "Acme Webshop",
		CreatedAt:     createdAt,
	})
}

func getApplication(t *testing.T, rs *store.ReadStore, id string) readmodel.ClientApplication {
	t.Helper()
	v, ok := rs.Get(readmodel.CollectionClientApplications, id)
	require.True(t, ok)
	a, ok := v.(readmodel.ClientApplication)
	require.True(t, ok)
	return a
}

func TestClientAppHandler_Created_InsertsProjectionAndSchedulesActivation(t *testing.T) {
	handler, readStore, scheduler := newTestClientAppHandler()
	ctx := context.Background()

	err := handler.HandleCreated(ctx, appCreatedEvent("app-1", "E1", t0))

	require.NoError(t, err)
	a := getApplication(t, readStore, "app-1")
	assert.Equal(t, string(clientapp.StatusCreated), a.Status)
	assert.Equal(t, 1, a.Version)

	require.Len(t, scheduler.Commands, 1)
	assert.Equal(t, command.TypeActivateClientApplication, scheduler.last().Envelope.Type)
	assert.Equal(t, time.Duration(0), scheduler.last().Delay)
}

func TestClientAppHandler_Created_DuplicateExternalKeySchedulesRevoke(t *testing.T) {
	handler, readStore, scheduler := newTestClientAppHandler()
	ctx := context.Background()

	require.NoError(t, handler.HandleCreated(ctx, appCreatedEvent("app-1", "E1", t0)))
	require.NoError(t, handler.HandleCreated(ctx, appCreatedEvent("app-2", "E1", t0.Add(time.Millisecond))))

	// Exactly one projection exists and the duplicate gets revoked
	_, ok := readStore.Get(readmodel.CollectionClientApplications, "app-2")
	assert.False(t, ok)

	require.Len(t, scheduler.Commands, 2)
	revoke := scheduler.last()
	assert.Equal(t, command.TypeRevokeClientApplicationCreation, revoke.Envelope.Type)
	assert.Equal(t, "app-2", revoke.Envelope.AggregateKey)

	var payload command.RevokeClientApplicationCreation
	require.NoError(t, json.Unmarshal(revoke.Envelope.Payload, &payload))
	assert.Equal(t, "Duplicated ExternalKey", payload.Reason)
}

func TestClientAppHandler_Activated_UpdatesProjectionOnly(t *testing.T) {
	handler, readStore, scheduler := newTestClientAppHandler()
	ctx := context.Background()

	require.NoError(t, handler.HandleCreated(ctx, appCreatedEvent("app-1", "E1", t0)))
	scheduled := len(scheduler.Commands)

	require.NoError(t, handler.HandleActivated(ctx, makeEvent("app-1", clientapp.AggregateType, clientapp.EventClientApplicationActivated, 1, clientapp.ClientApplicationActivated{
		ApplicationID: "app-1", ActivatedAt: t0.Add(time.Second),
	})))

	a := getApplication(t, readStore, "app-1")
	assert.Equal(t, string(clientapp.StatusActive), a.Status)
	assert.Equal(t, 2, a.Version)
	assert.Len(t, scheduler.Commands, scheduled)
}

func TestClientAppHandler_Activated_ReapplyIsSkipped(t *testing.T) {
	handler, readStore, _ := newTestClientAppHandler()
	ctx := context.Background()

	require.NoError(t, handler.HandleCreated(ctx, appCreatedEvent("app-1", "E1", t0)))
	activated := makeEvent("app-1", clientapp.AggregateType, clientapp.EventClientApplicationActivated, 1, clientapp.ClientApplicationActivated{
		ApplicationID: "app-1", ActivatedAt: t0.Add(time.Second),
	})

	require.NoError(t, handler.HandleActivated(ctx, activated))
	require.NoError(t, handler.HandleActivated(ctx, activated))

	a := getApplication(t, readStore, "app-1")
	assert.Equal(t, 2, a.Version)
}

func TestClientAppHandler_CreationRevoked_UpdatesStatus(t *testing.T) {
	handler, readStore, _ := newTestClientAppHandler()
	ctx := context.Background()

	require.NoError(t, handler.HandleCreated(ctx, appCreatedEvent("app-1", "E1", t0)))
	require.NoError(t, handler.HandleCreationRevoked(ctx, makeEvent("app-1", clientapp.AggregateType, clientapp.EventClientApplicationCreationRevoked, 1, clientapp.ClientApplicationCreationRevoked{
		ApplicationID: "app-1", Reason: ReasonDuplicatedExternalKey, RevokedAt: t0.Add(time.Second),
	})))

	a := getApplication(t, readStore, "app-1")
	assert.Equal(t, string(clientapp.StatusRevoked), a.Status)
}

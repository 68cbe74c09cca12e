package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dinesync/dinesync/internal/modules/core"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func Test_ExtendSessionCommand_Valid(t *testing.T) {
	command := ExtendSessionCommand{
		SessionID:         uuid.NewString(),
		AdditionalMinutes: float64(30), // JSON numbers decode as float64
	}

	require.NoError(t, command.Validate())
}

func Test_ExtendSessionCommand_Omitted_Minutes_Uses_Policy_Default(t *testing.T) {
	command := ExtendSessionCommand{SessionID: uuid.NewString()}

	require.NoError(t, command.Validate())
}

func Test_ExtendSessionCommand_Rejects_Bad_SessionID(t *testing.T) {
	command := ExtendSessionCommand{SessionID: "not-a-session", AdditionalMinutes: 30}

	err := command.Validate()

	require.Error(t, err)
	commandErr, ok := err.(core.CommandError)
	require.True(t, ok)
	require.Equal(t, 400, commandErr.StatusCode)
	require.Equal(t, "sessionId", commandErr.Payload.(core.ErrorBody).Field)
}

func Test_ExtendSessionCommand_Rejects_Out_Of_Range_Minutes(t *testing.T) {
	for _, minutes := range []interface{}{0, -5, 481, "abc", 1.5} {
		command := ExtendSessionCommand{SessionID: uuid.NewString(), AdditionalMinutes: minutes}

		err := command.Validate()

		require.Error(t, err, "expected rejection for %v", minutes)
		require.Equal(t, "additionalMinutes", err.(core.CommandError).Payload.(core.ErrorBody).Field)
	}
}

func Test_StaffResetTableCommand_Rejects_Each_Bad_Field(t *testing.T) {
	valid := StaffResetTableCommand{
		TableID:      "table-7",
		RestaurantID: uuid.NewString(),
		StaffID:      uuid.NewString(),
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*StaffResetTableCommand)
		field  string
	}{
		{"bad table", func(c *StaffResetTableCommand) { c.TableID = "table 7!" }, "tableId"},
		{"bad restaurant", func(c *StaffResetTableCommand) { c.RestaurantID = "xyz" }, "restaurantId"},
		{"bad staff", func(c *StaffResetTableCommand) { c.StaffID = "" }, "staffId"},
	}

	for _, tc := range cases {
		command := valid
		tc.mutate(&command)

		err := command.Validate()

		require.Error(t, err, tc.name)
		require.Equal(t, tc.field, err.(core.CommandError).Payload.(core.ErrorBody).Field, tc.name)
	}
}

type recordingExtendHandler struct {
	received []ExtendSessionCommand
}

func (h *recordingExtendHandler) Handle(
	ctx context.Context,
	request ExtendSessionCommand,
) (ExtendSessionResponse, error) {
	h.received = append(h.received, request)
	return ExtendSessionResponse{Success: true, Message: "session extended"}, nil
}

func Test_HandleExtendSession_Treats_Missing_Body_As_Empty_Command(t *testing.T) {
	// Arrange
	handler := &recordingExtendHandler{}
	require.NoError(
		t,
		mediator.RegisterRequestHandler[ExtendSessionCommand, ExtendSessionResponse](handler),
	)

	router := chi.NewRouter()
	router.Post("/tables/sessions/{id}/actions/extend", HandleExtendSession(core.NewJSONWriter(zap.NewNop())))

	server := httptest.NewServer(router)
	defer server.Close()

	sessionID := uuid.NewString()

	// Act - no request body at all
	resp, err := http.Post(server.URL+"/tables/sessions/"+sessionID+"/actions/extend", "application/json", nil)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	// Assert - same as an explicit `{}`: the policy default applies
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, handler.received, 1)
	require.Equal(t, sessionID, handler.received[0].SessionID)
	require.Nil(t, handler.received[0].AdditionalMinutes)
}

package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope_Register(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"type":"register","sessionId":"studio1","role":"camera","userId":"bob"}`))
	require.NoError(t, err)

	assert.Equal(t, typeRegister, env.Type)
	assert.Equal(t, "studio1", env.SessionID)
	assert.Equal(t, "camera", env.Role)
	assert.Equal(t, "bob", env.UserID)
}

func TestParseEnvelope_RegisterPDAliasForcesRole(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"type":"register_pd","sessionId":"studio1","role":"viewer"}`))
	require.NoError(t, err)

	assert.Equal(t, typeRegister, env.Type)
	assert.Equal(t, string(RoleControllerLegacy), env.Role)
}

func TestParseEnvelope_InputListAlias(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"type":"input_list","inputs":{"cam1":"Camera 1"}}`))
	require.NoError(t, err)

	assert.Equal(t, typeTallyUpdate, env.Type)
	assert.Equal(t, map[string]string{"cam1": "Camera 1"}, env.Inputs)
	assert.Nil(t, env.Program)
	assert.Nil(t, env.Preview)
}

func TestParseEnvelope_Malformed(t *testing.T) {
	_, err := parseEnvelope([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestParseEnvelope_NullProgramDistinctFromMissing(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"type":"tally_update","program":"cam1","preview":null}`))
	require.NoError(t, err)

	require.NotNil(t, env.Program)
	assert.Equal(t, "cam1", *env.Program)
	assert.Nil(t, env.Preview)
}

func TestRole_IsController(t *testing.T) {
	assert.True(t, RoleController.IsController())
	assert.True(t, RoleControllerLegacy.IsController())
	assert.False(t, RoleViewer.IsController())
	assert.False(t, RoleCamera.IsController())
	assert.False(t, RoleStaff.IsController())
}

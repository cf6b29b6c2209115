package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEventText(t *testing.T) {
	assert.NoError(t, ValidateEventText(""))
	assert.NoError(t, ValidateEventText("pothole on MG Road"))
	assert.NoError(t, ValidateEventText("नमस्ते"))
	assert.Error(t, ValidateEventText(strings.Repeat("x", 4097)))
	assert.Error(t, ValidateEventText(string([]byte{0xff, 0xfe})))
}

func TestValidateEventID(t *testing.T) {
	assert.Error(t, ValidateEventID(""))
	assert.NoError(t, ValidateEventID("wamid.HBgL"))
	assert.Error(t, ValidateEventID(strings.Repeat("a", 129)))
}

func TestValidateConversationID(t *testing.T) {
	assert.Error(t, ValidateConversationID(""))
	assert.NoError(t, ValidateConversationID("+919876543210"))
	assert.Error(t, ValidateConversationID(strings.Repeat("a", 129)))
}

func TestValidateTenantID(t *testing.T) {
	assert.Error(t, ValidateTenantID(""))
	assert.NoError(t, ValidateTenantID("pcmc"))
	assert.Error(t, ValidateTenantID(strings.Repeat("a", 65)))
}

package mail

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplates(t *testing.T) {
	body, err := render("verify", templateData{Name: "Ada", Link: "http://hub/auth/verify?token=abc"})
	require.NoError(t, err)
	assert.Contains(t, body, "Hello Ada")
	assert.Contains(t, body, "http://hub/auth/verify?token=abc")

	body, err = render("reset", templateData{Link: "http://hub/auth/reset-password?token=xyz"})
	require.NoError(t, err)
	assert.Contains(t, body, "token=xyz")

	_, err = render("missing", templateData{})
	assert.Error(t, err)
}

func TestRecordingMailer(t *testing.T) {
	m := NewRecordingMailer()
	require.NoError(t, m.SendVerificationEmail("a@uni.edu", "A", "link-1"))
	require.NoError(t, m.SendPasswordResetEmail("a@uni.edu", "link-2"))
	require.NoError(t, m.SendPasswordResetEmail("b@uni.edu", "link-3"))

	assert.Len(t, m.Sent(), 3)

	last, ok := m.Last("a@uni.edu")
	require.True(t, ok)
	assert.Equal(t, "link-2", last.Link)
	assert.Equal(t, "Reset your password", last.Subject)

	_, ok = m.Last("c@uni.edu")
	assert.False(t, ok)

	m.FailWith(errors.New("smtp unavailable"))
	assert.Error(t, m.SendPasswordResetEmail("c@uni.edu", "link-4"))
	_, ok = m.Last("c@uni.edu")
	assert.False(t, ok)

	m.FailWith(nil)
	require.NoError(t, m.SendPasswordResetEmail("c@uni.edu", "link-5"))
	assert.Len(t, m.Sent(), 4)
}

package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/certwatch/pkg/models"
)

func TestComposeCertificate(t *testing.T) {
	t.Parallel()
	item := models.ExpiringItem{
		ID:            "c1",
		Name:          "example.com",
		Type:          models.ItemTypeCertificate,
		ExpiryDate:    time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC),
		DaysRemaining: 60,
	}

	msg, err := Composer{UrgentWithinDays: 30, BaseURL: "https://certwatch.internal"}.Compose(item)
	require.NoError(t, err)

	assert.Equal(t, "Certificate expiring in 60 days: example.com", msg.Subject)
	assert.Contains(t, msg.HTML, "Certificate Expiry Notice")
	assert.Contains(t, msg.HTML, "#1d4ed8")
	assert.Contains(t, msg.HTML, "Request a renewed certificate")
	assert.Contains(t, msg.HTML, "https://certwatch.internal")
	assert.NotContains(t, msg.HTML, "URGENT")
}

func TestComposeServiceIDUrgent(t *testing.T) {
	t.Parallel()
	item := models.ExpiringItem{
		ID:            "s1",
		Name:          "svc-batch",
		Type:          models.ItemTypeServiceID,
		ExpiryDate:    time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
		DaysRemaining: 1,
	}

	msg, err := ComposeMessage(item)
	require.NoError(t, err)

	assert.Equal(t, "[URGENT] Service ID expiring in 1 day: svc-batch", msg.Subject)
	assert.Contains(t, msg.HTML, "URGENT: this Service ID expires in 1 day.")
	assert.Contains(t, msg.HTML, "#7c3aed")
	assert.Contains(t, msg.HTML, "Rotate the service ID credentials")
	assert.NotContains(t, msg.HTML, "Open in certwatch")
}

func TestComposeUrgencyBoundary(t *testing.T) {
	t.Parallel()
	c := Composer{UrgentWithinDays: 30}
	assert.True(t, c.IsUrgent(30))
	assert.False(t, c.IsUrgent(31))

	msg, err := c.Compose(models.ExpiringItem{Name: "x", Type: models.ItemTypeCertificate, DaysRemaining: 30})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg.Subject, "[URGENT]"))
}

func TestComposeEscapesNames(t *testing.T) {
	t.Parallel()
	msg, err := ComposeMessage(models.ExpiringItem{
		Name:          `<script>alert(1)</script>`,
		Type:          models.ItemTypeCertificate,
		DaysRemaining: 90,
	})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestComposeUnknownType(t *testing.T) {
	t.Parallel()
	_, err := ComposeMessage(models.ExpiringItem{Type: "domain"})
	require.Error(t, err)
}

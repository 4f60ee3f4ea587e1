package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.yaml")
	writeFile(t, path, `
name: new-subscribers
description: "Relay Mailchimp subscribes"
piece: mailchimp
trigger: subscribe
props:
  authentication:
    access_token: "${{ secrets.MAILCHIMP_TOKEN }}"
  list_id: a6b5da1054
webhook:
  path: /hooks/mailchimp
metadata:
  team: growth
`)

	inst, err := LoadInstance(path)
	require.NoError(t, err)

	assert.Equal(t, "new-subscribers", inst.Name)
	assert.Equal(t, "mailchimp", inst.Piece)
	assert.Equal(t, "subscribe", inst.Trigger)
	assert.Equal(t, map[string]any{"access_token": "${{ secrets.MAILCHIMP_TOKEN }}"}, inst.Props["authentication"])
	assert.Equal(t, "/hooks/mailchimp", inst.WebhookPath())
	assert.Equal(t, "growth", inst.Metadata["team"])
}

func TestLoadInstanceDefaultWebhookPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.yaml")
	writeFile(t, path, "name: contacts\npiece: airtable\ntrigger: new_record\n")

	inst, err := LoadInstance(path)
	require.NoError(t, err)
	assert.Equal(t, "/webhooks/contacts", inst.WebhookPath())
	assert.NotNil(t, inst.Props, "props default to an empty map")
}

func TestLoadInstanceMissingName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "piece: airtable\ntrigger: new_record\n")

	_, err := LoadInstance(path)
	assert.Error(t, err)
}

func TestLoadInstanceUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "name: x\npiece: airtable\ntrigger: new_record\nsteps: []\n")

	_, err := LoadInstance(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps")
}

func TestLoadInstances(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "name: subs\npiece: mailchimp\ntrigger: subscribe\n")
	writeFile(t, filepath.Join(dir, "airtable", "b.yml"), "name: contacts\npiece: airtable\ntrigger: new_record\n")
	writeFile(t, filepath.Join(dir, "ignore.txt"), "not an instance")

	instances, err := LoadInstances(dir)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Contains(t, instances, "subs")
	assert.Contains(t, instances, "contacts")

	sorted := Sorted(instances)
	assert.Equal(t, "contacts", sorted[0].Name)
	assert.Equal(t, "subs", sorted[1].Name)
}

func TestLoadInstancesDuplicateName(t *testing.T) {
	dir := t.TempDir()
	content := "name: duplicate\npiece: airtable\ntrigger: new_record\n"
	writeFile(t, filepath.Join(dir, "a.yaml"), content)
	writeFile(t, filepath.Join(dir, "b.yaml"), content)

	_, err := LoadInstances(dir)
	assert.Error(t, err)
}

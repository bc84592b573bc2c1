package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommandAPI struct {
	existing []*discordgo.ApplicationCommand
	listErr  error
	failOn   string

	created []string
	edited  []string
	deleted []string
}

func (f *fakeCommandAPI) ApplicationCommands(string, string, ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	return f.existing, f.listErr
}

func (f *fakeCommandAPI) ApplicationCommandCreate(_, _ string, cmd *discordgo.ApplicationCommand, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	if cmd.Name == f.failOn {
		return nil, errors.New("rate limited")
	}
	f.created = append(f.created, cmd.Name)
	return cmd, nil
}

func (f *fakeCommandAPI) ApplicationCommandEdit(_, _, cmdID string, cmd *discordgo.ApplicationCommand, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	f.edited = append(f.edited, cmdID)
	return cmd, nil
}

func (f *fakeCommandAPI) ApplicationCommandDelete(_, _, cmdID string, _ ...discordgo.RequestOption) error {
	f.deleted = append(f.deleted, cmdID)
	return nil
}

func TestCommandCatalogue(t *testing.T) {
	want := []string{
		"ban", "kick", "timeout", "untimeout", "warn", "warnings", "softban", "purge",
		"setup-ticket", "close-request", "ticket-add",
		"tempvoice-setup", "tempvoice-panel",
		"setup-welcome", "setup-booster-log", "setup-alerts",
		"domain", "report",
		"rules-setup", "edit-rules", "serverinfo", "snipe", "check-ghost-ping",
	}
	var names []string
	seen := map[string]bool{}
	for _, cmd := range Commands() {
		assert.False(t, seen[cmd.Name], "duplicate %s", cmd.Name)
		seen[cmd.Name] = true
		names = append(names, cmd.Name)
		assert.NotEmpty(t, cmd.Description, cmd.Name)
		require.NotNil(t, cmd.DMPermission, cmd.Name)
		assert.False(t, *cmd.DMPermission, cmd.Name)
	}
	assert.ElementsMatch(t, want, names)
}

func TestModerationCommandsRequirePermissions(t *testing.T) {
	perms := map[string]int64{}
	for _, cmd := range Commands() {
		if cmd.DefaultMemberPermissions != nil {
			perms[cmd.Name] = *cmd.DefaultMemberPermissions
		}
	}
	assert.Equal(t, int64(discordgo.PermissionBanMembers), perms["ban"])
	assert.Equal(t, int64(discordgo.PermissionKickMembers), perms["kick"])
	assert.Equal(t, int64(discordgo.PermissionModerateMembers), perms["timeout"])
	assert.Equal(t, int64(discordgo.PermissionManageMessages), perms["purge"])
	assert.Equal(t, int64(discordgo.PermissionManageMessages), perms["snipe"])
	assert.Equal(t, int64(discordgo.PermissionAdministrator), perms["rules-setup"])
	assert.Equal(t, int64(discordgo.PermissionAdministrator), perms["edit-rules"])
	assert.Equal(t, int64(discordgo.PermissionManageServer), perms["setup-alerts"])
}

func TestTimeoutDurationBounds(t *testing.T) {
	for _, cmd := range Commands() {
		if cmd.Name != "timeout" {
			continue
		}
		for _, opt := range cmd.Options {
			if opt.Name == "duration" {
				require.NotNil(t, opt.MinValue)
				assert.Equal(t, 1.0, *opt.MinValue)
				assert.Equal(t, 40320.0, opt.MaxValue)
				return
			}
		}
	}
	t.Fatal("timeout duration option missing")
}

func TestReconcile(t *testing.T) {
	api := &fakeCommandAPI{existing: []*discordgo.ApplicationCommand{
		{ID: "1", Name: "ban"},
		{ID: "2", Name: "legacy"},
	}}
	desired := []*discordgo.ApplicationCommand{{Name: "ban"}, {Name: "kick"}}

	result, err := reconcile(context.Background(), api, "app", "g1", desired)
	require.NoError(t, err)
	assert.Equal(t, syncResult{Created: 1, Updated: 1, Deleted: 1}, result)
	assert.Equal(t, []string{"kick"}, api.created)
	assert.Equal(t, []string{"1"}, api.edited)
	assert.Equal(t, []string{"2"}, api.deleted)
}

func TestReconcileErrors(t *testing.T) {
	_, err := reconcile(context.Background(), &fakeCommandAPI{listErr: errors.New("unauthorized")}, "app", "", nil)
	assert.ErrorContains(t, err, "list commands")

	api := &fakeCommandAPI{failOn: "kick"}
	result, err := reconcile(context.Background(), api, "app", "", []*discordgo.ApplicationCommand{{Name: "ban"}, {Name: "kick"}})
	assert.ErrorContains(t, err, "create kick")
	assert.Equal(t, 1, result.Created)
}

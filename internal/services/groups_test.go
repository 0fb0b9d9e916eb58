package services

import (
	"testing"

	"github.com/bundlehub/backend/internal/models"
	"github.com/google/uuid"
)

func TestGroupService_CreateGroup(t *testing.T) {
	svc := setupServices(t)
	user := createTestUser(t, svc.db, "founder", models.UserRoleNormal)

	t.Run("creates owner membership and promotes the role", func(t *testing.T) {
		group, err := svc.groups.CreateGroup(user.ID, "team", nil)
		if err != nil {
			t.Fatalf("failed creating group: %v", err)
		}

		role, err := svc.groups.RoleOf(user.ID, group.ID)
		if err != nil {
			t.Fatalf("failed loading role: %v", err)
		}
		if role != models.GroupRoleOwner {
			t.Fatalf("expected OWNER membership, got %s", role)
		}

		var reloaded models.User
		if err := svc.db.First(&reloaded, "id = ?", user.ID).Error; err != nil {
			t.Fatalf("failed reloading user: %v", err)
		}
		if reloaded.Role != models.UserRoleGroupOwner {
			t.Fatalf("expected GROUP_OWNER, got %s", reloaded.Role)
		}

		if group.MaxMembers != models.DefaultGroupMaxMembers {
			t.Fatalf("expected default max members %d, got %d", models.DefaultGroupMaxMembers, group.MaxMembers)
		}
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		_, err := svc.groups.CreateGroup(user.ID, "team", nil)
		expectKind(t, err, KindConflict)
	})

	t.Run("global admin keeps their role", func(t *testing.T) {
		admin := createTestUser(t, svc.db, "root", models.UserRoleGlobalAdmin)
		if _, err := svc.groups.CreateGroup(admin.ID, "ops", nil); err != nil {
			t.Fatalf("failed creating group: %v", err)
		}

		var reloaded models.User
		if err := svc.db.First(&reloaded, "id = ?", admin.ID).Error; err != nil {
			t.Fatalf("failed reloading admin: %v", err)
		}
		if reloaded.Role != models.UserRoleGlobalAdmin {
			t.Fatalf("expected GLOBAL_ADMIN to be preserved, got %s", reloaded.Role)
		}
	})
}

func TestGroupService_AddMember(t *testing.T) {
	svc := setupServices(t)
	owner := createTestUser(t, svc.db, "owner", models.UserRoleGroupOwner)
	joiner := createTestUser(t, svc.db, "joiner", models.UserRoleNormal)
	outsider := createTestUser(t, svc.db, "outsider", models.UserRoleNormal)
	admin := createTestUser(t, svc.db, "root", models.UserRoleGlobalAdmin)

	group := createTestGroup(t, svc.db, owner, "team")

	t.Run("rejects unknown role", func(t *testing.T) {
		_, err := svc.groups.AddMember(group.ID, joiner.ID, "SUPERVISOR", owner.ID)
		expectKind(t, err, KindValidation)
	})

	t.Run("outsider may not add members", func(t *testing.T) {
		_, err := svc.groups.AddMember(group.ID, joiner.ID, models.GroupRoleMember, outsider.ID)
		expectKind(t, err, KindPermissionDenied)
	})

	t.Run("owner adds a member", func(t *testing.T) {
		membership, err := svc.groups.AddMember(group.ID, joiner.ID, models.GroupRoleMember, owner.ID)
		if err != nil {
			t.Fatalf("failed adding member: %v", err)
		}
		if membership.Role != models.GroupRoleMember {
			t.Fatalf("expected MEMBER, got %s", membership.Role)
		}
	})

	t.Run("double add conflicts", func(t *testing.T) {
		_, err := svc.groups.AddMember(group.ID, joiner.ID, models.GroupRoleMember, owner.ID)
		expectKind(t, err, KindConflict)
	})

	t.Run("global admin may add without membership", func(t *testing.T) {
		if _, err := svc.groups.AddMember(group.ID, outsider.ID, models.GroupRoleMember, admin.ID); err != nil {
			t.Fatalf("failed adding via global admin: %v", err)
		}
	})

	t.Run("full group rejects new members", func(t *testing.T) {
		tiny := createTestGroup(t, svc.db, owner, "tiny")
		if err := svc.db.Model(&models.Group{}).Where("id = ?", tiny.ID).Update("max_members", 1).Error; err != nil {
			t.Fatalf("failed shrinking group: %v", err)
		}

		_, err := svc.groups.AddMember(tiny.ID, joiner.ID, models.GroupRoleMember, owner.ID)
		expectKind(t, err, KindState)
	})

	t.Run("unknown group is not found", func(t *testing.T) {
		_, err := svc.groups.AddMember(uuid.New(), joiner.ID, models.GroupRoleMember, admin.ID)
		expectKind(t, err, KindNotFound)
	})
}

func TestGroupService_RemoveMember(t *testing.T) {
	svc := setupServices(t)
	owner := createTestUser(t, svc.db, "owner", models.UserRoleGroupOwner)
	member := createTestUser(t, svc.db, "member", models.UserRoleNormal)
	outsider := createTestUser(t, svc.db, "outsider", models.UserRoleNormal)

	group := createTestGroup(t, svc.db, owner, "team")
	addTestMember(t, svc.db, group, member, models.GroupRoleMember)

	t.Run("outsider may not remove members", func(t *testing.T) {
		err := svc.groups.RemoveMember(group.ID, member.ID, outsider.ID)
		expectKind(t, err, KindPermissionDenied)
	})

	t.Run("owner membership is not removable", func(t *testing.T) {
		err := svc.groups.RemoveMember(group.ID, owner.ID, owner.ID)
		expectKind(t, err, KindState)
	})

	t.Run("removes a plain member", func(t *testing.T) {
		if err := svc.groups.RemoveMember(group.ID, member.ID, owner.ID); err != nil {
			t.Fatalf("failed removing member: %v", err)
		}

		isMember, err := svc.groups.IsMember(member.ID, group.ID)
		if err != nil {
			t.Fatalf("failed checking membership: %v", err)
		}
		if isMember {
			t.Fatal("expected membership to be gone")
		}
	})

	t.Run("removing a non-member is not found", func(t *testing.T) {
		err := svc.groups.RemoveMember(group.ID, member.ID, owner.ID)
		expectKind(t, err, KindNotFound)
	})
}

func TestGroupService_DeleteGroupDetaches(t *testing.T) {
	svc := setupServices(t)
	owner := createTestUser(t, svc.db, "owner", models.UserRoleGroupOwner)
	member := createTestUser(t, svc.db, "member", models.UserRoleNormal)
	outsider := createTestUser(t, svc.db, "outsider", models.UserRoleNormal)

	group := createTestGroup(t, svc.db, owner, "team")
	addTestMember(t, svc.db, group, member, models.GroupRoleMember)

	groupBundle := createTestBundle(t, svc, owner, models.ShareModeGroupOnly, &group.ID)
	publicBundle := createTestBundle(t, svc, owner, models.ShareModePublic, &group.ID)

	t.Run("only owner or global admin may delete", func(t *testing.T) {
		_, err := svc.groups.DeleteGroup(group.ID, outsider.ID)
		expectKind(t, err, KindPermissionDenied)
	})

	t.Run("delete detaches bundles instead of destroying them", func(t *testing.T) {
		result, err := svc.groups.DeleteGroup(group.ID, owner.ID)
		if err != nil {
			t.Fatalf("failed deleting group: %v", err)
		}
		if result.AffectedMembers != 2 {
			t.Fatalf("expected 2 affected members, got %d", result.AffectedMembers)
		}
		if result.AffectedBundles != 2 {
			t.Fatalf("expected 2 affected bundles, got %d", result.AffectedBundles)
		}

		var groupCount int64
		svc.db.Model(&models.Group{}).Where("id = ?", group.ID).Count(&groupCount)
		if groupCount != 0 {
			t.Fatal("expected group row to be gone")
		}

		var membershipCount int64
		svc.db.Model(&models.GroupMembership{}).Where("group_id = ?", group.ID).Count(&membershipCount)
		if membershipCount != 0 {
			t.Fatal("expected memberships to be gone")
		}

		var downgraded models.Bundle
		if err := svc.db.First(&downgraded, "id = ?", groupBundle.ID).Error; err != nil {
			t.Fatalf("expected bundle to survive group delete: %v", err)
		}
		if downgraded.GroupID != nil {
			t.Fatal("expected group affiliation to be cleared")
		}
		if downgraded.ShareMode != models.ShareModePrivate {
			t.Fatalf("expected GROUP_ONLY to fall back to PRIVATE, got %s", downgraded.ShareMode)
		}

		// non-group-only modes keep their visibility
		var untouched models.Bundle
		if err := svc.db.First(&untouched, "id = ?", publicBundle.ID).Error; err != nil {
			t.Fatalf("expected public bundle to survive: %v", err)
		}
		if untouched.GroupID != nil {
			t.Fatal("expected group affiliation to be cleared")
		}
		if untouched.ShareMode != models.ShareModePublic {
			t.Fatalf("expected PUBLIC to stay PUBLIC, got %s", untouched.ShareMode)
		}
	})

	t.Run("unknown group is not found", func(t *testing.T) {
		_, err := svc.groups.DeleteGroup(uuid.New(), owner.ID)
		expectKind(t, err, KindNotFound)
	})
}

func TestGroupService_UpdateGroup(t *testing.T) {
	svc := setupServices(t)
	owner := createTestUser(t, svc.db, "owner", models.UserRoleGroupOwner)
	member := createTestUser(t, svc.db, "member", models.UserRoleNormal)

	group := createTestGroup(t, svc.db, owner, "team")
	addTestMember(t, svc.db, group, member, models.GroupRoleMember)

	t.Run("plain member may not update", func(t *testing.T) {
		name := "renamed"
		err := svc.groups.UpdateGroup(group.ID, &name, nil, member.ID)
		expectKind(t, err, KindPermissionDenied)
	})

	t.Run("owner renames", func(t *testing.T) {
		name := "renamed"
		if err := svc.groups.UpdateGroup(group.ID, &name, nil, owner.ID); err != nil {
			t.Fatalf("failed updating group: %v", err)
		}

		reloaded, err := svc.groups.Get(group.ID)
		if err != nil {
			t.Fatalf("failed reloading group: %v", err)
		}
		if reloaded.Name != "renamed" {
			t.Fatalf("expected renamed, got %s", reloaded.Name)
		}
	})
}

package services

import (
	"testing"

	"github.com/bundlehub/backend/internal/models"
)

func TestAccessService_CanView(t *testing.T) {
	svc := setupServices(t)

	owner := createTestUser(t, svc.db, "owner", models.UserRoleGroupOwner)
	member := createTestUser(t, svc.db, "member", models.UserRoleNormal)
	stranger := createTestUser(t, svc.db, "stranger", models.UserRoleNormal)

	group := createTestGroup(t, svc.db, owner, "team")
	addTestMember(t, svc.db, group, member, models.GroupRoleMember)

	t.Run("owner always sees own bundle", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModePrivate, nil)
		if !svc.access.CanView(owner.ID, bundle) {
			t.Fatal("expected owner to view own private bundle")
		}
	})

	t.Run("public bundle visible to anyone", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModePublic, nil)
		if !svc.access.CanView(stranger.ID, bundle) {
			t.Fatal("expected stranger to view public bundle")
		}
	})

	t.Run("group bundle visible to members only", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModeGroupOnly, &group.ID)
		if !svc.access.CanView(member.ID, bundle) {
			t.Fatal("expected group member to view group bundle")
		}
		if svc.access.CanView(stranger.ID, bundle) {
			t.Fatal("expected non-member to be denied")
		}
	})

	t.Run("group bundle without group falls through to deny", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModeGroupOnly, nil)
		if svc.access.CanView(stranger.ID, bundle) {
			t.Fatal("expected deny for group-only bundle with no group")
		}
	})

	t.Run("private bundle hidden from non-owners", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModePrivate, nil)
		if svc.access.CanView(stranger.ID, bundle) {
			t.Fatal("expected stranger to be denied on private bundle")
		}
	})

	t.Run("visible reference grants view on private bundle", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModePrivate, nil)
		if err := svc.bundles.Import(stranger.ID, bundle.ID); err != nil {
			t.Fatalf("failed importing: %v", err)
		}
		if !svc.access.CanView(stranger.ID, bundle) {
			t.Fatal("expected importer to view private bundle")
		}
	})

	t.Run("hidden reference grants nothing", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModePrivate, nil)
		if err := svc.bundles.Import(stranger.ID, bundle.ID); err != nil {
			t.Fatalf("failed importing: %v", err)
		}
		if err := svc.bundles.RemoveReference(bundle.ID, stranger.ID); err != nil {
			t.Fatalf("failed removing reference: %v", err)
		}
		if svc.access.CanView(stranger.ID, bundle) {
			t.Fatal("expected hidden reference to grant nothing")
		}
	})
}

func TestAccessService_CanImport(t *testing.T) {
	svc := setupServices(t)

	owner := createTestUser(t, svc.db, "owner", models.UserRoleGroupOwner)
	stranger := createTestUser(t, svc.db, "stranger", models.UserRoleNormal)
	group := createTestGroup(t, svc.db, owner, "team")

	t.Run("private importable by anyone with the id", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModePrivate, nil)
		if !svc.access.CanImport(stranger.ID, bundle) {
			t.Fatal("expected private bundle to be importable by id")
		}
	})

	t.Run("group bundle not importable by non-member", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModeGroupOnly, &group.ID)
		if svc.access.CanImport(stranger.ID, bundle) {
			t.Fatal("expected non-member import to be denied")
		}
	})

	t.Run("public importable by anyone", func(t *testing.T) {
		bundle := createTestBundle(t, svc, owner, models.ShareModePublic, nil)
		if !svc.access.CanImport(stranger.ID, bundle) {
			t.Fatal("expected public bundle to be importable")
		}
	})
}

package services

import (
	"testing"
	"time"

	"github.com/bundlehub/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMembership{},
		&models.Bundle{},
		&models.BundleReference{},
		&models.BundleShare{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	return db
}

type testServices struct {
	db      *gorm.DB
	crypto  *CryptoService
	access  *AccessService
	bundles *BundleService
	shares  *ShareService
	groups  *GroupService
	users   *UserService
	cleanup *CleanupService
}

func setupServices(t *testing.T) *testServices {
	t.Helper()

	db := setupTestDB(t)
	crypto := NewCryptoService("test-secret")
	access := NewAccessService(db)
	bundles := NewBundleService(db, crypto, access)

	return &testServices{
		db:      db,
		crypto:  crypto,
		access:  access,
		bundles: bundles,
		shares:  NewShareService(db, bundles),
		groups:  NewGroupService(db),
		users:   NewUserService(db, bundles),
		cleanup: NewCleanupService(db, bundles),
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  username,
		Role:         role,
		Status:       models.UserStatusActive,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", username, err)
	}
	return user
}

func createTestGroup(t *testing.T, db *gorm.DB, owner *models.User, name string) *models.Group {
	t.Helper()

	group := &models.Group{
		Name:       name,
		OwnerID:    owner.ID,
		Status:     models.GroupStatusActive,
		MaxMembers: models.DefaultGroupMaxMembers,
	}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating group %s: %v", name, err)
	}

	membership := &models.GroupMembership{
		UserID:  owner.ID,
		GroupID: group.ID,
		Role:    models.GroupRoleOwner,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating owner membership: %v", err)
	}
	return group
}

func addTestMember(t *testing.T, db *gorm.DB, group *models.Group, user *models.User, role models.GroupMembershipRole) {
	t.Helper()

	membership := &models.GroupMembership{
		UserID:  user.ID,
		GroupID: group.ID,
		Role:    role,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed adding member: %v", err)
	}
}

func createTestBundle(t *testing.T, svc *testServices, owner *models.User, mode models.ShareMode, groupID *uuid.UUID) *models.Bundle {
	t.Helper()

	bundle, err := svc.bundles.Create(owner.ID, CreateBundleInput{
		Name:       "session-" + owner.Username,
		Host:       "example.com",
		Payload:    `{"cookies":[{"name":"sid","value":"abc"}]}`,
		ShareMode:  string(mode),
		GroupID:    groupID,
		ExpireDays: 7,
	})
	if err != nil {
		t.Fatalf("failed creating bundle: %v", err)
	}
	return bundle
}

func expectKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if KindOf(err) != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, KindOf(err), err)
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

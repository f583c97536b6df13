package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
)

func SeedDevice(tb testing.TB, ctx context.Context, tx *gorm.DB, udid string) *types.Device {
	tb.Helper()
	d := &types.Device{
		ID:           uuid.New(),
		UDID:         udid,
		SerialNumber: "SN-" + udid,
		Name:         "device " + udid,
		PushToken:    "token-" + udid,
		PushMagic:    "magic-" + udid,
		Topic:        "com.example.mdm",
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed device: %v", err)
	}
	return d
}

func SeedGroup(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Group {
	tb.Helper()
	g := &types.Group{Name: name}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed group: %v", err)
	}
	return g
}

// SeedProfile creates a restrictions profile with the given identifier.
func SeedProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, identifier string) *types.Profile {
	tb.Helper()
	p := &types.Profile{
		Identifier:  identifier,
		UUID:        uuid.NewString(),
		DisplayName: identifier,
	}
	restrictions := mdm.DefaultRestrictions()
	payload := mdm.Payload{
		Kind:         mdm.PayloadKindRestrictions,
		UUID:         uuid.NewString(),
		Identifier:   identifier + ".restrictions",
		DisplayName:  "Restrictions",
		Restrictions: &restrictions,
	}
	if err := p.SetPayloads([]mdm.Payload{payload}); err != nil {
		tb.Fatalf("seed profile payloads: %v", err)
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

func LinkDeviceGroup(tb testing.TB, ctx context.Context, tx *gorm.DB, deviceID uuid.UUID, groupID uint) {
	tb.Helper()
	if err := tx.WithContext(ctx).Create(&types.DeviceGroup{DeviceID: deviceID, GroupID: groupID}).Error; err != nil {
		tb.Fatalf("link device group: %v", err)
	}
}

func LinkGroupProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, groupID, profileID uint) {
	tb.Helper()
	if err := tx.WithContext(ctx).Create(&types.GroupProfile{GroupID: groupID, ProfileID: profileID}).Error; err != nil {
		tb.Fatalf("link group profile: %v", err)
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/http/response"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/reconcile"
	"github.com/yungbote/fleetmdm-backend/internal/services"
)

type fakeMembership struct {
	services.MembershipService
	err         error
	out         services.Outcome
	gotDevice   uuid.UUID
	gotGroups   []uint
	gotGroup    uint
	gotDevices  []uuid.UUID
	gotProfiles []uint
}

func (f *fakeMembership) SetDeviceGroups(_ context.Context, deviceID uuid.UUID, groupIDs []uint) (services.Outcome, error) {
	f.gotDevice, f.gotGroups = deviceID, groupIDs
	return f.out, f.err
}

func (f *fakeMembership) SetGroupDevices(_ context.Context, groupID uint, deviceIDs []uuid.UUID) (services.Outcome, error) {
	f.gotGroup, f.gotDevices = groupID, deviceIDs
	return f.out, f.err
}

func (f *fakeMembership) SetGroupProfiles(_ context.Context, groupID uint, profileIDs []uint) (services.Outcome, error) {
	f.gotGroup, f.gotProfiles = groupID, profileIDs
	return f.out, f.err
}

type fakeDevices struct {
	services.DeviceService
	cmds        []*types.Command
	gotStatuses []types.CommandStatus
	gotLimit    int
}

func (f *fakeDevices) Commands(_ context.Context, _ uuid.UUID, statuses []types.CommandStatus, limit int) ([]*types.Command, error) {
	f.gotStatuses, f.gotLimit = statuses, limit
	return f.cmds, nil
}

func newTestRouter(devices services.DeviceService, membership services.MembershipService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	dh := NewDeviceHandler(devices, membership)
	gh := NewGroupHandler(nil, membership)
	r.PUT("/api/devices/:id/groups", dh.SetDeviceGroups)
	r.GET("/api/devices/:id/commands", dh.ListDeviceCommands)
	r.PUT("/api/groups/:id/devices", gh.SetGroupDevices)
	r.PUT("/api/groups/:id/profiles", gh.SetGroupProfiles)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSetDeviceGroupsReturnsOutcome(t *testing.T) {
	deviceID := uuid.New()
	fm := &fakeMembership{out: services.Outcome{NotifiedDevices: []uuid.UUID{deviceID}, Commands: 2}}
	r := newTestRouter(nil, fm)

	rec := do(r, http.MethodPut, "/api/devices/"+deviceID.String()+"/groups", `{"group_ids":[3,1]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if fm.gotDevice != deviceID || len(fm.gotGroups) != 2 || fm.gotGroups[0] != 3 {
		t.Fatalf("service called with device=%s groups=%v", fm.gotDevice, fm.gotGroups)
	}
	var body struct {
		NotifiedDevices []uuid.UUID `json:"notified_devices"`
		Commands        int         `json:"commands"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Commands != 2 || len(body.NotifiedDevices) != 1 || body.NotifiedDevices[0] != deviceID {
		t.Fatalf("body: %+v", body)
	}
}

func TestSetDeviceGroupsErrorMapping(t *testing.T) {
	deviceID := uuid.New()
	cases := []struct {
		name     string
		path     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"bad device id", "/api/devices/not-a-uuid/groups", `{"group_ids":[]}`, nil, http.StatusBadRequest, "invalid_device_id"},
		{"bad body", "/api/devices/" + deviceID.String() + "/groups", `{"group_ids":"x"}`, nil, http.StatusBadRequest, "invalid_request"},
		{"unknown group", "/api/devices/" + deviceID.String() + "/groups", `{"group_ids":[9]}`, fmt.Errorf("group 9: %w", mdmerrors.ErrNotFound), http.StatusNotFound, "set_device_groups_failed"},
		{"contention", "/api/devices/" + deviceID.String() + "/groups", `{"group_ids":[9]}`, fmt.Errorf("busy: %w", mdmerrors.ErrConflict), http.StatusConflict, "set_device_groups_failed"},
		{"append failed", "/api/devices/" + deviceID.String() + "/groups", `{"group_ids":[9]}`, &reconcile.CommandPersistenceError{
			Op:  "set_device_groups",
			Err: &reconcile.StoreWriteError{DeviceID: deviceID, Kind: types.CommandInstallProfile, Err: errors.New("disk full")},
		}, http.StatusInternalServerError, "command_persistence_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(nil, &fakeMembership{err: tc.err})
			rec := do(r, http.MethodPut, tc.path, tc.body)
			if rec.Code != tc.wantCode {
				t.Fatalf("status: want=%d got=%d body=%s", tc.wantCode, rec.Code, rec.Body.String())
			}
			var env response.ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Code != tc.wantErr {
				t.Fatalf("code: want=%q got=%q", tc.wantErr, env.Error.Code)
			}
		})
	}
}

func TestSetGroupDevicesAndProfiles(t *testing.T) {
	fm := &fakeMembership{out: services.Outcome{NotifiedDevices: []uuid.UUID{}}}
	r := newTestRouter(nil, fm)
	d := uuid.New()

	rec := do(r, http.MethodPut, "/api/groups/4/devices", `{"device_ids":["`+d.String()+`"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("devices status: %d %s", rec.Code, rec.Body.String())
	}
	if fm.gotGroup != 4 || len(fm.gotDevices) != 1 || fm.gotDevices[0] != d {
		t.Fatalf("devices call: group=%d devices=%v", fm.gotGroup, fm.gotDevices)
	}
	if !strings.Contains(rec.Body.String(), `"notified_devices":[]`) {
		t.Fatalf("empty outcome should serialise as [], got %s", rec.Body.String())
	}

	rec = do(r, http.MethodPut, "/api/groups/4/profiles", `{"profile_ids":[7]}`)
	if rec.Code != http.StatusOK || len(fm.gotProfiles) != 1 || fm.gotProfiles[0] != 7 {
		t.Fatalf("profiles call: status=%d profiles=%v", rec.Code, fm.gotProfiles)
	}

	rec = do(r, http.MethodPut, "/api/groups/0/profiles", `{"profile_ids":[7]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("group id 0: want 400, got %d", rec.Code)
	}
}

func TestListDeviceCommandsParsesFilters(t *testing.T) {
	fd := &fakeDevices{}
	r := newTestRouter(fd, &fakeMembership{})
	id := uuid.New()

	rec := do(r, http.MethodGet, "/api/devices/"+id.String()+"/commands?status=queued,sent&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
	}
	if len(fd.gotStatuses) != 2 || fd.gotStatuses[1] != types.CommandSent || fd.gotLimit != 5 {
		t.Fatalf("filters: statuses=%v limit=%d", fd.gotStatuses, fd.gotLimit)
	}
	if !strings.Contains(rec.Body.String(), `"commands":[]`) {
		t.Fatalf("nil commands should serialise as [], got %s", rec.Body.String())
	}

	rec = do(r, http.MethodGet, "/api/devices/"+id.String()+"/commands?limit=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit: want 400, got %d", rec.Code)
	}
}

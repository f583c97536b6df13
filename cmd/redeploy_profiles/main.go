package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/fleetmdm-backend/internal/app"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
)

type idList []uint

func (l *idList) String() string {
	parts := make([]string, 0, len(*l))
	for _, id := range *l {
		parts = append(parts, strconv.FormatUint(uint64(id), 10))
	}
	return strings.Join(parts, ",")
}

func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid profile id %q", v)
	}
	*l = append(*l, uint(id))
	return nil
}

// redeploy_profiles queues a fresh InstallProfile for every device that currently
// receives the selected profiles, e.g. after restoring the database from a backup.
func main() {
	var profiles idList
	var dryRun bool
	flag.Var(&profiles, "profile", "profile id to redeploy (repeatable); all profiles when omitted")
	flag.BoolVar(&dryRun, "dry-run", false, "print affected devices without queueing commands")
	flag.Parse()

	ctx := context.Background()
	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	dbc := dbctx.Context{Ctx: ctx}

	var rows []*types.Profile
	if len(profiles) > 0 {
		rows, err = application.Repos.Profile.GetByIDs(dbc, profiles)
	} else {
		rows, err = application.Repos.Profile.List(dbc)
	}
	if err != nil {
		fmt.Printf("load profiles: %v\n", err)
		os.Exit(1)
	}

	queued := 0
	for _, p := range rows {
		if p == nil {
			continue
		}
		if dryRun {
			groups, err := application.Repos.Membership.GroupIDsForProfile(dbc, p.ID)
			if err != nil {
				fmt.Printf("load groups for profile %d: %v\n", p.ID, err)
				continue
			}
			devices := map[uuid.UUID]struct{}{}
			for _, groupID := range groups {
				ids, err := application.Repos.Membership.DeviceIDsForGroup(dbc, groupID)
				if err != nil {
					fmt.Printf("load devices for group %d: %v\n", groupID, err)
					continue
				}
				for _, id := range ids {
					devices[id] = struct{}{}
				}
			}
			fmt.Printf("[dry-run] redeploy profile=%d identifier=%s groups=%d devices=%d\n", p.ID, p.Identifier, len(groups), len(devices))
			continue
		}
		_, outcome, err := application.Services.Membership.ReviseProfile(ctx, p.ID, func(*types.Profile) error { return nil })
		if err != nil {
			fmt.Printf("redeploy failed for profile %d: %v\n", p.ID, err)
			continue
		}
		queued += outcome.Commands
		fmt.Printf("redeployed profile=%d identifier=%s commands=%d devices=%d\n", p.ID, p.Identifier, outcome.Commands, len(outcome.NotifiedDevices))
	}

	if queued > 0 && application.Cfg.RedisAddr == "" {
		// Without Redis the wake-ups live in this process; deliver them before exiting.
		if err := application.DrainPush(ctx, 30*time.Second); err != nil {
			fmt.Printf("warning: %v; commands stay queued until the devices next check in\n", err)
		}
	}

	fmt.Printf("done; queued=%d\n", queued)
}

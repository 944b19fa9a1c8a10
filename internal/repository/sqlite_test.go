package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"blinds_bridge/internal/models"
	"blinds_bridge/internal/repository"
	"blinds_bridge/internal/repository/db"
)

func TestRepository_AgainstSQLite(t *testing.T) {
	conn, err := db.InitDB(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer func() { _ = conn.Close() }()

	repos := repository.NewRepository(conn)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	for i, ev := range []models.BridgeEvent{
		{Type: models.EventConnect, Description: "Gateway connected"},
		{Type: models.EventCommand, DeviceID: "65537", Description: "Target set to 30%", Metadata: map[string]any{"position": 30}},
		{Type: models.EventStopped, DeviceID: "65537", Description: "Stopped at 30%"},
	} {
		ev.OccurredAt = base.Add(time.Duration(i) * time.Minute)
		if err := repos.EventRepo.Append(ctx, ev); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	all, err := repos.EventRepo.List(ctx, repository.EventFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Type != models.EventConnect {
		t.Fatalf("unexpected events %+v", all)
	}

	device, err := repos.EventRepo.List(ctx, repository.EventFilter{DeviceID: "65537", From: base.Add(30 * time.Second)})
	if err != nil {
		t.Fatalf("List by device: %v", err)
	}
	if len(device) != 2 || device[0].Type != models.EventCommand {
		t.Fatalf("unexpected device events %+v", device)
	}

	if _, err := repos.Auth.Create(ctx, "alice", "hash"); err != nil {
		t.Fatalf("Create user: %v", err)
	}
	u, err := repos.Auth.GetByUsername(ctx, "alice")
	if err != nil || u == nil || u.PasswordHash != "hash" {
		t.Fatalf("GetByUsername = %+v, %v", u, err)
	}

	creds := models.GatewayCredentials{Host: "http://gw", Identity: "bridge", PSK: "one", UpdatedAt: base}
	if err := repos.Credentials.Save(ctx, creds); err != nil {
		t.Fatalf("Save creds: %v", err)
	}
	creds.PSK = "two"
	if err := repos.Credentials.Save(ctx, creds); err != nil {
		t.Fatalf("Save creds again: %v", err)
	}
	got, err := repos.Credentials.Load(ctx, "http://gw")
	if err != nil {
		t.Fatalf("Load creds: %v", err)
	}
	if got.PSK != "two" || got.Identity != "bridge" {
		t.Fatalf("unexpected credentials %+v", got)
	}
}

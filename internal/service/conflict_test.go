package service

import (
	"testing"
	"time"

	"github.com/avandenbergh/erplink/internal/models"
)

func TestResolveDirection(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := base.Add(-time.Minute)

	tests := []struct {
		name         string
		policy       ConflictPolicy
		jobDirection models.SyncDirection
		localTS      time.Time
		remoteTS     time.Time
		want         models.SyncDirection
	}{
		{
			name:         "remote_wins always pulls",
			policy:       PolicyRemoteWins,
			jobDirection: models.DirectionLocalToRemote,
			localTS:      base,
			remoteTS:     earlier,
			want:         models.DirectionRemoteToLocal,
		},
		{
			name:         "local_wins always pushes",
			policy:       PolicyLocalWins,
			jobDirection: models.DirectionRemoteToLocal,
			localTS:      earlier,
			remoteTS:     base,
			want:         models.DirectionLocalToRemote,
		},
		{
			name:         "newest_wins picks newer local",
			policy:       PolicyNewestWins,
			jobDirection: models.DirectionRemoteToLocal,
			localTS:      base,
			remoteTS:     earlier,
			want:         models.DirectionLocalToRemote,
		},
		{
			name:         "newest_wins picks newer remote",
			policy:       PolicyNewestWins,
			jobDirection: models.DirectionLocalToRemote,
			localTS:      earlier,
			remoteTS:     base,
			want:         models.DirectionRemoteToLocal,
		},
		{
			name:         "newest_wins tie keeps declared direction",
			policy:       PolicyNewestWins,
			jobDirection: models.DirectionLocalToRemote,
			localTS:      base,
			remoteTS:     base,
			want:         models.DirectionLocalToRemote,
		},
		{
			name:         "unknown policy keeps declared direction",
			policy:       ConflictPolicy("coin_flip"),
			jobDirection: models.DirectionRemoteToLocal,
			localTS:      base,
			remoteTS:     earlier,
			want:         models.DirectionRemoteToLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveDirection(tt.policy, tt.jobDirection, tt.localTS, tt.remoteTS)
			if got != tt.want {
				t.Errorf("resolveDirection(%s) = %s, want %s", tt.policy, got, tt.want)
			}
		})
	}
}

func TestRegistry_ResolveAndModules(t *testing.T) {
	registry := NewRegistry()
	registry.Register("orders", &mockHandler{remoteModel: "sale.order"})
	registry.Register("inventory", &mockHandler{remoteModel: "product.product"})

	if _, ok := registry.Resolve("orders"); !ok {
		t.Error("expected orders handler to resolve")
	}
	if _, ok := registry.Resolve("memberships"); ok {
		t.Error("expected unknown module to miss")
	}

	modules := registry.Modules()
	if len(modules) != 2 {
		t.Errorf("expected 2 registered modules, got %d", len(modules))
	}
}

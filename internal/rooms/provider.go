package rooms

import (
	"context"
	"time"
)

// Provider defines the provider-agnostic room interface used by business logic.
//
// Rules:
// - No provider SDK/wire calls outside room adapters.
// - Keep request/response types provider-agnostic.
// - All network methods may fail; failures propagate as the enclosing
//   lifecycle step's error.
type Provider interface {
	Name() string

	CreateRoom(ctx context.Context, req CreateRoomRequest) (Room, error)
	GetRoom(ctx context.Context, roomName string) (Room, bool, error)
	CloseRoom(ctx context.Context, roomName string) error

	ListParticipants(ctx context.Context, roomName string) ([]Participant, error)
	RemoveParticipant(ctx context.Context, roomName, identity string) error
	MuteParticipant(ctx context.Context, roomName, identity string, muted bool) error

	// IssueToken signs a join credential locally; it performs no network I/O.
	IssueToken(req TokenRequest) (string, error)
}

type CreateRoomRequest struct {
	Name            string            `json:"name"`
	MaxParticipants int               `json:"max_participants"`
	Metadata        map[string]string `json:"metadata,omitempty"`

	// EmptyTimeout closes the room after it has been empty this long.
	EmptyTimeout time.Duration `json:"empty_timeout,omitempty"`
}

type Room struct {
	Name            string `json:"room_id"`
	SID             string `json:"sid,omitempty"`
	NumParticipants int    `json:"num_participants"`
	MaxParticipants int    `json:"max_participants"`
	CreationTime    int64  `json:"creation_time,omitempty"`
	Metadata        string `json:"metadata,omitempty"`
}

type Participant struct {
	Identity    string `json:"identity"`
	Name        string `json:"name,omitempty"`
	State       string `json:"state,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
	JoinedAt    int64  `json:"joined_at,omitempty"`
	IsPublisher bool   `json:"is_publisher"`
}

type TokenRequest struct {
	RoomName            string
	ParticipantIdentity string
	ParticipantName     string
	Metadata            string

	// TTL bounds token validity; the adapter applies its configured default
	// when zero.
	TTL time.Duration
}

// RoomStats aggregates a room's current participant activity.
type RoomStats struct {
	Room             Room          `json:"room_info"`
	ParticipantCount int           `json:"participant_count"`
	ActivePublishers int           `json:"active_publishers"`
	Participants     []Participant `json:"participants"`
}

// Stats collects room info and participant counts through any Provider.
func Stats(ctx context.Context, p Provider, roomName string) (RoomStats, bool, error) {
	room, ok, err := p.GetRoom(ctx, roomName)
	if err != nil || !ok {
		return RoomStats{}, ok, err
	}
	parts, err := p.ListParticipants(ctx, roomName)
	if err != nil {
		return RoomStats{}, true, err
	}

	stats := RoomStats{Room: room, ParticipantCount: len(parts), Participants: parts}
	for _, pt := range parts {
		if pt.IsPublisher {
			stats.ActivePublishers++
		}
	}
	return stats, true, nil
}

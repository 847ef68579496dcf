package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"warmtransfer/internal/config"
)

// LiveKitProvider talks to a LiveKit server's RoomService over its
// Twirp-style JSON endpoints and signs access tokens locally.
type LiveKitProvider struct {
	apiKey    string
	apiSecret string
	baseURL   string
	tokenTTL  time.Duration

	httpClient *http.Client
	clock      func() time.Time
}

const roomServicePath = "/twirp/livekit.RoomService/"

// adminTokenTTL bounds server-to-server call credentials; they are minted
// per request so they can stay short.
const adminTokenTTL = time.Minute

func NewLiveKitProvider(cfg config.LiveKitConfig) (*LiveKitProvider, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("rooms: livekit api key and secret required")
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("rooms: livekit api url required")
	}
	return &LiveKitProvider{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		tokenTTL:   cfg.RoomTokenTTL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      time.Now,
	}, nil
}

func (p *LiveKitProvider) Name() string { return "livekit" }

func (p *LiveKitProvider) IssueToken(req TokenRequest) (string, error) {
	if req.RoomName == "" || req.ParticipantIdentity == "" {
		return "", fmt.Errorf("rooms: room name and participant identity required")
	}
	return signToken(p.apiKey, p.apiSecret, joinClaims(req, p.clock(), p.tokenTTL))
}

type lkRoom struct {
	SID             string `json:"sid"`
	Name            string `json:"name"`
	EmptyTimeout    uint32 `json:"empty_timeout"`
	MaxParticipants uint32 `json:"max_participants"`
	CreationTime    int64  `json:"creation_time,string"`
	Metadata        string `json:"metadata"`
	NumParticipants uint32 `json:"num_participants"`
}

func (r lkRoom) toRoom() Room {
	return Room{
		Name:            r.Name,
		SID:             r.SID,
		NumParticipants: int(r.NumParticipants),
		MaxParticipants: int(r.MaxParticipants),
		CreationTime:    r.CreationTime,
		Metadata:        r.Metadata,
	}
}

func (p *LiveKitProvider) CreateRoom(ctx context.Context, req CreateRoomRequest) (Room, error) {
	if req.Name == "" {
		return Room{}, fmt.Errorf("rooms: room name required")
	}

	emptyTimeout := req.EmptyTimeout
	if emptyTimeout <= 0 {
		emptyTimeout = 30 * time.Minute
	}

	var metadata string
	if len(req.Metadata) > 0 {
		b, err := json.Marshal(req.Metadata)
		if err != nil {
			return Room{}, fmt.Errorf("rooms: encode metadata: %w", err)
		}
		metadata = string(b)
	}

	body := map[string]any{
		"name":              req.Name,
		"max_participants":  req.MaxParticipants,
		"empty_timeout":     int(emptyTimeout.Seconds()),
		"departure_timeout": 60,
		"metadata":          metadata,
	}

	var out lkRoom
	if err := p.call(ctx, "CreateRoom", req.Name, body, &out); err != nil {
		return Room{}, fmt.Errorf("rooms: create room %s: %w", req.Name, err)
	}
	return out.toRoom(), nil
}

func (p *LiveKitProvider) GetRoom(ctx context.Context, roomName string) (Room, bool, error) {
	var out struct {
		Rooms []lkRoom `json:"rooms"`
	}
	if err := p.call(ctx, "ListRooms", roomName, map[string]any{"names": []string{roomName}}, &out); err != nil {
		return Room{}, false, fmt.Errorf("rooms: get room %s: %w", roomName, err)
	}
	if len(out.Rooms) == 0 {
		return Room{}, false, nil
	}
	return out.Rooms[0].toRoom(), true, nil
}

func (p *LiveKitProvider) CloseRoom(ctx context.Context, roomName string) error {
	if err := p.call(ctx, "DeleteRoom", roomName, map[string]any{"room": roomName}, nil); err != nil {
		return fmt.Errorf("rooms: close room %s: %w", roomName, err)
	}
	return nil
}

func (p *LiveKitProvider) ListParticipants(ctx context.Context, roomName string) ([]Participant, error) {
	var out struct {
		Participants []struct {
			Identity    string `json:"identity"`
			Name        string `json:"name"`
			State       string `json:"state"`
			Metadata    string `json:"metadata"`
			JoinedAt    int64  `json:"joined_at,string"`
			IsPublisher bool   `json:"is_publisher"`
		} `json:"participants"`
	}
	if err := p.call(ctx, "ListParticipants", roomName, map[string]any{"room": roomName}, &out); err != nil {
		return nil, fmt.Errorf("rooms: list participants in %s: %w", roomName, err)
	}

	parts := make([]Participant, 0, len(out.Participants))
	for _, pt := range out.Participants {
		parts = append(parts, Participant{
			Identity:    pt.Identity,
			Name:        pt.Name,
			State:       pt.State,
			Metadata:    pt.Metadata,
			JoinedAt:    pt.JoinedAt,
			IsPublisher: pt.IsPublisher,
		})
	}
	return parts, nil
}

func (p *LiveKitProvider) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	body := map[string]any{"room": roomName, "identity": identity}
	if err := p.call(ctx, "RemoveParticipant", roomName, body, nil); err != nil {
		return fmt.Errorf("rooms: remove %s from %s: %w", identity, roomName, err)
	}
	return nil
}

func (p *LiveKitProvider) MuteParticipant(ctx context.Context, roomName, identity string, muted bool) error {
	body := map[string]any{"room": roomName, "identity": identity, "muted": muted}
	if err := p.call(ctx, "MutePublishedTrack", roomName, body, nil); err != nil {
		return fmt.Errorf("rooms: mute %s in %s: %w", identity, roomName, err)
	}
	return nil
}

// call POSTs one RoomService method with a fresh admin token.
func (p *LiveKitProvider) call(ctx context.Context, method, roomName string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+roomServicePath+method, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	token, err := signToken(p.apiKey, p.apiSecret, adminClaims(roomName, p.clock(), adminTokenTTL))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d: %s", method, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package rooms

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// videoGrant mirrors the LiveKit access-token "video" claim.
// Field names are part of the wire contract; keep them stable.
type videoGrant struct {
	RoomCreate bool   `json:"roomCreate,omitempty"`
	RoomList   bool   `json:"roomList,omitempty"`
	RoomAdmin  bool   `json:"roomAdmin,omitempty"`
	RoomJoin   bool   `json:"roomJoin,omitempty"`
	Room       string `json:"room,omitempty"`

	CanPublish     *bool `json:"canPublish,omitempty"`
	CanSubscribe   *bool `json:"canSubscribe,omitempty"`
	CanPublishData *bool `json:"canPublishData,omitempty"`
}

type accessClaims struct {
	jwt.RegisteredClaims

	Name     string     `json:"name,omitempty"`
	Metadata string     `json:"metadata,omitempty"`
	Video    videoGrant `json:"video"`
}

// signToken builds a LiveKit-compatible JWT: issuer is the API key, subject
// is the participant identity, HS256 over the API secret.
func signToken(apiKey, apiSecret string, claims accessClaims) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", errors.New("rooms: api key and secret required")
	}
	claims.Issuer = apiKey

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(apiSecret))
}

// joinClaims issues the default participant grant set: join, publish,
// subscribe, and data-channel publish on one named room.
func joinClaims(req TokenRequest, now time.Time, ttl time.Duration) accessClaims {
	if req.TTL > 0 {
		ttl = req.TTL
	}
	yes := true
	return accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.ParticipantIdentity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:     nameOrIdentity(req),
		Metadata: req.Metadata,
		Video: videoGrant{
			RoomJoin:       true,
			Room:           req.RoomName,
			CanPublish:     &yes,
			CanSubscribe:   &yes,
			CanPublishData: &yes,
		},
	}
}

// adminClaims issues the server-to-server grant used for room management calls.
func adminClaims(roomName string, now time.Time, ttl time.Duration) accessClaims {
	return accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video: videoGrant{
			RoomCreate: true,
			RoomList:   true,
			RoomAdmin:  true,
			Room:       roomName,
		},
	}
}

func nameOrIdentity(req TokenRequest) string {
	if req.ParticipantName != "" {
		return req.ParticipantName
	}
	return req.ParticipantIdentity
}

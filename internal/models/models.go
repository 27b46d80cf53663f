package models

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message in the transcript.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Message is a single, immutable turn in the visible transcript.
type Message struct {
	ID        string    `yaml:"id"`
	Role      Role      `yaml:"role"`
	Text      string    `yaml:"text"`
	CreatedAt time.Time `yaml:"created_at"`
}

// NewMessage stamps a message with a fresh ID such as "model-<uuid>".
func NewMessage(role Role, text string, now time.Time) Message {
	return Message{
		ID:        string(role) + "-" + uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: now,
	}
}

// PlayerStatus is the player's side of the game state. Every field is optional.
type PlayerStatus struct {
	Location  string   `json:"location,omitempty" yaml:"location,omitempty"`
	Objective string   `json:"objective,omitempty" yaml:"objective,omitempty"`
	Inventory []string `json:"inventory,omitempty" yaml:"inventory,omitempty"`
	Mood      string   `json:"mood,omitempty" yaml:"mood,omitempty"` // e.g. "alert", "tired"
}

// GameState is the snapshot of the world as last reported by the model.
// It is replaced wholesale on every reply that carries one.
type GameState struct {
	SceneSummary string       `json:"sceneSummary" yaml:"scene_summary"`
	PlayerStatus PlayerStatus `json:"playerStatus" yaml:"player_status"`
}

// IsEmptyStatus reports whether the model sent no player details at all.
func (g GameState) IsEmptyStatus() bool {
	p := g.PlayerStatus
	return p.Location == "" && p.Objective == "" && p.Mood == "" && len(p.Inventory) == 0
}

// Clone returns a deep copy so snapshots never alias the session's state.
func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	c := *g
	if g.PlayerStatus.Inventory != nil {
		c.PlayerStatus.Inventory = append([]string(nil), g.PlayerStatus.Inventory...)
	}
	return &c
}

// SceneImage is a generated background picture for a scene.
type SceneImage struct {
	Summary  string
	MIMEType string
	Data     []byte
}

// DataURL renders the image as an inline data URL.
func (i *SceneImage) DataURL() string {
	if i == nil || len(i.Data) == 0 {
		return ""
	}
	mime := i.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

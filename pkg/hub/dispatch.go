package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/framework"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

// RoomService is the room-registry contract the hub dispatches
// create_room/get_rooms/delete_room/get_room_history against. pkg/api/rooms
// provides the concrete implementation; kept as an interface here so this
// package never imports the HTTP layer (spec.md §6's inbound catalogue is
// transport-agnostic).
type RoomService interface {
	CreateRoom(name string, agents []roomspec.AgentSpec) (roomID string, err error)
	DeleteRoom(roomID string) error
	ListRoomIDs() []string
	Participants(roomID string) ([]roomspec.AgentSpec, error)
	History(roomID string) ([]discussion.Turn, error)
}

// inboundEnvelope mirrors the generic {type, ...} shape every inbound
// message arrives in; fields are decoded lazily per type (spec.md §6).
type inboundEnvelope struct {
	Type          string          `json:"type"`
	RoomID        string          `json:"room_id"`
	RoomName      string          `json:"room_name"`
	Content       string          `json:"content"`
	MessageID     string          `json:"message_id"`
	Action        string          `json:"action"`
	Agents        json.RawMessage `json:"agents"`
	TargetAgentID string          `json:"target_agent_id"`
	Question      string          `json:"question"`
}

type agentSpecWire struct {
	Name     string            `json:"name"`
	Role     string            `json:"role"`
	Prompt   string            `json:"prompt"`
	Model    string            `json:"model"`
	Platform roomspec.Platform `json:"platform"`
}

// Dispatcher wires an inbound wire message to the room registry and the
// FrameworkManager, replying to the originating Client and/or broadcasting
// to room subscribers as appropriate.
type Dispatcher struct {
	hub     *Hub
	rooms   RoomService
	manager *framework.Manager
}

// NewDispatcher builds a Dispatcher over hub, rooms, and manager.
func NewDispatcher(h *Hub, rooms RoomService, manager *framework.Manager) *Dispatcher {
	return &Dispatcher{hub: h, rooms: rooms, manager: manager}
}

// Handle parses raw as an inboundEnvelope and routes it. Unknown types or
// malformed envelopes reply with a typed error to client (spec.md §4.8).
func (d *Dispatcher) Handle(client *Client, raw []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.replyError(client, "BAD_REQUEST", "malformed envelope: "+err.Error(), "", "")
		return
	}

	switch env.Type {
	case "create_room":
		d.handleCreateRoom(client, env)
	case "join_room":
		d.handleJoinRoom(client, env)
	case "send_message":
		d.handleSendMessage(client, env)
	case "get_room_history":
		d.handleGetRoomHistory(client, env)
	case "delete_room":
		d.handleDeleteRoom(client, env)
	case "get_rooms":
		d.handleGetRooms(client)
	case "discussion_control":
		d.handleDiscussionControl(client, env)
	case "human_question":
		d.handleHumanQuestion(client, env)
	default:
		d.replyError(client, "BAD_REQUEST", fmt.Sprintf("unknown message type %q", env.Type), "", "")
	}
}

func (d *Dispatcher) handleCreateRoom(client *Client, env inboundEnvelope) {
	var wire []agentSpecWire
	if len(env.Agents) > 0 {
		if err := json.Unmarshal(env.Agents, &wire); err != nil {
			d.replyError(client, "ROOM_INVALID", "malformed agents[]: "+err.Error(), "", "")
			return
		}
	}

	specs := make([]roomspec.AgentSpec, 0, len(wire))
	for i, w := range wire {
		specs = append(specs, roomspec.New(fmt.Sprintf("agent-%d", i+1), w.Name, w.Role, w.Prompt, w.Platform, roomspec.ModelParams{Model: w.Model}))
	}

	roomID, err := d.rooms.CreateRoom(env.RoomName, specs)
	if err != nil {
		d.replyError(client, "ROOM_INVALID", err.Error(), "", "")
		return
	}

	d.hub.Broadcast(Envelope{Type: "room_created", Payload: map[string]interface{}{
		"room_id":   roomID,
		"room_name": env.RoomName,
	}})
}

func (d *Dispatcher) handleJoinRoom(client *Client, env inboundEnvelope) {
	if _, err := d.rooms.Participants(env.RoomID); err != nil {
		d.replyError(client, "ROOM_NOT_FOUND", err.Error(), env.RoomID, "")
		return
	}
	client.Join(env.RoomID)
	client.send(Envelope{Type: "room_joined", RoomID: env.RoomID}, d.hub.publishTimeout)
}

func (d *Dispatcher) handleSendMessage(client *Client, env inboundEnvelope) {
	participants, err := d.rooms.Participants(env.RoomID)
	if err != nil {
		d.replyError(client, "ROOM_NOT_FOUND", err.Error(), env.RoomID, "")
		return
	}

	status, statusErr := d.manager.Status(env.RoomID)
	if statusErr == framework.ErrRoomNotFound || status.Phase == discussion.PhaseStopped {
		_, err := d.manager.Start(context.Background(), env.RoomID, participants, env.Content)
		if err != nil && err != framework.ErrAlreadyActive {
			d.replyError(client, "BAD_REQUEST", err.Error(), env.RoomID, "")
			return
		}
		if c, ok := d.manager.Controller(env.RoomID); ok {
			BridgeController(d.hub, env.RoomID, c)
		}
		return
	}

	if err := d.manager.SubmitUserInput(env.RoomID, env.Content); err != nil {
		d.replyError(client, "BAD_REQUEST", err.Error(), env.RoomID, "")
	}
}

func (d *Dispatcher) handleGetRoomHistory(client *Client, env inboundEnvelope) {
	turns, err := d.rooms.History(env.RoomID)
	if err != nil {
		d.replyError(client, "ROOM_NOT_FOUND", err.Error(), env.RoomID, "")
		return
	}
	client.send(Envelope{Type: "room_history", RoomID: env.RoomID, Payload: map[string]interface{}{
		"room_id":  env.RoomID,
		"messages": turns,
	}}, d.hub.publishTimeout)
}

func (d *Dispatcher) handleDeleteRoom(client *Client, env inboundEnvelope) {
	if err := d.rooms.DeleteRoom(env.RoomID); err != nil {
		d.replyError(client, "ROOM_NOT_FOUND", err.Error(), env.RoomID, "")
		return
	}
	d.hub.Broadcast(Envelope{Type: "room_deleted", Payload: map[string]interface{}{"room_id": env.RoomID}})
}

func (d *Dispatcher) handleGetRooms(client *Client) {
	client.send(Envelope{Type: "rooms_list", Payload: map[string]interface{}{
		"rooms": d.rooms.ListRoomIDs(),
	}}, d.hub.publishTimeout)
}

func (d *Dispatcher) handleDiscussionControl(client *Client, env inboundEnvelope) {
	action := framework.ControlAction(env.Action)
	if err := d.manager.Control(env.RoomID, action); err != nil {
		code := "BAD_REQUEST"
		if err == framework.ErrRoomNotFound {
			code = "ROOM_NOT_FOUND"
		}
		d.replyError(client, code, err.Error(), env.RoomID, env.Action)
	}
}

// handleHumanQuestion routes a human_question message at a targeted agent
// while the room is Paused (SPEC_FULL.md §10), mirroring the teacher's
// SubmitHumanQuestion exposed on the live debate connection.
func (d *Dispatcher) handleHumanQuestion(client *Client, env inboundEnvelope) {
	if err := d.manager.SubmitHumanQuestion(env.RoomID, env.TargetAgentID, env.Question); err != nil {
		code := "BAD_REQUEST"
		if err == framework.ErrRoomNotFound {
			code = "ROOM_NOT_FOUND"
		}
		d.replyError(client, code, err.Error(), env.RoomID, "human_question")
	}
}

func (d *Dispatcher) replyError(client *Client, code, message, roomID, action string) {
	client.send(Envelope{Type: "error", RoomID: roomID, Payload: map[string]interface{}{
		"error_code": code,
		"message":    message,
		"room_id":    roomID,
		"action":     action,
	}}, d.hub.publishTimeout)
}

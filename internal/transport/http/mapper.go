package http

import (
	"encoding/json"

	"github.com/driftchat/driftchat-server/internal/core"
	"github.com/driftchat/driftchat-server/internal/proto"
)

// inboundToCommand maps a wire event to a hub command. Payloads are
// validated at the boundary before dispatch; a non-nil proto.Error means
// the event was rejected and the connection stays up.
func inboundToCommand(client *core.Client, inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundRoomJoin, proto.InboundRoomLeave:
		var room proto.RoomData
		if err := json.Unmarshal(inbound.Data, &room); err != nil {
			return nil, nil, err
		}
		if room.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeValidation, Message: "roomId is required"}, nil
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundRoomLeave {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Client: client, Room: room.RoomID}, nil, nil

	case proto.InboundMessageSend:
		var send proto.SendData
		if err := json.Unmarshal(inbound.Data, &send); err != nil {
			return nil, nil, err
		}
		if send.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeValidation, Message: "roomId is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandSendMessage,
			Client: client,
			Room:   send.RoomID,
			Text:   send.Text,
		}, nil, nil

	case proto.InboundPrivate:
		var pm proto.PrivateData
		if err := json.Unmarshal(inbound.Data, &pm); err != nil {
			return nil, nil, err
		}
		if pm.RecipientID == "" {
			return nil, &proto.Error{Code: core.ErrCodeValidation, Message: "recipientUserId is required"}, nil
		}
		return &core.Command{
			Kind:        core.CommandSendPrivate,
			Client:      client,
			RecipientID: pm.RecipientID,
			Text:        pm.Text,
		}, nil, nil

	case proto.InboundTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, nil, err
		}
		if typing.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeValidation, Message: "roomId is required"}, nil
		}
		return &core.Command{
			Kind:     core.CommandTyping,
			Client:   client,
			Room:     typing.RoomID,
			IsTyping: typing.IsTyping,
		}, nil, nil

	case proto.InboundMessageRead:
		var read proto.ReadData
		if err := json.Unmarshal(inbound.Data, &read); err != nil {
			return nil, nil, err
		}
		if read.RoomID == "" || read.MessageID == "" {
			return nil, &proto.Error{Code: core.ErrCodeValidation, Message: "roomId and messageId are required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandMarkRead,
			Client:    client,
			Room:      read.RoomID,
			MessageID: read.MessageID,
		}, nil, nil

	case proto.InboundEdit:
		var edit proto.EditData
		if err := json.Unmarshal(inbound.Data, &edit); err != nil {
			return nil, nil, err
		}
		if edit.RoomID == "" || edit.MessageID == "" {
			return nil, &proto.Error{Code: core.ErrCodeValidation, Message: "roomId and messageId are required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandEditMessage,
			Client:    client,
			Room:      edit.RoomID,
			MessageID: edit.MessageID,
			Text:      edit.Text,
		}, nil, nil

	case proto.InboundDelete:
		var del proto.ReadData
		if err := json.Unmarshal(inbound.Data, &del); err != nil {
			return nil, nil, err
		}
		if del.RoomID == "" || del.MessageID == "" {
			return nil, &proto.Error{Code: core.ErrCodeValidation, Message: "roomId and messageId are required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandDeleteMessage,
			Client:    client,
			Room:      del.RoomID,
			MessageID: del.MessageID,
		}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Message: "unknown event type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomsList:
		rooms := make([]proto.RoomInfo, 0, len(event.Rooms))
		for _, r := range event.Rooms {
			rooms = append(rooms, proto.RoomInfo{
				ID:          r.ID,
				Name:        r.Name,
				Description: r.Description,
				MemberCount: r.MemberCount,
			})
		}
		return proto.Outbound{Type: proto.OutboundRoomsList, Data: rooms}

	case core.EventAuthenticated:
		return proto.Outbound{Type: proto.OutboundAuthenticated, Data: proto.Session{
			ID:          event.Session.UserID,
			Username:    event.Session.Username,
			Avatar:      event.Session.Avatar,
			Status:      "online",
			ConnectedAt: event.Session.ConnectedAt,
		}}

	case core.EventUserJoined:
		return proto.Outbound{Type: proto.OutboundUserJoined, Data: protoUser(event.User)}

	case core.EventUserLeft:
		return proto.Outbound{Type: proto.OutboundUserLeft, Data: protoUser(event.User)}

	case core.EventUsersOnline:
		return proto.Outbound{Type: proto.OutboundUsersOnline, Data: protoUsers(event.Users)}

	case core.EventRoomHistory:
		messages := make([]proto.Message, 0, len(event.Messages))
		for i := range event.Messages {
			messages = append(messages, protoMessage(&event.Messages[i]))
		}
		return proto.Outbound{Type: proto.OutboundRoomHistory, Data: proto.RoomHistory{
			RoomID:   event.Room,
			Messages: messages,
			Members:  protoUsers(event.Users),
		}}

	case core.EventRoomUserJoined:
		return proto.Outbound{Type: proto.OutboundRoomUserJoined, Data: proto.RoomPresence{
			RoomID:    event.Room,
			User:      protoUser(event.User),
			Timestamp: event.Timestamp,
		}}

	case core.EventRoomUserLeft:
		return proto.Outbound{Type: proto.OutboundRoomUserLeft, Data: proto.RoomPresence{
			RoomID:    event.Room,
			User:      protoUser(event.User),
			Timestamp: event.Timestamp,
		}}

	case core.EventMessageNew:
		return proto.Outbound{Type: proto.OutboundMessageNew, Data: protoMessage(event.Message)}

	case core.EventMessageSent:
		return proto.Outbound{Type: proto.OutboundMessageSent, Data: protoMessage(event.Message)}

	case core.EventPrivate:
		return proto.Outbound{Type: proto.OutboundPrivate, Data: protoMessage(event.Message)}

	case core.EventPrivateSent:
		return proto.Outbound{Type: proto.OutboundPrivateSent, Data: protoMessage(event.Message)}

	case core.EventTypingOn:
		return proto.Outbound{Type: proto.OutboundTypingOn, Data: protoTyping(event)}

	case core.EventTypingOff:
		return proto.Outbound{Type: proto.OutboundTypingOff, Data: protoTyping(event)}

	case core.EventReadReceipt:
		return proto.Outbound{Type: proto.OutboundReadReceipt, Data: proto.ReadReceipt{
			MessageID: event.MessageID,
			UserID:    event.User.ID,
			Username:  event.User.Username,
			Timestamp: event.Timestamp,
		}}

	case core.EventMessageEdited:
		return proto.Outbound{Type: proto.OutboundMessageEdited, Data: protoMessage(event.Message)}

	case core.EventMessageDeleted:
		return proto.Outbound{Type: proto.OutboundMessageDeleted, Data: proto.MessageRef{
			MessageID: event.MessageID,
			RoomID:    event.Room,
		}}

	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundError, Error: &proto.Error{Code: "unknown", Message: "unknown error"}}
		}
		return proto.Outbound{Type: proto.OutboundError, Error: &proto.Error{
			Code:    event.Error.Code,
			Message: event.Error.Message,
			Context: event.Error.Context,
		}}

	default:
		return proto.Outbound{Type: proto.OutboundError, Error: &proto.Error{Code: "unknown", Message: "unmapped event"}}
	}
}

func protoUser(u core.OnlineUser) proto.User {
	return proto.User{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
		Status:   u.Status,
	}
}

func protoUsers(users []core.OnlineUser) []proto.User {
	out := make([]proto.User, 0, len(users))
	for _, u := range users {
		out = append(out, protoUser(u))
	}
	return out
}

func protoMessage(m *core.Message) proto.Message {
	return proto.Message{
		ID:          m.ID,
		RoomID:      m.RoomID,
		RecipientID: m.RecipientID,
		Sender: proto.User{
			ID:       m.Sender.ID,
			Username: m.Sender.Username,
			Avatar:   m.Sender.Avatar,
		},
		Text:      m.Text,
		Timestamp: m.CreatedAt,
		ReadBy:    m.ReadBy,
		EditedAt:  m.EditedAt,
		Deleted:   m.Deleted,
	}
}

func protoTyping(event *core.Event) proto.Typing {
	return proto.Typing{
		RoomID:   event.Room,
		UserID:   event.User.ID,
		Username: event.User.Username,
	}
}

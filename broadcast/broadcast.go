// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/session"
)

var (
	ErrUserNotConnected = errors.New("user not connected")
)

// 广播接口
type Broadcaster interface {
	SendToUser(roomName, userID string, msg any) error
	BroadcastToRoom(roomName string, userIDs []string, msg any) error
	BroadcastToLobby(msg any) error
}

// SessionBroadcaster delivers to the sessions held by this process.
// Room deliveries only reach sessions still attached to that room.
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{sessionManager: sessionManager}
}

func (b *SessionBroadcaster) SendToUser(roomName, userID string, msg any) error {
	s, ok := b.sessionManager.Get(userID)
	if !ok || s.RoomName != roomName {
		return ErrUserNotConnected
	}
	return s.Send(msg)
}

func (b *SessionBroadcaster) BroadcastToRoom(roomName string, userIDs []string, msg any) error {
	for _, id := range userIDs {
		s, ok := b.sessionManager.Get(id)
		if !ok || s.RoomName != roomName {
			continue
		}
		if err := s.Send(msg); err != nil {
			// 发送失败由读循环负责断开
			logger.Log.Debugf("send to %s in room %s failed: %v", id, roomName, err)
		}
	}
	return nil
}

func (b *SessionBroadcaster) BroadcastToLobby(msg any) error {
	for _, s := range b.sessionManager.Lobby() {
		if err := s.Send(msg); err != nil {
			logger.Log.Debugf("send to lobby observer %s failed: %v", s.UserID, err)
		}
	}
	return nil
}

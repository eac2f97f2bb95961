package room

import (
	"sort"
	"strings"
	"sync"

	"github.com/wfunc/dominoserver/auth"
	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/network"
	"github.com/wfunc/dominoserver/state"
)

// 房间状态, 与生命周期状态机的 ID 一致
const (
	StatusWaiting    = state.StateLobby
	StatusPlaying    = state.StatePlaying
	StatusSettlement = state.StateSettlement
	StatusClosed     = "closed"
)

const maxRoomName = 64

// Manager 管理所有房间
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
	deps  Deps
	// hash 在锁外执行, bcrypt 较慢
	hash func(password string) (string, error)
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(deps Deps) *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
		deps:  deps,
		hash:  auth.HashPassword,
	}
}

// GetOrCreate returns the named room, creating it with password when it does
// not exist. created reports whether this call made it.
func (m *Manager) GetOrCreate(name, password string) (r *Room, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxRoomName {
		return nil, false, ErrInvalidRoomName
	}
	if existing := m.live(name); existing != nil {
		return existing, false, nil
	}

	hash := ""
	if password != "" {
		if hash, err = m.hash(password); err != nil {
			return nil, false, err
		}
	}

	m.mutex.Lock()
	// Another caller may have created it while the password was hashed.
	if existing, ok := m.rooms[name]; ok && existing.Status() != StatusClosed {
		m.mutex.Unlock()
		return existing, false, nil
	}
	r = newRoom(name, hash, m.deps)
	r.onChange = m.roomChanged
	r.onDestroy = m.roomDestroyed
	m.rooms[name] = r
	count := len(m.rooms)
	m.mutex.Unlock()

	logger.Log.Infof("创建房间 %s (password=%v)", name, password != "")
	m.deps.Monitor.SetActiveRooms(count)
	return r, true, nil
}

func (m *Manager) live(name string) *Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if r, ok := m.rooms[name]; ok && r.Status() != StatusClosed {
		return r
	}
	return nil
}

// Get 从管理器中获取一个房间
func (m *Manager) Get(name string) (*Room, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	r, ok := m.rooms[name]
	if !ok || r.Status() == StatusClosed {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// ListWaiting returns the rooms still collecting players, by name.
func (m *Manager) ListWaiting() []network.RoomSummary {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]network.RoomSummary, 0, len(m.rooms))
	for _, r := range m.rooms {
		if r.Status() != StatusWaiting {
			continue
		}
		rooms = append(rooms, r.Summary())
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms
}

// Count 当前房间数
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// PushRoomList sends the waiting-room list to every lobby observer.
func (m *Manager) PushRoomList() {
	if err := m.deps.Broadcaster.BroadcastToLobby(network.NewRoomListMsg(m.ListWaiting())); err != nil {
		logger.Log.Warnf("推送房间列表失败: %v", err)
	}
}

// CloseAll 关闭所有房间并等待其退出
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mutex.RUnlock()

	for _, r := range rooms {
		r.Close()
	}
	for _, r := range rooms {
		<-r.Done()
	}
}

func (m *Manager) roomChanged(*Room) {
	m.PushRoomList()
}

// roomDestroyed runs on the closing room's loop.
func (m *Manager) roomDestroyed(r *Room) {
	m.mutex.Lock()
	if m.rooms[r.Name] == r {
		delete(m.rooms, r.Name)
	}
	count := len(m.rooms)
	m.mutex.Unlock()

	m.deps.Monitor.SetActiveRooms(count)
	m.PushRoomList()
}

package handlers

import (
	"net/http"

	"chatroom-server/internal/chatroom"
)

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UpdateRoomRequest struct {
	RoomID      uint    `json:"room_id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type RoomRequest struct {
	RoomID uint `json:"room_id"`
}

type RoomUserRequest struct {
	RoomID uint   `json:"room_id"`
	UserID string `json:"user_id"`
}

type RoomResponse struct {
	*chatroom.Chatroom
	MemberCount int64 `json:"member_count"`
}

// GetRoomsHandler lists active rooms. scope=joined or scope=owned narrows the
// list to the caller's rooms.
func GetRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	var (
		rooms []chatroom.Chatroom
		err   error
	)
	switch r.URL.Query().Get("scope") {
	case "joined":
		rooms, err = Rooms.ListUserRooms(r.Context(), currentUserID(r))
	case "owned":
		rooms, err = Rooms.ListOwnedRooms(r.Context(), currentUserID(r))
	case "":
		skip, take, ok := queryPage(w, r)
		if !ok {
			return
		}
		rooms, err = Rooms.ListRooms(r.Context(), skip, take)
	default:
		badRequest(w, "Unknown scope")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	roomID, ok := queryID(w, r, "id")
	if !ok {
		return
	}

	room, err := Rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := Rooms.MemberCount(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RoomResponse{Chatroom: room, MemberCount: count})
}

func CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !decodePost(w, r, &req) {
		return
	}

	room, err := Rooms.CreateRoom(r.Context(), currentUserID(r), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func UpdateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoomRequest
	if !decodePost(w, r, &req) {
		return
	}

	room, err := Rooms.UpdateRoom(r.Context(), req.RoomID, currentUserID(r), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.DeleteRoom(r.Context(), req.RoomID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// TransferOwnershipHandler hands the room to user_id, who must already be a member.
func TransferOwnershipHandler(w http.ResponseWriter, r *http.Request) {
	var req RoomUserRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.TransferOwnership(r.Context(), req.RoomID, currentUserID(r), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if !decodePost(w, r, &req) {
		return
	}

	m, err := Rooms.Join(r.Context(), req.RoomID, currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.Leave(r.Context(), req.RoomID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func GetMembersHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	roomID, ok := queryID(w, r, "room_id")
	if !ok {
		return
	}

	members, err := Rooms.ListMembers(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req RoomUserRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.RemoveMember(r.Context(), req.RoomID, req.UserID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}
